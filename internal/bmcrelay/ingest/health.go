package ingest

import (
	"log/slog"
	"strconv"

	"github.com/cray-hpc/bmcrelay/models"
)

// ProcessHealth extracts the single health sensor carried in a fabric-health
// event's Oem.Sensors and maps it to a HealthRecord. Only the first sensor
// is used; additional entries are reserved for future use and only logged.
// ok is false if no sensor is present at all.
func ProcessHealth(ev models.Event, location, cluster string, parser *SkewParser, logger *slog.Logger) (models.HealthRecord, bool) {
	if ev.Oem == nil || len(ev.Oem.Sensors) == 0 {
		return models.HealthRecord{}, false
	}
	if len(ev.Oem.Sensors) > 1 {
		logger.Warn("ingest: health event carries more than one sensor, using the first", "message_id", ev.MessageId)
	}

	raw := ev.Oem.Sensors[0]

	ts := int64(0)
	if ev.EventTimestamp != "" {
		ts = parser.ParseTimestamp(location, ev.EventTimestamp)
	}

	message := ""
	if raw.Value != nil {
		message = strconv.FormatFloat(*raw.Value, 'f', -1, 64)
	}

	return models.HealthRecord{
		Timestamp:       ts,
		Location:        raw.Location,
		MessageId:       ev.MessageId,
		Message:         message,
		Group:           intOrDefault(raw.ParentalIndex, 0),
		Switch:          intOrDefault(raw.Index, 0),
		Port:            intOrDefault(raw.SubIndex, 0),
		Severity:        raw.PhysicalSubContext,
		PhysicalContext: raw.PhysicalContext,
		Cluster:         cluster,
	}, true
}
