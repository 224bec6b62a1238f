package ingest

import (
	"log/slog"
	"time"

	"github.com/cray-hpc/bmcrelay/models"
)

var syslogLevelBySeverity = map[string]string{
	"OK":       "information",
	"Warning":  "warning",
	"Critical": "error",
}

// ProcessGeneric maps a non-telemetry event into a GenericEventRecord. ok is
// false if the event lacks the one required field, EventTimestamp.
func ProcessGeneric(ev models.Event, location, cluster string, parser *SkewParser, logger *slog.Logger) (models.GenericEventRecord, bool) {
	if ev.EventTimestamp == "" {
		logger.Warn("ingest: generic event missing EventTimestamp, dropped", "message_id", ev.MessageId)
		return models.GenericEventRecord{}, false
	}

	origin := ""
	if ev.OriginOfCondition != nil {
		origin = ev.OriginOfCondition.ODataID
	}

	level, ok := syslogLevelBySeverity[ev.Severity]
	if !ok {
		level = "unknown"
	}

	ts := parser.ParseTimestamp(location, ev.EventTimestamp)

	return models.GenericEventRecord{
		Timestamp:         ts,
		Location:          location,
		MessageId:         ev.MessageId,
		Severity:          ev.Severity,
		Message:           ev.Message,
		OriginOfCondition: origin,
		SyslogLevel:       level,
		Cluster:           cluster,
	}, true
}

// AlertLine renders the fixed-format alerts_file line for a generic event,
// per the documented space-separated format.
func AlertLine(rec models.GenericEventRecord, at time.Time) string {
	return at.Format(time.RFC3339) + " " + rec.Location + " " + rec.MessageId + " " + rec.Severity +
		" \"" + rec.Message + "\" " + rec.OriginOfCondition
}
