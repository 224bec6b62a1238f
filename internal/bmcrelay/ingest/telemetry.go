package ingest

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
	"github.com/cray-hpc/bmcrelay/models"
)

const telemetryMessagePrefix = "CrayTelemetry."

// Sampler tracks the monotonic time of the last accepted message per
// (client_ip, MessageId). It is lane-local: a lane owns exactly one Sampler
// and no goroutine other than that lane's worker touches it, so no locking
// is required.
type Sampler struct {
	lastAccepted map[string]time.Time

	// Metrics is nil unless the caller wires it after construction; every
	// increment checks for nil first.
	Metrics *observability.Metrics
}

// NewSampler creates an empty Sampler.
func NewSampler() *Sampler {
	return &Sampler{lastAccepted: make(map[string]time.Time)}
}

// Allow reports whether a message from clientIP/messageId at time now should
// be accepted, given samplePeriod. On acceptance the last-accepted time is
// updated.
func (s *Sampler) Allow(clientIP, messageId string, now time.Time, samplePeriod time.Duration) bool {
	key := clientIP + "\x00" + messageId
	last, ok := s.lastAccepted[key]
	if ok && now.Sub(last) < samplePeriod {
		if s.Metrics != nil {
			s.Metrics.SamplingDrops.Inc()
		}
		return false
	}
	s.lastAccepted[key] = now
	return true
}

// ProcessTelemetry applies per-client sampling, extracts and dedups sensors
// from one telemetry event, and returns the records to emit. An empty slice
// means the event was sampled away or carried no usable sensors.
func ProcessTelemetry(ev models.Event, clientIP, cluster string, now time.Time, samplePeriod time.Duration, sampler *Sampler, parser *SkewParser, logger *slog.Logger) []models.TelemetryRecord {
	if !sampler.Allow(clientIP, ev.MessageId, now, samplePeriod) {
		return nil
	}

	eventName := strings.TrimPrefix(ev.MessageId, telemetryMessagePrefix)

	var oem []models.RawSensor
	if ev.Oem != nil {
		oem = ev.Oem.Sensors
	}

	dedup := make(map[string]models.Sensor)
	for _, raw := range oem {
		sensor, ok := buildSensor(raw, eventName, clientIP, parser, logger)
		if !ok {
			continue
		}
		existing, seen := dedup[sensor.SensorName]
		if !seen || sensorTimestamp(sensor) > sensorTimestamp(existing) {
			dedup[sensor.SensorName] = sensor
		}
		if seen && sampler.Metrics != nil {
			sampler.Metrics.DedupCollapses.Inc()
		}
	}

	if len(dedup) == 0 {
		return nil
	}

	records := make([]models.TelemetryRecord, 0, len(dedup))
	for _, s := range dedup {
		records = append(records, models.TelemetryRecord{
			Timestamp:             sensorTimestamp(s),
			Location:              s.Location,
			Index:                 s.Index,
			ParentalContext:       s.ParentalContext,
			ParentalIndex:         s.ParentalIndex,
			PhysicalContext:       s.PhysicalContext,
			PhysicalSubContext:    s.PhysicalSubContext,
			DeviceSpecificContext: s.DeviceSpecificContext,
			EventName:             eventName,
			Value:                 s.Value,
			SensorName:            s.SensorName,
			Cluster:               cluster,
		})
	}
	return records
}

func buildSensor(raw models.RawSensor, eventName, clientIP string, parser *SkewParser, logger *slog.Logger) (models.Sensor, bool) {
	if raw.Location == "" || raw.Timestamp == "" || raw.Value == nil {
		logger.Warn("ingest: sensor missing required field, skipped", "client_ip", clientIP)
		return models.Sensor{}, false
	}

	s := models.Sensor{
		Location:              raw.Location,
		Timestamp:             raw.Timestamp,
		Value:                 *raw.Value,
		ParentalContext:       raw.ParentalContext,
		ParentalIndex:         intOrDefault(raw.ParentalIndex, -1),
		PhysicalContext:       raw.PhysicalContext,
		Index:                 intOrDefault(raw.Index, -1),
		DeviceSpecificContext: raw.DeviceSpecificContext,
		PhysicalSubContext:    raw.PhysicalSubContext,
		SubIndex:              intOrDefault(raw.SubIndex, -1),
		EventName:             eventName,
	}
	s.SensorName = composeSensorName(s)

	ms := parser.Parse(clientIP, raw.Timestamp)
	s.Timestamp = strconv.FormatInt(ms, 10)
	return s, true
}

// composeSensorName appends geometric descriptors in the fixed documented
// order, followed by the event name.
func composeSensorName(s models.Sensor) string {
	var b strings.Builder
	b.WriteString(s.ParentalContext)
	b.WriteString(strconv.Itoa(s.ParentalIndex))
	b.WriteString(s.PhysicalContext)
	b.WriteString(strconv.Itoa(s.Index))
	b.WriteString(s.DeviceSpecificContext)
	b.WriteString(s.PhysicalSubContext)
	b.WriteString(s.EventName)
	return b.String()
}

func sensorTimestamp(s models.Sensor) int64 {
	ms, _ := strconv.ParseInt(s.Timestamp, 10, 64)
	return ms
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
