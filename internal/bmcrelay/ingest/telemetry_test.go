package ingest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/cray-hpc/bmcrelay/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestProcessTelemetryDedupKeepsLatestTimestamp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	now := time.Now()
	parser := NewSkewParser(24*time.Hour, logger)

	mk := func(at time.Time) models.RawSensor {
		return models.RawSensor{Location: "node0", Timestamp: at.Format(time.RFC3339Nano), Value: floatPtr(1.0)}
	}

	ev := models.Event{
		MessageId: "CrayTelemetry.Temperature",
		Oem: &models.Oem{Sensors: []models.RawSensor{
			mk(now.Add(100 * time.Millisecond)),
			mk(now.Add(300 * time.Millisecond)),
			mk(now.Add(200 * time.Millisecond)),
		}},
	}

	sampler := NewSampler()
	records := ProcessTelemetry(ev, "10.0.0.5", "mycluster", now, time.Second, sampler, parser, logger)

	if len(records) != 1 {
		t.Fatalf("records = %v, want exactly one deduped SensorName", records)
	}
	want := now.Add(300 * time.Millisecond).UnixMilli()
	if records[0].Timestamp != want {
		t.Errorf("timestamp = %d, want %d (the max among duplicates)", records[0].Timestamp, want)
	}
}

func TestSamplerDropsWithinPeriod(t *testing.T) {
	s := NewSampler()
	t0 := time.Now()

	if !s.Allow("10.0.0.1", "CrayTelemetry.Temperature", t0, 10*time.Second) {
		t.Fatal("first message should be accepted")
	}
	if s.Allow("10.0.0.1", "CrayTelemetry.Temperature", t0.Add(5*time.Second), 10*time.Second) {
		t.Fatal("message within sample_period should be dropped")
	}
	if !s.Allow("10.0.0.1", "CrayTelemetry.Temperature", t0.Add(11*time.Second), 10*time.Second) {
		t.Fatal("message after sample_period should be accepted")
	}
}

func TestComposeSensorNameFixedOrder(t *testing.T) {
	s := models.Sensor{
		ParentalContext:       "Chassis",
		ParentalIndex:         1,
		PhysicalContext:       "CPU",
		Index:                 2,
		DeviceSpecificContext: "Core",
		PhysicalSubContext:    "Die",
		EventName:             "Temperature",
	}
	got := composeSensorName(s)
	want := "Chassis1CPU2CoreDieTemperature"
	if got != want {
		t.Errorf("composeSensorName = %q, want %q", got, want)
	}
}

func TestBuildSensorSkipsMissingRequiredFields(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	parser := NewSkewParser(24*time.Hour, logger)

	_, ok := buildSensor(models.RawSensor{Location: "", Timestamp: "2024-01-01T00:00:00Z", Value: floatPtr(1)}, "Temperature", "10.0.0.1", parser, logger)
	if ok {
		t.Error("sensor missing Location should be skipped")
	}

	_, ok = buildSensor(models.RawSensor{Location: "node0", Timestamp: "2024-01-01T00:00:00Z", Value: nil}, "Temperature", "10.0.0.1", parser, logger)
	if ok {
		t.Error("sensor missing Value should be skipped")
	}
}
