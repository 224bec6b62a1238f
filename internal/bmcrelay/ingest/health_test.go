package ingest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/cray-hpc/bmcrelay/models"
)

func TestProcessHealthMapsFirstSensor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	parser := NewSkewParser(24*time.Hour, logger)

	ev := models.Event{
		MessageId:      "CrayFabricHealth.LinkDown",
		EventTimestamp: "2024-01-01T00:00:00Z",
		Oem: &models.Oem{Sensors: []models.RawSensor{
			{Location: "sw0", Value: floatPtr(1), PhysicalSubContext: "Critical", ParentalIndex: intPtr(2), Index: intPtr(3), SubIndex: intPtr(4), PhysicalContext: "Port"},
			{Location: "sw0-extra"},
		}},
	}

	rec, ok := ProcessHealth(ev, "sw0", "mycluster", parser, logger)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if rec.Group != 2 || rec.Switch != 3 || rec.Port != 4 {
		t.Errorf("Group/Switch/Port = %d/%d/%d, want 2/3/4", rec.Group, rec.Switch, rec.Port)
	}
	if rec.Severity != "Critical" {
		t.Errorf("Severity = %q, want Critical", rec.Severity)
	}
	if rec.Message != "1" {
		t.Errorf("Message = %q, want 1", rec.Message)
	}
}

func TestProcessHealthNoSensorsReturnsFalse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	parser := NewSkewParser(24*time.Hour, logger)

	_, ok := ProcessHealth(models.Event{MessageId: "CrayFabricHealth.X"}, "sw0", "mycluster", parser, logger)
	if ok {
		t.Error("expected ok=false with no sensors")
	}
}

func TestProcessHealthDefaultsMissingIndexesToZero(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	parser := NewSkewParser(24*time.Hour, logger)

	ev := models.Event{
		MessageId: "CrayFabricHealth.X",
		Oem:       &models.Oem{Sensors: []models.RawSensor{{Location: "sw0"}}},
	}
	rec, ok := ProcessHealth(ev, "sw0", "mycluster", parser, logger)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if rec.Group != 0 || rec.Switch != 0 || rec.Port != 0 {
		t.Errorf("Group/Switch/Port = %d/%d/%d, want 0/0/0", rec.Group, rec.Switch, rec.Port)
	}
}
