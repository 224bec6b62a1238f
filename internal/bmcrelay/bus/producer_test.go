package bus

import (
	"encoding/binary"
	"testing"

	"github.com/hamba/avro/v2"
	"github.com/cray-hpc/bmcrelay/models"
)

func TestTelemetryRecordRoundTrip(t *testing.T) {
	schema, err := avro.Parse(telemetrySchemaJSON)
	if err != nil {
		t.Fatalf("avro.Parse: %v", err)
	}
	codec := &recordCodec{schemaID: 7, schema: schema}

	rec := models.TelemetryRecord{
		Timestamp: 1700000000000, Location: "node0", Index: 1, ParentalContext: "Chassis",
		ParentalIndex: 0, PhysicalContext: "CPU", PhysicalSubContext: "Die",
		DeviceSpecificContext: "Core", EventName: "Temperature", Value: 42.5,
		SensorName: "node0-temp", Cluster: "mycluster",
	}

	wire, err := codec.encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if wire[0] != confluentMagicByte {
		t.Fatalf("magic byte = %d, want 0", wire[0])
	}
	if got := binary.BigEndian.Uint32(wire[1:5]); got != 7 {
		t.Fatalf("schema id in wire format = %d, want 7", got)
	}

	var decoded models.TelemetryRecord
	if err := avro.Unmarshal(schema, wire[5:], &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, rec)
	}
}

func TestGenericEventRecordRoundTrip(t *testing.T) {
	schema, err := avro.Parse(genericEventSchemaJSON)
	if err != nil {
		t.Fatalf("avro.Parse: %v", err)
	}
	codec := &recordCodec{schemaID: 3, schema: schema}

	rec := models.GenericEventRecord{
		Timestamp: 1700000000000, Location: "node0", MessageId: "Foo.Bar",
		Severity: "Critical", Message: "m", OriginOfCondition: "/x",
		SyslogLevel: "error", Cluster: "mycluster",
	}

	wire, err := codec.encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded models.GenericEventRecord
	if err := avro.Unmarshal(schema, wire[5:], &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, rec)
	}
}

func TestHealthRecordRoundTrip(t *testing.T) {
	schema, err := avro.Parse(healthSchemaJSON)
	if err != nil {
		t.Fatalf("avro.Parse: %v", err)
	}
	codec := &recordCodec{schemaID: 9, schema: schema}

	rec := models.HealthRecord{
		Timestamp: 1700000000000, Location: "sw0", MessageId: "CrayFabricHealth.X",
		Message: "1", Group: 2, Switch: 3, Port: 4, Severity: "Critical",
		PhysicalContext: "Port", Cluster: "mycluster",
	}

	wire, err := codec.encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded models.HealthRecord
	if err := avro.Unmarshal(schema, wire[5:], &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, rec)
	}
}
