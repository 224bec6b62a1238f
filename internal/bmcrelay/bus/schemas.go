package bus

// The three Avro schemas backing the relay's outbound record families.
// Field names and types match the bus contract exactly so a
// schema-registry-aware consumer decodes the same shape a lane produced.
const (
	telemetrySchemaJSON = `{
  "type": "record", "name": "RedfishCrayOemSensors", "namespace": "bmcrelay",
  "fields": [
    {"name": "timestamp", "type": "long"},
    {"name": "Location", "type": "string"},
    {"name": "Index", "type": "int"},
    {"name": "ParentalContext", "type": "string"},
    {"name": "ParentalIndex", "type": "int"},
    {"name": "PhysicalContext", "type": "string"},
    {"name": "PhysicalSubContext", "type": "string"},
    {"name": "DeviceSpecificContext", "type": "string"},
    {"name": "EventName", "type": "string"},
    {"name": "Value", "type": "double"},
    {"name": "SensorName", "type": "string"},
    {"name": "cluster", "type": "string"}
  ]
}`

	genericEventSchemaJSON = `{
  "type": "record", "name": "RedfishCrayEvents", "namespace": "bmcrelay",
  "fields": [
    {"name": "timestamp", "type": "long"},
    {"name": "Location", "type": "string"},
    {"name": "MessageId", "type": "string"},
    {"name": "Severity", "type": "string"},
    {"name": "Message", "type": "string"},
    {"name": "OriginOfCondition", "type": "string"},
    {"name": "syslog_level", "type": "string"},
    {"name": "cluster", "type": "string"}
  ]
}`

	healthSchemaJSON = `{
  "type": "record", "name": "CrayFabricHealth", "namespace": "bmcrelay",
  "fields": [
    {"name": "timestamp", "type": "long"},
    {"name": "Location", "type": "string"},
    {"name": "MessageId", "type": "string"},
    {"name": "message", "type": "string"},
    {"name": "Group", "type": "int"},
    {"name": "Switch", "type": "int"},
    {"name": "Port", "type": "int"},
    {"name": "Severity", "type": "string"},
    {"name": "PhysicalContext", "type": "string"},
    {"name": "cluster", "type": "string"}
  ]
}`
)
