package models

// TelemetryRecord is the RedfishCrayOemSensors record, one per distinct
// SensorName surviving per-payload dedup.
type TelemetryRecord struct {
	Timestamp             int64   `json:"timestamp" avro:"timestamp"`
	Location              string  `json:"Location" avro:"Location"`
	Index                 int     `json:"Index" avro:"Index"`
	ParentalContext       string  `json:"ParentalContext" avro:"ParentalContext"`
	ParentalIndex         int     `json:"ParentalIndex" avro:"ParentalIndex"`
	PhysicalContext       string  `json:"PhysicalContext" avro:"PhysicalContext"`
	PhysicalSubContext    string  `json:"PhysicalSubContext" avro:"PhysicalSubContext"`
	DeviceSpecificContext string  `json:"DeviceSpecificContext" avro:"DeviceSpecificContext"`
	EventName             string  `json:"EventName" avro:"EventName"`
	Value                 float64 `json:"Value" avro:"Value"`
	SensorName            string  `json:"SensorName" avro:"SensorName"`
	Cluster               string  `json:"cluster" avro:"cluster"`
}

// GenericEventRecord is the RedfishCrayEvents record emitted for any event
// not classified as telemetry.
type GenericEventRecord struct {
	Timestamp         int64  `json:"timestamp" avro:"timestamp"`
	Location          string `json:"Location" avro:"Location"`
	MessageId         string `json:"MessageId" avro:"MessageId"`
	Severity          string `json:"Severity" avro:"Severity"`
	Message           string `json:"Message" avro:"Message"`
	OriginOfCondition string `json:"OriginOfCondition" avro:"OriginOfCondition"`
	SyslogLevel       string `json:"syslog_level" avro:"syslog_level"`
	Cluster           string `json:"cluster" avro:"cluster"`
}

// HealthRecord is the CrayFabricHealth record emitted for fabric-health
// events arriving on the /slingshot path.
type HealthRecord struct {
	Timestamp       int64  `json:"timestamp" avro:"timestamp"`
	Location        string `json:"Location" avro:"Location"`
	MessageId       string `json:"MessageId" avro:"MessageId"`
	Message         string `json:"message" avro:"message"`
	Group           int    `json:"Group" avro:"Group"`
	Switch          int    `json:"Switch" avro:"Switch"`
	Port            int    `json:"Port" avro:"Port"`
	Severity        string `json:"Severity" avro:"Severity"`
	PhysicalContext string `json:"PhysicalContext" avro:"PhysicalContext"`
	Cluster         string `json:"cluster" avro:"cluster"`
}
