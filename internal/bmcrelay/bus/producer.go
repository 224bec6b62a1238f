// Package bus is a schema-registry-aware Avro encoder paired with an
// asynchronous Kafka publisher, one topic per record family (telemetry,
// generic events, fabric health).
//
// emit/poll/flush map onto kafka-go's Writer: emit is
// WriteMessages submitted from a new goroutine per call so the caller
// never blocks; poll is realized by the Writer's own Completion
// callback, invoked asynchronously as deliveries resolve; flush is
// Writer.Close, which drains pending writes before returning.
package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"github.com/segmentio/kafka-go"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
)

const confluentMagicByte = 0x0

// RegistryClient is the subset of srclient's SchemaRegistryClient the
// producer needs, declared locally so tests can inject a fake registry.
type RegistryClient interface {
	CreateSchema(subject string, schema string, schemaType srclient.SchemaType, references ...srclient.Reference) (*srclient.Schema, error)
}

type recordCodec struct {
	schemaID int
	schema   avro.Schema
}

// encode wraps an Avro-encoded value in the Confluent wire format: magic
// byte + 4-byte big-endian schema ID + Avro binary body.
func (c *recordCodec) encode(value any) ([]byte, error) {
	body, err := avro.Marshal(c.schema, value)
	if err != nil {
		return nil, fmt.Errorf("bus: avro encode: %w", err)
	}
	out := make([]byte, 5+len(body))
	out[0] = confluentMagicByte
	binary.BigEndian.PutUint32(out[1:5], uint32(c.schemaID))
	copy(out[5:], body)
	return out, nil
}

// Producer owns one kafka.Writer and one Avro codec per topic, keyed by the
// concrete (already-prefixed) topic name.
type Producer struct {
	writers map[string]*kafka.Writer
	codecs  map[string]*recordCodec
	logger  *slog.Logger

	// Metrics is nil unless the caller wires it after construction; every
	// increment checks for nil first.
	Metrics *observability.Metrics
}

// Config names the three concrete topics this process will publish to, the
// Kafka bootstrap brokers, and the schema-registry base URL.
type Config struct {
	Brokers            []string
	SchemaRegistryURL  string
	TelemetryTopic     string
	GenericEventsTopic string
	HealthTopic        string
}

// New constructs a Producer, registering all three schemas against the
// registry and opening one async kafka.Writer per topic. registry defaults
// to a real srclient client against cfg.SchemaRegistryURL when nil.
func New(cfg Config, registry RegistryClient, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if registry == nil {
		registry = srclient.CreateSchemaRegistryClient(cfg.SchemaRegistryURL)
	}

	p := &Producer{
		writers: make(map[string]*kafka.Writer),
		codecs:  make(map[string]*recordCodec),
		logger:  logger,
	}

	families := []struct {
		topic      string
		subject    string
		schemaJSON string
	}{
		{cfg.TelemetryTopic, cfg.TelemetryTopic + "-value", telemetrySchemaJSON},
		{cfg.GenericEventsTopic, cfg.GenericEventsTopic + "-value", genericEventSchemaJSON},
		{cfg.HealthTopic, cfg.HealthTopic + "-value", healthSchemaJSON},
	}

	for _, f := range families {
		codec, err := p.registerCodec(registry, f.subject, f.schemaJSON)
		if err != nil {
			return nil, fmt.Errorf("bus: register %s: %w", f.topic, err)
		}
		p.codecs[f.topic] = codec
		p.writers[f.topic] = p.newWriter(cfg.Brokers, f.topic)
	}

	return p, nil
}

func (p *Producer) registerCodec(registry RegistryClient, subject, schemaJSON string) (*recordCodec, error) {
	parsed, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	reg, err := registry.CreateSchema(subject, schemaJSON, srclient.Avro)
	if err != nil {
		return nil, fmt.Errorf("register schema: %w", err)
	}
	return &recordCodec{schemaID: reg.ID(), schema: parsed}, nil
}

func (p *Producer) newWriter(brokers []string, topic string) *kafka.Writer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			p.logger.Error("bus: delivery failed", "topic", topic, "count", len(messages), "error", err.Error())
			if p.Metrics != nil {
				p.Metrics.BusDeliveryFailures.Add(float64(len(messages)))
			}
			return
		}
		p.logger.Debug("bus: delivery confirmed", "topic", topic, "count", len(messages))
		if p.Metrics != nil {
			p.Metrics.BusDeliverySuccesses.Add(float64(len(messages)))
		}
	}
	return w
}

// Emit submits value for asynchronous delivery to topic. It never blocks on
// the network; delivery results surface later through the writer's
// Completion callback.
func (p *Producer) Emit(topic, key string, value any) error {
	codec, ok := p.codecs[topic]
	if !ok {
		return fmt.Errorf("bus: no codec registered for topic %q", topic)
	}
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("bus: no writer for topic %q", topic)
	}

	payload, err := codec.encode(value)
	if err != nil {
		return err
	}

	msg := kafka.Message{Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}

	go func() {
		if err := writer.WriteMessages(context.Background(), msg); err != nil {
			p.logger.Error("bus: write failed", "topic", topic, "error", err.Error())
		}
	}()
	return nil
}

// Flush drains all pending writes across every topic's writer.
func (p *Producer) Flush() error {
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bus: close writer %s: %w", topic, err)
		}
	}
	return firstErr
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
