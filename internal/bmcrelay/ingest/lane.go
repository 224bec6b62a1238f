package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cray-hpc/bmcrelay/hostresolve"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
	"github.com/cray-hpc/bmcrelay/models"
)

const (
	pathRedfish   = "/redfish"
	pathSlingshot = "/slingshot"

	healthMessagePrefix = "CrayFabricHealth"
)

// LaneConfig carries everything one Lane needs. Index, Input and Next belong
// to this lane; Producer, Resolver, Alerts, Dead and Metrics are used as
// given, so lanes configured with the same values share them.
type LaneConfig struct {
	Index        int
	Input        <-chan Payload
	Next         chan<- Payload // forward the shutdown sentinel here; nil for the last lane
	Producer     Producer
	Resolver     *hostresolve.Resolver
	Cluster      string
	TopicPrefix  string
	SamplePeriod time.Duration
	SkewLimit    time.Duration
	Alerts       io.Writer // nil disables alerts_file mirroring
	Logger       *slog.Logger
	Dead         chan<- int // reports Index here if the lane's goroutine panics-recovers and exits

	// Metrics is nil unless the caller wires it; every increment checks for
	// nil first.
	Metrics *observability.Metrics
}

// Lane is one worker: it owns a consumer of its input channel, a bus
// producer session, and lane-local sampling/dedup state.
type Lane struct {
	cfg     LaneConfig
	sampler *Sampler
	parser  *SkewParser
	logger  *slog.Logger
}

// NewLane constructs a Lane from cfg.
func NewLane(cfg LaneConfig) *Lane {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	sampler := NewSampler()
	parser := NewSkewParser(cfg.SkewLimit, logger)
	sampler.Metrics = cfg.Metrics
	parser.Metrics = cfg.Metrics

	return &Lane{
		cfg:     cfg,
		sampler: sampler,
		parser:  parser,
		logger:  logger,
	}
}

// Run consumes cfg.Input until a shutdown sentinel arrives or the channel is
// closed. A single decode/processing panic is recovered, logged, and
// reported to cfg.Dead so the listener can restart this lane; Run then
// returns (it does not attempt to keep consuming after a panic).
func (l *Lane) Run() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ingest: lane panicked, exiting", "lane", l.cfg.Index, "panic", r)
			if l.cfg.Dead != nil {
				l.cfg.Dead <- l.cfg.Index
			}
		}
	}()

	for payload := range l.cfg.Input {
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.LaneQueueDepth.WithLabelValues(strconv.Itoa(l.cfg.Index)).Set(float64(len(l.cfg.Input)))
		}
		if payload.Shutdown {
			if l.cfg.Next != nil {
				l.cfg.Next <- Payload{Shutdown: true}
			}
			return
		}
		l.process(payload)
	}
}

func (l *Lane) process(p Payload) {
	var envelope models.EventEnvelope
	if err := json.Unmarshal(p.Body, &envelope); err != nil {
		l.logger.Error("ingest: malformed payload, dropped", "client_ip", p.ClientIP, "error", err.Error())
		return
	}

	switch p.Path {
	case pathRedfish:
		l.processRedfish(envelope, p.ClientIP)
	case pathSlingshot:
		l.processSlingshot(envelope, p.ClientIP)
	default:
		l.logger.Warn("ingest: unknown path, dropped", "path", p.Path, "client_ip", p.ClientIP)
	}
}

func (l *Lane) processRedfish(envelope models.EventEnvelope, clientIP string) {
	now := time.Now()
	location := l.cfg.Resolver.Resolve(clientIP)

	for _, ev := range envelope.Events {
		if strings.HasPrefix(ev.MessageId, telemetryMessagePrefix) {
			records := ProcessTelemetry(ev, clientIP, l.cfg.Cluster, now, l.cfg.SamplePeriod, l.sampler, l.parser, l.logger)
			for _, rec := range records {
				topic := l.cfg.TopicPrefix + "craytelemetry"
				if err := l.cfg.Producer.Emit(topic, rec.SensorName, rec); err != nil {
					l.logger.Error("ingest: emit failed", "topic", topic, "error", err.Error())
				}
			}
			continue
		}

		rec, ok := ProcessGeneric(ev, location, l.cfg.Cluster, l.parser, l.logger)
		if !ok {
			continue
		}
		topic := l.cfg.TopicPrefix + "crayevents"
		if err := l.cfg.Producer.Emit(topic, rec.MessageId, rec); err != nil {
			l.logger.Error("ingest: emit failed", "topic", topic, "error", err.Error())
		}
		if l.cfg.Alerts != nil {
			_, _ = io.WriteString(l.cfg.Alerts, AlertLine(rec, now)+"\n")
		}
	}
}

func (l *Lane) processSlingshot(envelope models.EventEnvelope, clientIP string) {
	location := l.cfg.Resolver.Resolve(clientIP)

	for _, ev := range envelope.Events {
		if !strings.HasPrefix(ev.MessageId, healthMessagePrefix) {
			l.logger.Debug("ingest: non-health message on /slingshot, dropped", "message_id", ev.MessageId)
			continue
		}

		rec, ok := ProcessHealth(ev, location, l.cfg.Cluster, l.parser, l.logger)
		if !ok {
			continue
		}
		const topic = "crayfabrichealth"
		if err := l.cfg.Producer.Emit(topic, rec.MessageId, rec); err != nil {
			l.logger.Error("ingest: emit failed", "topic", topic, "error", err.Error())
		}
	}
}
