package ingest

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cray-hpc/bmcrelay/hostresolve"
)

type fakeProducer struct {
	mu      sync.Mutex
	emitted []emittedRecord
}

type emittedRecord struct {
	topic string
	key   string
	value any
}

func (f *fakeProducer) Emit(topic, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emittedRecord{topic, key, value})
	return nil
}

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emitted)
}

func noLookupResolver() *hostresolve.Resolver {
	return hostresolve.New('x', func(s string) ([]string, error) { return nil, fmt.Errorf("no lookup in test") })
}

func TestLaneProcessRedfishTelemetryEmitsToPrefixedTopic(t *testing.T) {
	producer := &fakeProducer{}
	lane := NewLane(LaneConfig{
		Producer:     producer,
		Resolver:     noLookupResolver(),
		Cluster:      "mycluster",
		TopicPrefix:  "site-",
		SamplePeriod: time.Second,
		SkewLimit:    24 * time.Hour,
		Logger:       slog.New(slog.NewTextHandler(noopWriter{}, nil)),
	})

	body := []byte(`{"Events":[{"MessageId":"CrayTelemetry.Temperature","Oem":{"Sensors":[{"Location":"node0","Timestamp":"2024-01-01T00:00:00Z","Value":42.0}]}}]}`)
	lane.process(Payload{Path: pathRedfish, ClientIP: "10.0.0.1", Body: body})

	if producer.count() != 1 {
		t.Fatalf("emitted %d records, want 1", producer.count())
	}
	if producer.emitted[0].topic != "site-craytelemetry" {
		t.Errorf("topic = %q, want site-craytelemetry", producer.emitted[0].topic)
	}
}

func TestLaneProcessRedfishGenericEmitsToEventsTopic(t *testing.T) {
	producer := &fakeProducer{}
	lane := NewLane(LaneConfig{
		Producer:    producer,
		Resolver:    noLookupResolver(),
		Cluster:     "mycluster",
		TopicPrefix: "",
		SkewLimit:   24 * time.Hour,
		Logger:      slog.New(slog.NewTextHandler(noopWriter{}, nil)),
	})

	body := []byte(`{"Events":[{"MessageId":"Foo.Bar","EventTimestamp":"2024-01-01T00:00:00Z","Severity":"Critical"}]}`)
	lane.process(Payload{Path: pathRedfish, ClientIP: "10.0.0.1", Body: body})

	if producer.count() != 1 || producer.emitted[0].topic != "crayevents" {
		t.Fatalf("emitted = %+v, want one record on crayevents", producer.emitted)
	}
}

func TestLaneProcessSlingshotHealthEmitsFixedTopic(t *testing.T) {
	producer := &fakeProducer{}
	lane := NewLane(LaneConfig{
		Producer:  producer,
		Resolver:  noLookupResolver(),
		Cluster:   "mycluster",
		SkewLimit: 24 * time.Hour,
		Logger:    slog.New(slog.NewTextHandler(noopWriter{}, nil)),
	})

	body := []byte(`{"Events":[{"MessageId":"CrayFabricHealth.LinkDown","Oem":{"Sensors":[{"Location":"sw0","Value":1}]}}]}`)
	lane.process(Payload{Path: pathSlingshot, ClientIP: "10.0.0.1", Body: body})

	if producer.count() != 1 || producer.emitted[0].topic != "crayfabrichealth" {
		t.Fatalf("emitted = %+v, want one record on crayfabrichealth", producer.emitted)
	}
}

func TestLaneProcessMalformedPayloadDropped(t *testing.T) {
	producer := &fakeProducer{}
	lane := NewLane(LaneConfig{
		Producer: producer,
		Resolver: noLookupResolver(),
		Logger:   slog.New(slog.NewTextHandler(noopWriter{}, nil)),
	})

	lane.process(Payload{Path: pathRedfish, ClientIP: "10.0.0.1", Body: []byte("not json")})
	if producer.count() != 0 {
		t.Errorf("emitted = %d, want 0 for malformed payload", producer.count())
	}
}

func TestLaneRunForwardsShutdownSentinel(t *testing.T) {
	in := make(chan Payload, 1)
	next := make(chan Payload, 1)
	lane := NewLane(LaneConfig{
		Input:    in,
		Next:     next,
		Producer: &fakeProducer{},
		Resolver: noLookupResolver(),
		Logger:   slog.New(slog.NewTextHandler(noopWriter{}, nil)),
	})

	in <- Payload{Shutdown: true}
	done := make(chan struct{})
	go func() { lane.Run(); close(done) }()

	select {
	case p := <-next:
		if !p.Shutdown {
			t.Error("forwarded payload should be a shutdown sentinel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded sentinel")
	}
	<-done
}
