// Package observability is the ambient metrics surface shared by every
// component: subscription reconcile counts, ingest accept/reject counts,
// lane queue depth, sampling drops, dedup collapses, bus delivery results,
// and skew substitutions. Adapted from the example pack's PromObs: a flat
// struct of already-registered collectors behind a small API.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus collector set for the relay.
type Metrics struct {
	SubscriptionsCreated  prometheus.Counter
	SubscriptionsRemoved  prometheus.Counter
	SubscriptionsKept     prometheus.Counter
	EndpointFailures      prometheus.Counter
	IngestAccepted        prometheus.Counter
	IngestRejected        prometheus.Counter
	LaneQueueDepth        *prometheus.GaugeVec
	SamplingDrops         prometheus.Counter
	DedupCollapses        prometheus.Counter
	BusDeliverySuccesses  prometheus.Counter
	BusDeliveryFailures   prometheus.Counter
	SkewSubstitutions     prometheus.Counter
}

var (
	instanceOnce sync.Once
	instance     *Metrics
)

// New returns the process-wide metric set, constructing and registering it
// against the default Prometheus registry on the first call. Later calls
// return the same instance, so it is safe to call from every component that
// needs metrics without coordinating a single call site.
func New() *Metrics {
	instanceOnce.Do(func() {
		instance = build()
	})
	return instance
}

func build() *Metrics {
	m := &Metrics{
		SubscriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_subscriptions_created_total",
			Help: "Subscriptions created across all reconcile cycles.",
		}),
		SubscriptionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_subscriptions_removed_total",
			Help: "Subscriptions removed across all reconcile cycles.",
		}),
		SubscriptionsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_subscriptions_kept_total",
			Help: "Subscriptions left unchanged across all reconcile cycles.",
		}),
		EndpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_endpoint_failures_total",
			Help: "Endpoints that failed to connect, list, or converge during a cycle.",
		}),
		IngestAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_ingest_accepted_total",
			Help: "POST requests accepted by the ingest listener.",
		}),
		IngestRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_ingest_rejected_total",
			Help: "Requests rejected by the ingest listener (method or length).",
		}),
		LaneQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmcrelay_lane_queue_depth",
			Help: "Number of payloads currently queued per lane.",
		}, []string{"lane"}),
		SamplingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_sampling_drops_total",
			Help: "Telemetry events dropped by per-client sampling.",
		}),
		DedupCollapses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_dedup_collapses_total",
			Help: "Duplicate SensorName samples collapsed within a single payload.",
		}),
		BusDeliverySuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_bus_delivery_success_total",
			Help: "Records the bus confirmed delivered.",
		}),
		BusDeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_bus_delivery_failure_total",
			Help: "Records the bus failed to deliver.",
		}),
		SkewSubstitutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmcrelay_clock_skew_substitutions_total",
			Help: "Timestamps replaced with wall-clock due to parse failure or skew.",
		}),
	}

	prometheus.MustRegister(
		m.SubscriptionsCreated, m.SubscriptionsRemoved, m.SubscriptionsKept,
		m.EndpointFailures, m.IngestAccepted, m.IngestRejected, m.LaneQueueDepth,
		m.SamplingDrops, m.DedupCollapses, m.BusDeliverySuccesses, m.BusDeliveryFailures,
		m.SkewSubstitutions,
	)
	return m
}

// ServeHTTP runs a /metrics endpoint on addr until ctx is cancelled. It is a
// separate port from the ingest listener, per the ambient observability
// contract.
func ServeHTTP(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
