package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
	"github.com/cray-hpc/bmcrelay/models"
)

// EndpointClient is the subset of redfish.Session the reconciler consumes.
// Using an interface here — instead of importing the redfish package
// directly — lets tests inject a fake without opening real TLS sessions.
type EndpointClient interface {
	ListSubscriptions() ([]models.LiveSubscription, error)
	CreateSubscription(models.Subscription) (models.LiveSubscription, error)
	DeleteSubscription(handle string) error
	Close()
}

// Dialer opens an EndpointClient session against one endpoint.
type Dialer func(endpoint models.Endpoint, timeout time.Duration, retries int) (EndpointClient, error)

// Options configures a Reconciler.
type Options struct {
	NamespacePrefix     string
	PurgeUnrecognized   bool
	MaxWorkers          int
	SubscriptionTimeout time.Duration
	SubscriptionRetries int
}

func (o *Options) defaults() {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 16
	}
	if o.SubscriptionTimeout <= 0 {
		o.SubscriptionTimeout = 5 * time.Second
	}
}

// Reconciler drives one convergence cycle across a fleet of endpoints with
// bounded parallelism.
type Reconciler struct {
	opts   Options
	dial   Dialer
	logger *slog.Logger

	// Metrics is nil unless the caller wires it after construction; every
	// increment checks for nil first.
	Metrics *observability.Metrics
}

// New creates a Reconciler. dial is used as given and is not defaulted; the
// app package passes a redfish-backed dialer.
func New(opts Options, dial Dialer, logger *slog.Logger) *Reconciler {
	opts.defaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Reconciler{opts: opts, dial: dial, logger: logger}
}

// Run executes one reconcile cycle across every endpoint in parallel with
// bounded parallelism W = min(MaxWorkers, |endpoints|). When purge is true
// the desired set is treated as empty for every endpoint regardless of
// desiredByHost, realizing the fleet-wide purge cycle.
//
// An individual endpoint's failure (connect, list, or compare) is logged
// and does not abort the cycle; there is no retry within a cycle.
func (r *Reconciler) Run(ctx context.Context, endpoints []models.Endpoint, desiredByHost map[string][]models.Subscription, purge bool) {
	if len(endpoints) == 0 {
		return
	}

	workers := r.opts.MaxWorkers
	if workers > len(endpoints) {
		workers = len(endpoints)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for _, ep := range endpoints {
		ep := ep
		var desired []models.Subscription
		if !purge {
			desired = desiredByHost[ep.Hostname]
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.reconcileOne(ctx, ep, desired)
		}()
	}

	wg.Wait()
}

func (r *Reconciler) reconcileOne(ctx context.Context, ep models.Endpoint, desired []models.Subscription) {
	client, err := r.dial(ep, r.opts.SubscriptionTimeout, r.opts.SubscriptionRetries)
	if err != nil {
		r.logger.Debug("reconciler: endpoint unreachable", "hostname", ep.Hostname, "error", err.Error())
		r.incEndpointFailure()
		return
	}
	defer client.Close()

	live, err := client.ListSubscriptions()
	if err != nil {
		r.logger.Debug("reconciler: list subscriptions failed", "hostname", ep.Hostname, "error", err.Error())
		r.incEndpointFailure()
		return
	}

	plan := Converge(desired, live, r.opts.NamespacePrefix, r.opts.PurgeUnrecognized)

	removed, created := 0, 0
	for _, l := range plan.Remove {
		if err := client.DeleteSubscription(l.Handle); err != nil {
			r.logger.Warn("reconciler: delete subscription failed",
				"hostname", ep.Hostname, "context", l.Context, "error", err.Error())
			continue
		}
		removed++
	}
	for _, d := range plan.Add {
		if _, err := client.CreateSubscription(d); err != nil {
			r.logger.Warn("reconciler: create subscription failed",
				"hostname", ep.Hostname, "context", d.Context, "error", err.Error())
			continue
		}
		created++
	}

	if r.Metrics != nil {
		r.Metrics.SubscriptionsCreated.Add(float64(created))
		r.Metrics.SubscriptionsRemoved.Add(float64(removed))
		r.Metrics.SubscriptionsKept.Add(float64(len(desired) - len(plan.Add)))
	}

	if len(plan.Add) > 0 || len(plan.Remove) > 0 {
		r.logger.Info("reconciler: converged endpoint",
			"hostname", ep.Hostname, "added", len(plan.Add), "removed", len(plan.Remove))
	}
}

func (r *Reconciler) incEndpointFailure() {
	if r.Metrics != nil {
		r.Metrics.EndpointFailures.Inc()
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
