// Package app wires every component into the running relay process and
// owns its lifecycle: load config, start the reconciler's scheduler, start
// the ingest listener and its lanes, start the metrics server, and handle
// signals for reload and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cray-hpc/bmcrelay/hostresolve"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/alerts"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/bus"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/config"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/ingest"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/reconciler"
	"github.com/cray-hpc/bmcrelay/models"
	"github.com/cray-hpc/bmcrelay/redfish"
)

// Config holds top-level settings for the relay process.
type Config struct {
	// ConfigPath is the path to the relay's YAML configuration document.
	ConfigPath string

	// MetricsAddr is the address for the /metrics endpoint, separate from
	// the ingest listener's own address.
	MetricsAddr string

	// KafkaBrokers are the bootstrap brokers for the bus producer.
	KafkaBrokers []string

	// SchemaRegistryURL is the base URL of the schema-registry service.
	SchemaRegistryURL string

	// Registry is injected for tests; nil uses the real srclient-backed
	// registry client built from SchemaRegistryURL.
	Registry bus.RegistryClient
}

// App orchestrates the full relay pipeline. Create one with New, start it
// with Start, and stop it with Stop (also after the context passed to Start
// has been cancelled).
type App struct {
	cfg    Config
	logger *slog.Logger

	loaded  *config.LoadedConfig
	metrics *observability.Metrics

	resolver   *hostresolve.Resolver
	reconciler *reconciler.Reconciler
	sched      *reconciler.Scheduler
	producer   *bus.Producer
	alertsW    *alerts.Writer
	listener   *ingest.Listener

	laneChans []chan ingest.Payload
	deadCh    chan int

	cancel context.CancelFunc
	done   <-chan struct{}
	wg     sync.WaitGroup
}

// Done reports when the app has stopped itself, e.g. after a USR2 purge
// cycle. The caller's run loop should select on Done alongside its own
// SIGINT/SIGTERM context and call Stop once either fires.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// New constructs an App. It does not start anything — call Start for that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &App{cfg: cfg, logger: logger}
}

// Start loads configuration, constructs every pipeline stage, and launches
// their goroutines. The caller must eventually call Stop.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("app: loading configuration", "path", a.cfg.ConfigPath)
	loaded, err := config.Load(a.cfg.ConfigPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.loaded = loaded

	a.metrics = observability.New()
	a.resolver = hostresolve.New('x', nil)

	cluster := hostresolve.ClusterName(mustHostname())

	if !loaded.General.NoKafka {
		producer, err := bus.New(bus.Config{
			Brokers:            a.cfg.KafkaBrokers,
			SchemaRegistryURL:  a.cfg.SchemaRegistryURL,
			TelemetryTopic:     loaded.General.TopicPrefix + "craytelemetry",
			GenericEventsTopic: loaded.General.TopicPrefix + "crayevents",
			HealthTopic:        "crayfabrichealth",
		}, a.cfg.Registry, a.logger)
		if err != nil {
			return fmt.Errorf("app: bus producer: %w", err)
		}
		producer.Metrics = a.metrics
		a.producer = producer
	}

	if loaded.General.LogAlerts && loaded.General.LogAlertsFile != "" {
		w, err := alerts.Open(loaded.General.LogAlertsFile, 0, 5, a.logger)
		if err != nil {
			return fmt.Errorf("app: alerts writer: %w", err)
		}
		a.alertsW = w
	}

	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = pipeCtx.Done()

	a.startReconciler(pipeCtx, loaded)
	if err := a.startIngest(pipeCtx, loaded, cluster); err != nil {
		return fmt.Errorf("app: ingest: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := observability.ServeHTTP(pipeCtx, a.cfg.MetricsAddr, a.logger); err != nil {
			a.logger.Error("app: metrics server exited", "error", err.Error())
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleSignals(pipeCtx)
	}()

	a.logger.Info("app: pipeline running",
		"workers", loaded.General.WorkerCount,
		"address", loaded.General.Address,
		"port", loaded.General.Port,
	)
	return nil
}

func (a *App) startReconciler(ctx context.Context, loaded *config.LoadedConfig) {
	dial := func(ep models.Endpoint, timeout time.Duration, retries int) (reconciler.EndpointClient, error) {
		return redfish.Open(ep.Hostname, redfish.Credentials{Username: ep.Username, Password: ep.Password}, timeout, retries)
	}

	a.reconciler = reconciler.New(reconciler.Options{
		NamespacePrefix:     loaded.General.ContextPrefix,
		PurgeUnrecognized:   loaded.General.PurgeUnrecognized,
		MaxWorkers:          loaded.General.MaxWorkers,
		SubscriptionTimeout: loaded.General.SubscriptionTimeout,
		SubscriptionRetries: loaded.General.SubscriptionRetries,
	}, dial, a.logger)
	a.reconciler.Metrics = a.metrics

	endpoints := config.Endpoints(loaded)
	desired := config.DesiredSubscriptions(loaded, loaded.General.Address, loaded.General.Port)

	a.sched = reconciler.NewScheduler(loaded.General.RefreshInterval, func(cycleCtx context.Context) {
		a.reconciler.Run(cycleCtx, endpoints, desired, false)
	}, a.logger)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Run(ctx)
	}()
}

func (a *App) startIngest(ctx context.Context, loaded *config.LoadedConfig, cluster string) error {
	lanes := loaded.General.WorkerCount
	if lanes <= 0 {
		lanes = 8
	}

	a.deadCh = make(chan int, lanes)
	a.laneChans = make([]chan ingest.Payload, lanes)
	// Every lane's channel exists before the first lane is built, so lane i
	// can be handed lane i+1's channel as its Next. A restart replaces the
	// restarted lane's channel with a fresh one.
	for i := range a.laneChans {
		a.laneChans[i] = make(chan ingest.Payload, 256)
	}
	started := make([]bool, lanes)

	startLane := func(i int) chan<- ingest.Payload {
		ch := a.laneChans[i]
		if started[i] {
			ch = make(chan ingest.Payload, 256)
			a.laneChans[i] = ch
		}
		started[i] = true

		var next chan<- ingest.Payload
		if i+1 < lanes {
			next = a.laneChans[i+1]
		}

		lane := ingest.NewLane(ingest.LaneConfig{
			Index:        i,
			Input:        ch,
			Next:         next,
			Producer:     a.producerOrNoop(),
			Resolver:     a.resolver,
			Cluster:      cluster,
			TopicPrefix:  loaded.General.TopicPrefix,
			SamplePeriod: loaded.General.SamplePeriod,
			SkewLimit:    5 * time.Second,
			Alerts:       a.alertsWriterOrNil(),
			Logger:       a.logger,
			Dead:         a.deadCh,
			Metrics:      a.metrics,
		})

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			lane.Run()
		}()
		return ch
	}

	addr := fmt.Sprintf("%s:%d", loaded.General.Address, loaded.General.Port)
	a.listener = ingest.New(addr, lanes, startLane, a.logger)
	a.listener.Metrics = a.metrics

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case idx := <-a.deadCh:
				a.listener.ReportDeadLane(idx)
			case <-ctx.Done():
				return
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.listener.Start(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("app: ingest listener exited", "error", err.Error())
		}
	}()

	return nil
}

// Stop performs a graceful shutdown: cancel every component's context, stop
// accepting new HTTP requests, drain the lane chain via the sentinel, and
// flush the bus.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}

	if a.listener != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.listener.Stop(ctx)
		cancel()
	}

	if len(a.laneChans) > 0 && a.laneChans[0] != nil {
		a.laneChans[0] <- ingest.Payload{Shutdown: true}
	}

	a.wg.Wait()

	if a.producer != nil {
		_ = a.producer.Flush()
	}
	if a.alertsW != nil {
		_ = a.alertsW.Close()
	}

	a.logger.Info("app: shutdown complete")
}

// ReloadAndReconcile reloads configuration and triggers an out-of-cycle
// reconcile, realizing the HUP/USR1 signal contract.
func (a *App) ReloadAndReconcile(ctx context.Context) error {
	a.logger.Info("app: reloading configuration")
	loaded, err := config.Load(a.cfg.ConfigPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload: %w", err)
	}
	a.loaded = loaded

	endpoints := config.Endpoints(loaded)
	desired := config.DesiredSubscriptions(loaded, loaded.General.Address, loaded.General.Port)
	a.reconciler.Run(ctx, endpoints, desired, false)
	return nil
}

// Purge runs one purge cycle (desired set empty for every endpoint),
// realizing the USR2 signal contract. The caller is responsible for exiting
// the process afterward.
func (a *App) Purge(ctx context.Context) {
	a.logger.Info("app: running purge cycle")
	endpoints := config.Endpoints(a.loaded)
	a.reconciler.Run(ctx, endpoints, nil, true)
}

// handleSignals implements the signal contract: HUP/USR1 reload
// configuration and trigger an out-of-cycle reconcile; USR2 runs one purge
// cycle and then stops the app. Handling is edge-triggered — a signal
// received while the prior one is still being handled is simply not
// delivered again until the channel is drained, so overlapping requests
// collapse rather than queue.
func (a *App) handleSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP, syscall.SIGUSR1:
				if err := a.ReloadAndReconcile(ctx); err != nil {
					a.logger.Error("app: reload failed", "signal", sig.String(), "error", err.Error())
				}
			case syscall.SIGUSR2:
				a.Purge(ctx)
				if a.cancel != nil {
					a.cancel()
				}
				return
			}
		}
	}
}

func (a *App) producerOrNoop() ingest.Producer {
	if a.producer != nil {
		return a.producer
	}
	return noopProducer{logger: a.logger}
}

func (a *App) alertsWriterOrNil() io.Writer {
	if a.alertsW == nil {
		return nil
	}
	return a.alertsW
}

// noopProducer satisfies ingest.Producer when the bus is disabled
// (general.no_kafka), logging what would have been emitted instead of
// publishing it.
type noopProducer struct {
	logger *slog.Logger
}

func (p noopProducer) Emit(topic, key string, value any) error {
	p.logger.Debug("app: bus disabled, dropping record", "topic", topic, "key", key)
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func mustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "bmcrelay"
	}
	return h
}
