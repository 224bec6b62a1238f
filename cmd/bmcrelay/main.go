// Command bmcrelay is the main BMC telemetry relay binary.
//
// It loads YAML configuration from a path given by flag or environment
// variable, reconciles Redfish event subscriptions across the configured
// fleet on a fixed cadence, and relays pushed telemetry/event/health
// payloads onto the bus until interrupted (SIGINT/SIGTERM) or told to purge
// and exit (SIGUSR2).
//
// Usage:
//
//	bmcrelay [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bmcrelay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel    string
		logFmt      string
		configPath  string
		metricsAddr string
		brokersCSV  string
		registryURL string
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&configPath, "config.path", envOrDefault("BMCRELAY_CONFIG_PATH", "/etc/bmcrelay/relay.yaml"), "Path to the relay YAML configuration document")
	flag.StringVar(&metricsAddr, "metrics.listen", envOrDefault("BMCRELAY_METRICS_ADDR", "0.0.0.0:9128"), "Listen address for the /metrics endpoint")
	flag.StringVar(&brokersCSV, "bus.brokers", envOrDefault("BMCRELAY_KAFKA_BROKERS", "localhost:9092"), "Comma-separated Kafka bootstrap brokers")
	flag.StringVar(&registryURL, "bus.schema-registry", envOrDefault("BMCRELAY_SCHEMA_REGISTRY_URL", "http://localhost:8081"), "Schema-registry base URL")

	flag.Parse()

	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	cfg := app.Config{
		ConfigPath:        configPath,
		MetricsAddr:       metricsAddr,
		KafkaBrokers:      splitCSV(brokersCSV),
		SchemaRegistryURL: registryURL,
	}

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("bmcrelay: running",
		"config", configPath,
		"metrics", metricsAddr,
	)

	// Either an external SIGINT/SIGTERM or the app stopping itself (a USR2
	// purge-then-exit) ends the run.
	select {
	case <-ctx.Done():
		logger.Info("bmcrelay: received shutdown signal")
	case <-application.Done():
		logger.Info("bmcrelay: purge cycle complete, exiting")
	}

	application.Stop()
	return nil
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
