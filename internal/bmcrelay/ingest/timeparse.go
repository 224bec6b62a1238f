package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
)

// SkewParser parses ISO-8601 timestamps to epoch milliseconds, substituting
// wall-clock when parsing fails or the parsed value is implausibly far from
// now, and throttling the resulting warning to at most once per source per
// 24 hours.
type SkewParser struct {
	limit  time.Duration
	logger *slog.Logger

	// Metrics is nil unless the caller wires it after construction; every
	// increment checks for nil first.
	Metrics *observability.Metrics

	mu       sync.Mutex
	lastWarn map[string]time.Time
}

// NewSkewParser creates a SkewParser with the given clock-skew limit.
func NewSkewParser(limit time.Duration, logger *slog.Logger) *SkewParser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SkewParser{limit: limit, logger: logger, lastWarn: make(map[string]time.Time)}
}

// Parse converts raw into epoch milliseconds, applying the clock-skew check.
// source identifies the warning throttle bucket (typically the client IP).
// This is for telemetry sensor timestamps only; other record families use
// ParseTimestamp, which skips the skew check.
func (p *SkewParser) Parse(source, raw string) int64 {
	now := time.Now()

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.warn(source, "ingest: timestamp parse failed, substituting wall-clock", "raw", raw, "error", err.Error())
		p.incSubstitution()
		return epochMillis(now)
	}

	if d := t.Sub(now); d > p.limit || d < -p.limit {
		p.warn(source, "ingest: timestamp skew exceeds limit, substituting wall-clock",
			"raw", raw, "skew", d.String(), "limit", p.limit.String())
		p.incSubstitution()
		return epochMillis(now)
	}

	return epochMillis(t)
}

// ParseTimestamp converts raw into epoch milliseconds without the skew
// check: a parse failure still falls back to wall-clock (a record needs
// some timestamp), but a timestamp that is merely old or skewed, as a
// legitimately-delayed event's EventTimestamp can be, is passed through
// unchanged.
func (p *SkewParser) ParseTimestamp(source, raw string) int64 {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.warn(source, "ingest: timestamp parse failed, substituting wall-clock", "raw", raw, "error", err.Error())
		p.incSubstitution()
		return epochMillis(time.Now())
	}
	return epochMillis(t)
}

func (p *SkewParser) incSubstitution() {
	if p.Metrics != nil {
		p.Metrics.SkewSubstitutions.Inc()
	}
}

func (p *SkewParser) warn(source, msg string, args ...any) {
	p.mu.Lock()
	last, seen := p.lastWarn[source]
	due := !seen || time.Since(last) >= 24*time.Hour
	if due {
		p.lastWarn[source] = time.Now()
	}
	p.mu.Unlock()

	if due {
		p.logger.Warn(msg, append([]any{"source", source}, args...)...)
	}
}

func epochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
