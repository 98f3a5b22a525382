package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Reporter logs a snapshot of the collector at a fixed interval
type Reporter struct {
	collector *Collector
	interval  time.Duration
	logger    *slog.Logger
	backlog   func() (outbound, inbound int)
}

// ReporterOption configures the Reporter
type ReporterOption func(*Reporter)

// WithReporterLogger sets the logger
func WithReporterLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithBacklog adds queue depths to every record
func WithBacklog(fn func() (outbound, inbound int)) ReporterOption {
	return func(r *Reporter) {
		r.backlog = fn
	}
}

// NewReporter creates a Reporter
func NewReporter(collector *Collector, interval time.Duration, options ...ReporterOption) *Reporter {
	r := &Reporter{
		collector: collector,
		interval:  interval,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Run logs until ctx is done. A non-positive interval returns immediately.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Report(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Report writes one stats record
func (r *Reporter) Report(ctx context.Context) {
	summary := r.collector.Snapshot()

	names := make([]string, 0, len(summary.Stages))
	for name := range summary.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := []any{slog.Duration("uptime", summary.Uptime.Round(time.Second))}
	for _, name := range names {
		s := summary.Stages[name]
		attrs = append(attrs, slog.Group(name,
			"received", s.Received,
			"delivered", s.Delivered,
			"retried", s.Retried,
			"dropped", s.Dropped,
			"source_errors", s.SourceErrors,
			"reopened", s.Reopened,
		))
	}

	if r.backlog != nil {
		outbound, inbound := r.backlog()
		attrs = append(attrs, slog.Group("backlog", "outbound", outbound, "inbound", inbound))
	}

	r.logger.InfoContext(ctx, "Bridge stats", attrs...)
}
