// Package reconcile joins client-side invocation records with the
// asynchronous telemetry a provider publishes about the same invocations.
// All providers run under one bounded retry policy; invocations that never
// match are reported, not failed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

// RetryPolicy bounds the fetch loop. InitialDelay gives slow telemetry
// backends time to ingest before the first query; Interval separates
// subsequent attempts.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Interval     time.Duration
}

// DefaultPolicy is the unified policy applied to every provider.
var DefaultPolicy = RetryPolicy{
	MaxAttempts:  10,
	InitialDelay: 60 * time.Second,
	Interval:     10 * time.Second,
}

// Report summarizes one reconciliation pass over a record set.
type Report struct {
	Total     int
	Matched   int
	Unmatched []string
}

// Complete reports whether every record received a provider time.
func (r Report) Complete() bool {
	return len(r.Unmatched) == 0
}

// Reconciler runs the fetch/match loop. The sleeper is injectable for
// tests.
type Reconciler struct {
	sleep func(context.Context, time.Duration) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSleeper replaces the delay function.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = sleep }
}

// New builds a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches telemetry candidates for fn inside the window and
// merges matching execution times into the record set, until every pending
// record matched or the retry budget is spent. Records that already carry a
// provider time are skipped, so re-running is harmless. Partial success is
// a warning carried in the report; only context cancellation is an error.
func (r *Reconciler) Reconcile(ctx context.Context, p provider.Provider, fn string, w models.Window, set models.RunRecordSet, policy RetryPolicy) (Report, error) {
	report := Report{Total: len(set)}

	pending := map[string]struct{}{}
	for _, id := range set.Pending() {
		pending[id] = struct{}{}
	}
	if len(pending) == 0 {
		report.Matched = report.Total
		return report, nil
	}

	if policy.InitialDelay > 0 {
		slog.Debug("waiting for telemetry ingestion", "provider", p.Name(), "delay", policy.InitialDelay)
		if err := r.sleep(ctx, policy.InitialDelay); err != nil {
			return report, err
		}
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		entries, err := p.FetchCandidates(ctx, fn, w)
		if errors.Is(err, provider.ErrNoTelemetry) {
			slog.Warn("provider has no telemetry backend, skipping reconciliation",
				"provider", p.Name(), "function", fn, "records", len(pending))
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(p, fn, set, pending, report), ctx.Err()
			}
			slog.Warn("fetching telemetry failed", "provider", p.Name(), "function", fn,
				"attempt", attempt, "error", err)
		}

		for _, entry := range entries {
			id, execTime, ok := p.ExtractMatch(entry)
			if !ok {
				continue
			}
			if _, want := pending[id]; !want {
				continue
			}
			set.SetProviderTime(id, execTime)
			delete(pending, id)
		}

		slog.Debug("reconciliation attempt finished", "provider", p.Name(), "function", fn,
			"attempt", attempt, "entries", len(entries), "pending", len(pending))

		if len(pending) == 0 {
			break
		}
		if attempt < policy.MaxAttempts {
			if err := r.sleep(ctx, policy.Interval); err != nil {
				return r.finish(p, fn, set, pending, report), err
			}
		}
	}

	return r.finish(p, fn, set, pending, report), nil
}

func (r *Reconciler) finish(p provider.Provider, fn string, set models.RunRecordSet, pending map[string]struct{}, report Report) Report {
	report.Unmatched = set.Pending()
	report.Matched = report.Total - len(report.Unmatched)
	if len(report.Unmatched) > 0 {
		slog.Warn("reconciliation incomplete",
			"provider", p.Name(), "function", fn,
			"matched", report.Matched, "total", report.Total,
			"unmatched", fmt.Sprintf("%v", report.Unmatched))
	}
	return report
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
