// Package runner orchestrates benchmark runs: per target it applies the
// memory variant, drives the repetition loop with cold-start enforcement
// and verification, reconciles provider telemetry, and persists the result
// set. A failing target never takes down the rest of the run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
	"github.com/serverlessbench/slb/internal/reconcile"
	"github.com/serverlessbench/slb/internal/results"
)

// Invoker performs a single invocation. Satisfied by *invoke.Client.
type Invoker interface {
	Invoke(ctx context.Context, p provider.Provider, url, method string, body map[string]any) (*models.InvocationRecord, error)
}

// BuildGate runs before the first invocation of a target, typically to
// build the benchmark package through the build cache.
type BuildGate func(ctx context.Context, target models.BenchmarkTarget) error

// TargetResult is the outcome of one benchmark target.
type TargetResult struct {
	Target      models.BenchmarkTarget
	Records     int
	Matched     int
	Unmatched   []string
	ColdRetries int
	ResultPath  string
	Err         error
}

// Summary aggregates all target outcomes of a run.
type Summary struct {
	Results []TargetResult
}

// Failed returns how many targets ended with an error.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Runner executes benchmark runs.
type Runner struct {
	providers  map[string]provider.Provider
	invoker    Invoker
	reconciler *reconcile.Reconciler
	store      *results.Store

	policy         reconcile.RetryPolicy
	coldRetryDelay time.Duration
	maxColdRetries int
	windowSlack    time.Duration

	parallel  bool
	workers   int
	buildGate BuildGate
	sleep     func(context.Context, time.Duration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the reconciliation retry policy.
func WithPolicy(policy reconcile.RetryPolicy) Option {
	return func(r *Runner) { r.policy = policy }
}

// WithColdRetry sets the delay after a failed cold-start verification and
// the per-target retry budget.
func WithColdRetry(delay time.Duration, max int) Option {
	return func(r *Runner) {
		r.coldRetryDelay = delay
		r.maxColdRetries = max
	}
}

// WithParallel runs up to workers targets concurrently.
func WithParallel(workers int) Option {
	return func(r *Runner) {
		r.parallel = true
		if workers > 0 {
			r.workers = workers
		}
	}
}

// WithBuildGate installs a pre-invocation build step.
func WithBuildGate(gate BuildGate) Option {
	return func(r *Runner) { r.buildGate = gate }
}

// WithSleeper replaces the delay function.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// New builds a Runner over the given provider registry.
func New(providers map[string]provider.Provider, invoker Invoker, reconciler *reconcile.Reconciler, store *results.Store, opts ...Option) *Runner {
	r := &Runner{
		providers:      providers,
		invoker:        invoker,
		reconciler:     reconciler,
		store:          store,
		policy:         reconcile.DefaultPolicy,
		coldRetryDelay: 5 * time.Second,
		maxColdRetries: 25,
		windowSlack:    time.Second,
		workers:        4,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes all targets and returns a summary. The returned error is
// non-nil only for context cancellation; per-target failures live in the
// summary.
func (r *Runner) Run(ctx context.Context, targets []models.BenchmarkTarget, profile models.LoadProfile, repetitions int) (*Summary, error) {
	summary := &Summary{Results: make([]TargetResult, len(targets))}

	fmt.Printf("Starting %s run: %d target(s), %d repetitions each\n",
		profile, len(targets), repetitions)

	if !r.parallel {
		for i, target := range targets {
			summary.Results[i] = r.runTarget(ctx, target, profile, repetitions)
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
		}
		return summary, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, target := range targets {
		g.Go(func() error {
			summary.Results[i] = r.runTarget(gctx, target, profile, repetitions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

func (r *Runner) runTarget(ctx context.Context, target models.BenchmarkTarget, profile models.LoadProfile, repetitions int) TargetResult {
	result := TargetResult{Target: target}

	fmt.Printf("\n=== %s (memory: %s) ===\n", target.ID(), target.MemoryLabel())

	p, ok := r.providers[target.Provider]
	if !ok {
		result.Err = fmt.Errorf("provider %q is not configured", target.Provider)
		return result
	}

	if r.buildGate != nil {
		if err := r.buildGate(ctx, target); err != nil {
			result.Err = fmt.Errorf("build step: %w", err)
			return result
		}
	}

	if target.MemoryMB > 0 {
		if err := p.SetMemory(ctx, target.FunctionName, target.MemoryMB, target.Runtime == models.RuntimeNative); err != nil {
			result.Err = err
			return result
		}
	}

	begin := time.Now()
	set := models.RunRecordSet{}

	for len(set) < repetitions {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}

		if profile == models.ProfileCold {
			if err := p.EnforceColdStart(ctx, target.FunctionName); err != nil {
				result.Err = err
				return result
			}
		}

		rec, err := r.invoker.Invoke(ctx, p, target.URL, target.Method, target.Body)
		if err != nil {
			result.Err = err
			return result
		}

		// A record that should be cold but is not gets discarded and
		// the slot is retried; the warm instance it hit keeps serving
		// otherwise.
		if profile == models.ProfileCold && !rec.IsCold() {
			result.ColdRetries++
			slog.Warn("expected a cold start but the instance was warm, retrying",
				"target", target.ID(), "request_id", rec.RequestID,
				"retry", result.ColdRetries)
			if result.ColdRetries >= r.maxColdRetries {
				result.Err = &provider.InfrastructureError{
					Provider: target.Provider,
					Function: target.FunctionName,
					Op:       "cold start verification",
					Err:      fmt.Errorf("no cold start observed after %d retries", result.ColdRetries),
				}
				return result
			}
			if err := r.sleep(ctx, r.coldRetryDelay); err != nil {
				result.Err = err
				return result
			}
			continue
		}

		if err := set.Add(rec); err != nil {
			result.Err = err
			return result
		}
		fmt.Printf("  [%d/%d] %s: %.3fs\n", len(set), repetitions, rec.RequestID, rec.ClientTime)
	}

	window := models.NewWindow(begin, time.Now(), r.windowSlack)
	report, err := r.reconciler.Reconcile(ctx, p, target.FunctionName, window, set, r.policy)
	if err != nil {
		result.Err = err
		return result
	}
	result.Records = len(set)
	result.Matched = report.Matched
	result.Unmatched = report.Unmatched

	path, err := r.store.Save(target, profile, repetitions, set)
	if err != nil {
		result.Err = err
		return result
	}
	result.ResultPath = path

	fmt.Printf("  saved %d record(s) to %s (%d/%d with provider time)\n",
		result.Records, path, result.Matched, result.Records)
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
