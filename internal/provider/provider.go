// Package provider defines the interface every serverless platform adapter
// implements. The runner and reconciler only ever see this interface; all
// platform-specific behavior (cold-start enforcement, telemetry queries,
// correlation id conventions) lives behind it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/serverlessbench/slb/internal/models"
)

// ErrNoTelemetry is returned by FetchCandidates when the platform has no
// queryable telemetry backend. Reconciliation treats it as a warning, not a
// failure.
var ErrNoTelemetry = errors.New("provider has no telemetry backend")

// Provider adapts one serverless platform to the benchmark pipeline.
type Provider interface {
	// Name returns the platform name used in config, flags, and result
	// paths.
	Name() string

	// EnforceColdStart guarantees that the next invocation of fn hits a
	// fresh instance, typically by mutating a counter environment variable
	// and waiting until the new configuration has propagated. It blocks
	// until the platform reports the update complete.
	EnforceColdStart(ctx context.Context, fn string) error

	// SetMemory applies a memory variant to the deployment before a run.
	// Platforms without configurable memory return nil.
	SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error

	// PrepareRequest lets the platform inject a pre-generated correlation
	// id into the outgoing request headers. It returns that id, or the
	// empty string when the id is assigned by the platform and extracted
	// from the response instead.
	PrepareRequest(hdr http.Header) string

	// CorrelationID determines the correlation id for a completed
	// invocation. pregen is the value returned by PrepareRequest for the
	// same request.
	CorrelationID(pregen string, resp http.Header) (string, error)

	// FetchCandidates queries the platform's telemetry backend for
	// entries concerning fn inside the window. Entries that do not belong
	// to this run are fine; ExtractMatch filters them.
	FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error)

	// ExtractMatch parses one candidate entry into a correlation id and
	// the provider-reported execution time. ok is false for entries that
	// carry no usable measurement.
	ExtractMatch(entry models.RawLogEntry) (id string, execTime time.Duration, ok bool)

	// Delete removes the deployed function.
	Delete(ctx context.Context, fn string) error
}

// InfrastructureError wraps failures of provider management operations
// (cold-start enforcement, memory updates, deletes). It aborts the current
// target but never the whole run.
type InfrastructureError struct {
	Provider string
	Function string
	Op       string
	Err      error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %s on %q failed: %v", e.Provider, e.Op, e.Function, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
