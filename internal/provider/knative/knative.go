// Package knative adapts self-hosted Knative services to the benchmark
// pipeline. Knative deployments here have no managed telemetry backend, so
// the correlation id is generated client-side and sent along with the
// request; reconciliation is reported as a warning for every record.
package knative

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

// traceHeader is the client-generated correlation header echoed into the
// service's own logs.
const traceHeader = "x-client-trace-id"

// Settings holds the knative section of the providers config.
type Settings struct {
	// ScaleToZeroSeconds is how long to wait before invoking so the
	// autoscaler has drained the previous instance. Zero disables the
	// wait.
	ScaleToZeroSeconds int `mapstructure:"scale_to_zero_seconds"`
}

// Provider implements provider.Provider for Knative services.
type Provider struct {
	scaleToZero time.Duration
}

// New builds a Knative provider.
func New(settings Settings) *Provider {
	return &Provider{
		scaleToZero: time.Duration(settings.ScaleToZeroSeconds) * time.Second,
	}
}

func (p *Provider) Name() string { return "knative" }

// EnforceColdStart waits for the configured scale-to-zero window. Knative
// exposes no configuration mutation hook comparable to the managed
// platforms, so verification relies entirely on the is_cold response field.
func (p *Provider) EnforceColdStart(ctx context.Context, fn string) error {
	if p.scaleToZero <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.scaleToZero):
		return nil
	}
}

// SetMemory is a no-op; memory is fixed in the service manifest.
func (p *Provider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	return nil
}

// PrepareRequest generates a fresh correlation id and injects it into the
// outgoing headers.
func (p *Provider) PrepareRequest(hdr http.Header) string {
	id := uuid.NewString()
	hdr.Set(traceHeader, id)
	return id
}

// CorrelationID returns the pre-generated id.
func (p *Provider) CorrelationID(pregen string, resp http.Header) (string, error) {
	return pregen, nil
}

// FetchCandidates reports that no telemetry backend exists.
func (p *Provider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	return nil, provider.ErrNoTelemetry
}

// ExtractMatch never matches; there are no candidates.
func (p *Provider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	return "", 0, false
}

// Delete is not supported; Knative services are managed outside this tool.
func (p *Provider) Delete(ctx context.Context, fn string) error {
	return &provider.InfrastructureError{
		Provider: "knative",
		Function: fn,
		Op:       "delete",
		Err:      errors.New("knative services are managed outside this tool"),
	}
}
