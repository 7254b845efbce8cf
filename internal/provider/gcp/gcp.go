// Package gcp adapts Google Cloud Run (and gen2 Cloud Functions, which run
// on the same infrastructure) to the benchmark pipeline. Cold starts are
// forced by bumping a counter environment variable on the service template,
// and provider-side execution times come from request log entries in Cloud
// Logging.
package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"
	"google.golang.org/api/run/v2"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

const coldStartVar = "cold_start_var"

// traceContextHeader carries the request trace id on Cloud Run responses.
const traceContextHeader = "X-Cloud-Trace-Context"

const (
	operationTimeout      = 5 * time.Minute
	operationPollInterval = 3 * time.Second
)

// Settings holds the gcp section of the providers config.
type Settings struct {
	Project string `mapstructure:"project"`
	Region  string `mapstructure:"region"`
}

// Provider implements provider.Provider for Cloud Run backed functions.
type Provider struct {
	run     *run.Service
	logs    *logadmin.Client
	project string
	region  string
}

// New builds a GCP provider using application default credentials.
func New(ctx context.Context, settings Settings) (*Provider, error) {
	if settings.Project == "" || settings.Region == "" {
		return nil, fmt.Errorf("gcp: project and region are required")
	}
	runSvc, err := run.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating cloud run client: %w", err)
	}
	logs, err := logadmin.NewClient(ctx, settings.Project)
	if err != nil {
		return nil, fmt.Errorf("creating logging client: %w", err)
	}
	return &Provider{
		run:     runSvc,
		logs:    logs,
		project: settings.Project,
		region:  settings.Region,
	}, nil
}

// Close releases the logging client.
func (p *Provider) Close() error {
	return p.logs.Close()
}

func (p *Provider) Name() string { return "gcp" }

func (p *Provider) serviceName(fn string) string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s", p.project, p.region, fn)
}

// EnforceColdStart bumps the cold start counter on the service template and
// waits for the resulting revision rollout to finish.
func (p *Provider) EnforceColdStart(ctx context.Context, fn string) error {
	mutate := func(c *run.GoogleCloudRunV2Container) {
		for _, env := range c.Env {
			if env.Name == coldStartVar {
				current, _ := strconv.Atoi(env.Value)
				env.Value = strconv.Itoa(current + 1)
				return
			}
		}
		c.Env = append(c.Env, &run.GoogleCloudRunV2EnvVar{Name: coldStartVar, Value: "1"})
	}
	if err := p.patchContainer(ctx, fn, mutate); err != nil {
		return p.infraErr(fn, "enforce cold start", err)
	}
	slog.Debug("cold start enforced", "provider", "gcp", "function", fn)
	return nil
}

// SetMemory updates the container memory and cpu limits and waits for the
// rollout.
func (p *Provider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	mutate := func(c *run.GoogleCloudRunV2Container) {
		if c.Resources == nil {
			c.Resources = &run.GoogleCloudRunV2ResourceRequirements{}
		}
		if c.Resources.Limits == nil {
			c.Resources.Limits = map[string]string{}
		}
		c.Resources.Limits["memory"] = fmt.Sprintf("%dMi", memoryMB)
		c.Resources.Limits["cpu"] = cpuForMemory(memoryMB)
	}
	if err := p.patchContainer(ctx, fn, mutate); err != nil {
		return p.infraErr(fn, "set memory", err)
	}
	return nil
}

// patchContainer applies mutate to the first container of the service
// template, patches the service, and waits for the operation.
func (p *Provider) patchContainer(ctx context.Context, fn string, mutate func(*run.GoogleCloudRunV2Container)) error {
	name := p.serviceName(fn)
	svc, err := p.run.Projects.Locations.Services.Get(name).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting service: %w", err)
	}
	if svc.Template == nil || len(svc.Template.Containers) == 0 {
		return fmt.Errorf("service %s has no containers", fn)
	}
	mutate(svc.Template.Containers[0])

	op, err := p.run.Projects.Locations.Services.Patch(name, svc).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("patching service: %w", err)
	}
	return p.waitForOperation(ctx, op.Name)
}

// waitForOperation polls a long-running operation until it completes.
func (p *Provider) waitForOperation(ctx context.Context, operationName string) error {
	deadline := time.Now().Add(operationTimeout)

	for time.Now().Before(deadline) {
		op, err := p.run.Projects.Locations.Operations.Get(operationName).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("getting operation status: %w", err)
		}
		if op.Done {
			if op.Error != nil {
				return fmt.Errorf("operation failed: %s (code %d)", op.Error.Message, op.Error.Code)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollInterval):
		}
	}
	return fmt.Errorf("timeout waiting for operation %s", operationName)
}

// PrepareRequest is a no-op; the trace id is assigned by the platform.
func (p *Provider) PrepareRequest(hdr http.Header) string { return "" }

// CorrelationID derives the trace id from the X-Cloud-Trace-Context
// response header, which has the form "TRACE_ID/SPAN_ID;o=OPTIONS". Request
// log entries reference the same TRACE_ID, so only that part is kept.
func (p *Provider) CorrelationID(pregen string, resp http.Header) (string, error) {
	return extractTraceID(resp.Get(traceContextHeader))
}

// FetchCandidates lists request log entries for the service inside the
// window. Entries without a trace or HTTP request payload are skipped.
func (p *Provider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	filter := fmt.Sprintf(
		`(resource.type="cloud_run_revision" OR resource.type="cloud_function") AND `+
			`resource.labels.service_name=%q AND resource.labels.location=%q AND `+
			`timestamp>=%q AND timestamp<=%q`,
		fn, p.region, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))

	var entries []models.RawLogEntry
	it := p.logs.Entries(ctx, logadmin.Filter(filter))
	for {
		entry, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading log entries: %w", err)
		}
		if entry.Trace == "" || entry.HTTPRequest == nil {
			continue
		}
		entries = append(entries, models.RawLogEntry{
			Timestamp: entry.Timestamp,
			Fields: map[string]string{
				"trace":   entry.Trace,
				"latency": entry.HTTPRequest.Latency.String(),
			},
		})
	}
	return entries, nil
}

// ExtractMatch resolves the trace id suffix and the request latency from a
// request log entry.
func (p *Provider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	id, err := extractTraceID(entry.Fields["trace"])
	if err != nil {
		return "", 0, false
	}
	latency, err := time.ParseDuration(entry.Fields["latency"])
	if err != nil || latency <= 0 {
		return "", 0, false
	}
	return id, latency, true
}

// Delete removes the Cloud Run service.
func (p *Provider) Delete(ctx context.Context, fn string) error {
	op, err := p.run.Projects.Locations.Services.Delete(p.serviceName(fn)).Context(ctx).Do()
	if err != nil {
		return p.infraErr(fn, "delete service", err)
	}
	if err := p.waitForOperation(ctx, op.Name); err != nil {
		return p.infraErr(fn, "await delete", err)
	}
	return nil
}

func (p *Provider) infraErr(fn, op string, err error) error {
	return &provider.InfrastructureError{Provider: "gcp", Function: fn, Op: op, Err: err}
}
