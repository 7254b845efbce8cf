// Package azure adapts Azure Functions to the benchmark pipeline. Cold
// starts are forced by bumping a counter app setting, which restarts the
// function app workers; there is no update operation to await, so a fixed
// settle delay follows the write. Provider-side execution times come from
// Application Insights request telemetry queried through the Log Analytics
// workspace.
package azure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/monitor/azquery"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

const coldStartVar = "cold_start_var"

// invocationIDHeader carries the Functions host invocation id on responses.
const invocationIDHeader = "X-Azure-Functions-InvocationId"

const defaultSettleDelay = 20 * time.Second

// Settings holds the azure section of the providers config.
type Settings struct {
	Subscription   string `mapstructure:"subscription"`
	ResourceGroup  string `mapstructure:"resource_group"`
	WorkspaceID    string `mapstructure:"workspace_id"`
	StorageAccount string `mapstructure:"storage_account"`
	// SettleSeconds overrides the delay after an app settings change.
	SettleSeconds int `mapstructure:"settle_seconds"`
}

// Provider implements provider.Provider for Azure Functions.
type Provider struct {
	apps          *armappservice.WebAppsClient
	logs          *azquery.LogsClient
	blob          *azblob.Client
	resourceGroup string
	workspaceID   string
	settle        time.Duration
	sleep         func(context.Context, time.Duration) error
}

// New builds an Azure provider using the default credential chain.
func New(settings Settings) (*Provider, error) {
	if settings.Subscription == "" {
		return nil, fmt.Errorf("azure: subscription is required")
	}
	if settings.ResourceGroup == "" {
		settings.ResourceGroup = "quarkus"
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure credential: %w", err)
	}
	apps, err := armappservice.NewWebAppsClient(settings.Subscription, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating web apps client: %w", err)
	}
	logs, err := azquery.NewLogsClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logs query client: %w", err)
	}

	var blob *azblob.Client
	if settings.StorageAccount != "" {
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", settings.StorageAccount)
		blob, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating blob client: %w", err)
		}
	}

	settle := defaultSettleDelay
	if settings.SettleSeconds > 0 {
		settle = time.Duration(settings.SettleSeconds) * time.Second
	}

	return &Provider{
		apps:          apps,
		logs:          logs,
		blob:          blob,
		resourceGroup: settings.ResourceGroup,
		workspaceID:   settings.WorkspaceID,
		settle:        settle,
		sleep:         sleepCtx,
	}, nil
}

func (p *Provider) Name() string { return "azure" }

// EnforceColdStart increments the cold start counter app setting and waits
// a fixed settle delay for the function app workers to recycle.
func (p *Provider) EnforceColdStart(ctx context.Context, fn string) error {
	settings, err := p.apps.ListApplicationSettings(ctx, p.resourceGroup, fn, nil)
	if err != nil {
		return p.infraErr(fn, "list app settings", err)
	}

	props := settings.Properties
	if props == nil {
		props = map[string]*string{}
	}
	current := 0
	if v := props[coldStartVar]; v != nil {
		current, _ = strconv.Atoi(*v)
	}
	props[coldStartVar] = to.Ptr(strconv.Itoa(current + 1))

	_, err = p.apps.UpdateApplicationSettings(ctx, p.resourceGroup, fn,
		armappservice.StringDictionary{Properties: props}, nil)
	if err != nil {
		return p.infraErr(fn, "update app settings", err)
	}

	slog.Debug("cold start enforced", "provider", "azure", "function", fn, "settle", p.settle)
	if err := p.sleep(ctx, p.settle); err != nil {
		return p.infraErr(fn, "settle after app settings update", err)
	}
	return nil
}

// SetMemory is a no-op; consumption plan function apps have no configurable
// memory size.
func (p *Provider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	return nil
}

// PrepareRequest is a no-op; the Functions host assigns the invocation id.
func (p *Provider) PrepareRequest(hdr http.Header) string { return "" }

// CorrelationID reads the invocation id from the response headers.
func (p *Provider) CorrelationID(pregen string, resp http.Header) (string, error) {
	id := resp.Get(invocationIDHeader)
	if id == "" {
		return "", fmt.Errorf("azure: response missing %s header", invocationIDHeader)
	}
	return id, nil
}

// requestsQuery projects App Insights request telemetry down to the two
// columns matching needs. FunctionExecutionTimeMs excludes the Functions
// host overhead that the outer Duration column would include.
const requestsQuery = `AppRequests` +
	` | where AppRoleName == %q` +
	` | project InvocationId = tostring(Properties["InvocationId"]),` +
	` FunctionTimeMs = tostring(Properties["FunctionExecutionTimeMs"])`

// FetchCandidates queries request telemetry for the function app inside the
// window.
func (p *Provider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	if p.workspaceID == "" {
		return nil, fmt.Errorf("azure: workspace_id is required to query telemetry")
	}

	interval := azquery.NewTimeInterval(w.Start, w.End)
	res, err := p.logs.QueryWorkspace(ctx, p.workspaceID, azquery.Body{
		Query:    to.Ptr(fmt.Sprintf(requestsQuery, fn)),
		Timespan: to.Ptr(interval),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("querying app insights: %w", err)
	}

	var entries []models.RawLogEntry
	for _, table := range res.Tables {
		for _, row := range table.Rows {
			if len(row) < 2 {
				continue
			}
			id, _ := row[0].(string)
			ms, _ := row[1].(string)
			entries = append(entries, models.RawLogEntry{
				Fields: map[string]string{
					"invocationId":   id,
					"functionTimeMs": ms,
				},
			})
		}
	}
	return entries, nil
}

// ExtractMatch converts a request telemetry row into an invocation id and
// the function execution time.
func (p *Provider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	id := entry.Fields["invocationId"]
	if id == "" {
		return "", 0, false
	}
	ms, err := strconv.ParseFloat(entry.Fields["functionTimeMs"], 64)
	if err != nil {
		return "", 0, false
	}
	return id, time.Duration(ms * float64(time.Millisecond)), true
}

// Delete removes the function app.
func (p *Provider) Delete(ctx context.Context, fn string) error {
	_, err := p.apps.Delete(ctx, p.resourceGroup, fn, nil)
	if err != nil {
		return p.infraErr(fn, "delete function app", err)
	}
	return nil
}

// UploadData uploads every file under dir into the given blob container
// beneath the "input/" prefix. Used to seed storage-backed benchmarks.
func (p *Provider) UploadData(ctx context.Context, container, dir string) error {
	if p.blob == nil {
		return fmt.Errorf("azure: storage_account is required to upload benchmark data")
	}

	if _, err := p.blob.CreateContainer(ctx, container, nil); err != nil {
		// The container usually exists already from a prior deploy.
		slog.Debug("creating container", "container", container, "error", err)
	}

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", rel, err)
		}
		defer f.Close() //nolint:errcheck

		blobName := "input/" + filepath.ToSlash(rel)
		if _, err := p.blob.UploadFile(ctx, container, blobName, f, nil); err != nil {
			return fmt.Errorf("uploading %s: %w", blobName, err)
		}
		return nil
	})
}

func (p *Provider) infraErr(fn, op string, err error) error {
	return &provider.InfrastructureError{Provider: "azure", Function: fn, Op: op, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
