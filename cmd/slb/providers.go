package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/serverlessbench/slb/internal/config"
	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
	"github.com/serverlessbench/slb/internal/provider/aws"
	"github.com/serverlessbench/slb/internal/provider/azure"
	"github.com/serverlessbench/slb/internal/provider/gcp"
	"github.com/serverlessbench/slb/internal/provider/knative"
)

// providerNames returns the distinct providers the targets run on, sorted.
func providerNames(targets []models.BenchmarkTarget) []string {
	seen := map[string]bool{}
	for _, t := range targets {
		seen[t.Provider] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildProviders constructs the named providers from their config sections.
// The returned cleanup closes any provider holding client connections.
func buildProviders(ctx context.Context, cfg *config.Config, names []string) (map[string]provider.Provider, func(), error) {
	providers := map[string]provider.Provider{}
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	for _, name := range names {
		var (
			p   provider.Provider
			err error
		)
		switch name {
		case "aws":
			var settings aws.Settings
			if settings, err = config.ProviderSettings[aws.Settings](cfg, name); err == nil {
				p, err = aws.New(ctx, settings)
			}
		case "gcp":
			var settings gcp.Settings
			if settings, err = config.ProviderSettings[gcp.Settings](cfg, name); err == nil {
				var gp *gcp.Provider
				if gp, err = gcp.New(ctx, settings); err == nil {
					closers = append(closers, gp)
					p = gp
				}
			}
		case "azure":
			var settings azure.Settings
			if settings, err = config.ProviderSettings[azure.Settings](cfg, name); err == nil {
				p, err = azure.New(settings)
			}
		case "knative":
			var settings knative.Settings
			if settings, err = config.ProviderSettings[knative.Settings](cfg, name); err == nil {
				p = knative.New(settings)
			}
		default:
			err = &config.ConfigurationError{Msg: fmt.Sprintf("unknown provider %q", name)}
		}
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		providers[name] = p
	}
	return providers, cleanup, nil
}
