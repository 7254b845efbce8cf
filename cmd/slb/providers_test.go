package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/config"
	"github.com/serverlessbench/slb/internal/models"
)

func TestProviderNamesDeduplicatesAndSorts(t *testing.T) {
	targets := []models.BenchmarkTarget{
		{Provider: "gcp"},
		{Provider: "aws"},
		{Provider: "gcp"},
		{Provider: "aws", MemoryMB: 512},
	}
	assert.Equal(t, []string{"aws", "gcp"}, providerNames(targets))
}

func TestBuildProvidersUnknownName(t *testing.T) {
	cfg := config.New()
	cfg.Providers["heroku"] = map[string]any{}

	_, _, err := buildProviders(t.Context(), cfg, []string{"heroku"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heroku")
}

func TestBuildProvidersKnative(t *testing.T) {
	cfg := config.New()
	cfg.Providers["knative"] = map[string]any{"scale_to_zero_seconds": 90}

	providers, cleanup, err := buildProviders(t.Context(), cfg, []string{"knative"})
	require.NoError(t, err)
	defer cleanup()

	require.Contains(t, providers, "knative")
	assert.Equal(t, "knative", providers["knative"].Name())
}

func TestBuildTargetForNativeRuntime(t *testing.T) {
	target := buildTargetFor("/repo", models.BenchmarkTarget{
		Provider:  "gcp",
		Runtime:   models.RuntimeNative,
		Benchmark: "thumbnailer",
	})

	assert.True(t, target.Native)
	assert.Equal(t, "gcp-native", target.Profile())
	assert.Equal(t, filepath.Join("/repo", "benchmarks", "thumbnailer"), target.Dir)
}

func TestSelectBenchmarksUnknownName(t *testing.T) {
	cfg := config.New()
	cfg.Benchmarks = []config.BenchmarkConfig{{Name: "echo"}}

	_, err := selectBenchmarks(cfg, []string{"echo", "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	all, err := selectBenchmarks(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPartialFailureErrorMessage(t *testing.T) {
	err := &PartialFailureError{Failed: 2, Total: 5}
	assert.Equal(t, "2 of 5 benchmark target(s) failed", err.Error())
}
