package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/serverlessbench/slb/internal/models"
)

// Deployment records one deployed function, written at deploy time and
// consumed when assembling run targets.
type Deployment struct {
	FunctionName string `json:"function_name"`
	URL          string `json:"url"`
	Bucket       string `json:"bucket,omitempty"`
}

// Deployments is the deployments.json bookkeeping structure, keyed
// provider → runtime → benchmark.
type Deployments map[string]map[string]map[string]Deployment

// LoadDeployments reads the deployments file. A missing file yields an
// empty structure.
func LoadDeployments(path string) (Deployments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Deployments{}, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	var d Deployments
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

// Save writes the deployments file.
func (d Deployments) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling deployments: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Set records a deployment, creating intermediate maps as needed.
func (d Deployments) Set(provider, runtime, benchmark string, dep Deployment) {
	runtimes, ok := d[provider]
	if !ok {
		runtimes = map[string]map[string]Deployment{}
		d[provider] = runtimes
	}
	benches, ok := runtimes[runtime]
	if !ok {
		benches = map[string]Deployment{}
		runtimes[runtime] = benches
	}
	benches[benchmark] = dep
}

// Remove deletes a deployment record. It reports whether the record
// existed.
func (d Deployments) Remove(provider, runtime, benchmark string) bool {
	benches, ok := d[provider][runtime]
	if !ok {
		return false
	}
	if _, ok := benches[benchmark]; !ok {
		return false
	}
	delete(benches, benchmark)
	return true
}

// Targets assembles the benchmark targets selected by the given provider,
// benchmark, and runtime filters (empty filter = everything deployed). One
// target is produced per memory variant of the benchmark; providers without
// configurable memory get a single default-memory target. The target URL is
// the deployment base URL joined with the benchmark endpoint.
func (d Deployments) Targets(cfg *Config, providers, benchmarks, runtimes []string) ([]models.BenchmarkTarget, error) {
	for _, p := range providers {
		if _, ok := d[p]; !ok {
			return nil, &ConfigurationError{
				Msg: fmt.Sprintf("no deployments found for provider %q, did you deploy?", p),
			}
		}
	}

	var targets []models.BenchmarkTarget
	for prov, provRuntimes := range d {
		if len(providers) > 0 && !slices.Contains(providers, prov) {
			continue
		}
		for runtime, benches := range provRuntimes {
			if len(runtimes) > 0 && !slices.Contains(runtimes, runtime) {
				continue
			}
			for benchName, dep := range benches {
				if len(benchmarks) > 0 && !slices.Contains(benchmarks, benchName) {
					continue
				}
				bench, ok := cfg.Benchmark(benchName)
				if !ok {
					return nil, &ConfigurationError{
						Msg: fmt.Sprintf("deployed benchmark %q is not described in the config", benchName),
					}
				}

				base := models.BenchmarkTarget{
					Provider:     prov,
					Runtime:      runtime,
					Benchmark:    benchName,
					FunctionName: dep.FunctionName,
					URL:          dep.URL + bench.Endpoint,
					Method:       bench.Request.Method,
					Body:         bench.Request.Body,
				}

				memories := bench.Memory
				if prov == "azure" || len(memories) == 0 {
					targets = append(targets, base)
					continue
				}
				for _, mem := range memories {
					t := base
					t.MemoryMB = mem
					targets = append(targets, t)
				}
			}
		}
	}

	if len(targets) == 0 {
		return nil, &ConfigurationError{
			Msg: fmt.Sprintf("no deployments match providers %v, benchmarks %v, runtimes %v",
				providers, benchmarks, runtimes),
		}
	}

	// Map iteration order is random; keep runs and logs deterministic.
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].ID() != targets[j].ID() {
			return targets[i].ID() < targets[j].ID()
		}
		return targets[i].MemoryMB < targets[j].MemoryMB
	})
	return targets, nil
}
