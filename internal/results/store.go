// Package results persists finished benchmark runs as JSON files, one file
// per provider/runtime/benchmark/variant combination.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/serverlessbench/slb/internal/models"
)

// DefaultDir is the default root of the results tree.
const DefaultDir = "benchmark_results"

// Store writes run results beneath a root directory.
type Store struct {
	root string
}

// NewStore builds a Store rooted at dir, or DefaultDir when empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{root: dir}
}

// Path returns where the result file for the given run parameters lives:
//
//	<root>/<provider>/<runtime>/<benchmark>/<PROFILE>_<reps>_<memory|default>.json
func (s *Store) Path(t models.BenchmarkTarget, profile models.LoadProfile, repetitions int) string {
	file := fmt.Sprintf("%s_%d_%s.json",
		strings.ToUpper(string(profile)), repetitions, t.MemoryLabel())
	return filepath.Join(s.root, t.Provider, t.Runtime, t.Benchmark, file)
}

// Save writes the record set to its canonical path, replacing any previous
// file for the same parameters. Re-running a configuration overwrites
// rather than appends.
func (s *Store) Save(t models.BenchmarkTarget, profile models.LoadProfile, repetitions int, set models.RunRecordSet) (string, error) {
	path := s.Path(t, profile, repetitions)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing results file: %w", err)
	}
	return path, nil
}
