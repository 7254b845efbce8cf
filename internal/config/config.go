// Package config loads the slb.yaml configuration file and the
// deployments.json bookkeeping file, and assembles benchmark targets from
// the two.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Default values for run configuration. New() references them and no other
// code should duplicate them.
const (
	DefaultConfigFile      = "slb.yaml"
	DefaultDeploymentsFile = "deployments.json"
	DefaultCacheFile       = ".slb-cache/build-cache.json"

	DefaultRepetitions    = 10
	DefaultWorkers        = 4
	DefaultColdRetryDelay = 5
	DefaultMaxColdRetries = 25

	DefaultReconcileMaxAttempts  = 10
	DefaultReconcileInitialDelay = 60
	DefaultReconcileInterval     = 10

	DefaultInvokeTimeout    = 120
	DefaultInvokeMaxRetries = 4
)

// ConfigurationError marks a problem with the configuration itself, as
// opposed to a runtime failure. It is surfaced at startup before anything
// runs.
type ConfigurationError struct {
	Path string
	Msg  string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Msg)
}

// RequestConfig describes the HTTP request a benchmark is invoked with.
type RequestConfig struct {
	Method string         `yaml:"method,omitempty"`
	Body   map[string]any `yaml:"body,omitempty"`
}

// BenchmarkConfig describes one benchmark known to the suite.
type BenchmarkConfig struct {
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Request  RequestConfig `yaml:"request,omitempty"`
	// Memory lists the memory variants (MB) to run, one run per entry.
	// Ignored on platforms without configurable memory.
	Memory  []int `yaml:"memory,omitempty"`
	Timeout int   `yaml:"timeout,omitempty"`
	Storage bool  `yaml:"storage,omitempty"`
}

// RunConfig holds run loop tunables. Durations are whole seconds.
type RunConfig struct {
	Repetitions int    `yaml:"repetitions,omitempty"`
	OutputDir   string `yaml:"output_dir,omitempty"`
	Parallel    *bool  `yaml:"parallel,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`

	// ColdRetryDelay is the pause after an invocation that should have
	// been cold but was not, before retrying the same slot.
	ColdRetryDelay int `yaml:"cold_retry_delay,omitempty"`
	// MaxColdRetries bounds those retries per target.
	MaxColdRetries int `yaml:"max_cold_retries,omitempty"`

	ReconcileMaxAttempts  int `yaml:"reconcile_max_attempts,omitempty"`
	ReconcileInitialDelay int `yaml:"reconcile_initial_delay,omitempty"`
	ReconcileInterval     int `yaml:"reconcile_interval,omitempty"`

	InvokeTimeout    int `yaml:"invoke_timeout,omitempty"`
	InvokeMaxRetries int `yaml:"invoke_max_retries,omitempty"`
}

// Config is the top-level configuration loaded from slb.yaml. Provider
// sections are kept generic here and decoded into per-provider settings
// structs on demand.
type Config struct {
	Providers  map[string]map[string]any `yaml:"providers,omitempty"`
	Benchmarks []BenchmarkConfig         `yaml:"benchmarks,omitempty"`
	Run        RunConfig                 `yaml:"run,omitempty"`
}

// New returns a Config with all hard-coded defaults populated.
func New() *Config {
	return &Config{
		Providers: map[string]map[string]any{},
		Run: RunConfig{
			Repetitions:           DefaultRepetitions,
			OutputDir:             "",
			Parallel:              boolPtr(false),
			Workers:               DefaultWorkers,
			ColdRetryDelay:        DefaultColdRetryDelay,
			MaxColdRetries:        DefaultMaxColdRetries,
			ReconcileMaxAttempts:  DefaultReconcileMaxAttempts,
			ReconcileInitialDelay: DefaultReconcileInitialDelay,
			ReconcileInterval:     DefaultReconcileInterval,
			InvokeTimeout:         DefaultInvokeTimeout,
			InvokeMaxRetries:      DefaultInvokeMaxRetries,
		},
	}
}

// Load reads and validates the config file at path, filling missing fields
// with defaults. A missing file returns defaults with a nil error so the
// tool stays usable with flags alone.
func Load(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if errs := ValidateBytes(data); len(errs) > 0 {
		return nil, &ConfigurationError{Path: path, Msg: errs[0]}
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *Config) {
	if len(src.Providers) > 0 {
		dst.Providers = src.Providers
	}
	if len(src.Benchmarks) > 0 {
		dst.Benchmarks = src.Benchmarks
	}

	if src.Run.Repetitions != 0 {
		dst.Run.Repetitions = src.Run.Repetitions
	}
	if src.Run.OutputDir != "" {
		dst.Run.OutputDir = src.Run.OutputDir
	}
	if src.Run.Parallel != nil {
		dst.Run.Parallel = src.Run.Parallel
	}
	if src.Run.Workers != 0 {
		dst.Run.Workers = src.Run.Workers
	}
	if src.Run.ColdRetryDelay != 0 {
		dst.Run.ColdRetryDelay = src.Run.ColdRetryDelay
	}
	if src.Run.MaxColdRetries != 0 {
		dst.Run.MaxColdRetries = src.Run.MaxColdRetries
	}
	if src.Run.ReconcileMaxAttempts != 0 {
		dst.Run.ReconcileMaxAttempts = src.Run.ReconcileMaxAttempts
	}
	if src.Run.ReconcileInitialDelay != 0 {
		dst.Run.ReconcileInitialDelay = src.Run.ReconcileInitialDelay
	}
	if src.Run.ReconcileInterval != 0 {
		dst.Run.ReconcileInterval = src.Run.ReconcileInterval
	}
	if src.Run.InvokeTimeout != 0 {
		dst.Run.InvokeTimeout = src.Run.InvokeTimeout
	}
	if src.Run.InvokeMaxRetries != 0 {
		dst.Run.InvokeMaxRetries = src.Run.InvokeMaxRetries
	}
}

// Benchmark returns the benchmark config with the given name.
func (c *Config) Benchmark(name string) (BenchmarkConfig, bool) {
	for _, b := range c.Benchmarks {
		if b.Name == name {
			return b, true
		}
	}
	return BenchmarkConfig{}, false
}

// ProviderSettings decodes the named provider section into a typed settings
// struct. Unknown keys are an error, catching typos at startup.
func ProviderSettings[T any](c *Config, name string) (T, error) {
	var out T
	raw, ok := c.Providers[name]
	if !ok {
		return out, &ConfigurationError{Msg: fmt.Sprintf("provider %q is not configured", name)}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		ErrorUnused: true,
	})
	if err != nil {
		return out, fmt.Errorf("building settings decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, &ConfigurationError{Msg: fmt.Sprintf("provider %q settings: %v", name, err)}
	}
	return out, nil
}

func boolPtr(b bool) *bool {
	return &b
}
