package models

import "fmt"

// Runtime names for deployed function packages.
const (
	RuntimeJVM    = "jvm"
	RuntimeNative = "native"
)

// LoadProfile selects the invocation pattern for a run.
type LoadProfile string

const (
	// ProfileCold enforces and verifies a cold start before every
	// measured invocation.
	ProfileCold LoadProfile = "cold"
	// ProfileWarm invokes back to back without any cold-start handling.
	ProfileWarm LoadProfile = "warm"
)

// ParseLoadProfile validates a user-supplied profile name.
func ParseLoadProfile(s string) (LoadProfile, error) {
	switch LoadProfile(s) {
	case ProfileCold, ProfileWarm:
		return LoadProfile(s), nil
	case "burst":
		return "", fmt.Errorf("load profile %q is not supported", s)
	default:
		return "", fmt.Errorf("unknown load profile %q (expected cold or warm)", s)
	}
}

// BenchmarkTarget identifies one deployed function to benchmark, together
// with everything needed to invoke it.
type BenchmarkTarget struct {
	Provider  string
	Runtime   string
	Benchmark string

	// FunctionName is the provider-side resource name of the deployment.
	FunctionName string
	// URL is the public HTTP trigger endpoint.
	URL string
	// Method is the HTTP method to invoke with (defaults to POST).
	Method string
	// Body is the JSON request payload defined by the benchmark.
	Body map[string]any

	// MemoryMB is the memory variant to apply before the run; zero means
	// the deployment default (Azure has no configurable memory).
	MemoryMB int
}

// ID returns a stable human-readable identifier used in logs and progress
// output.
func (t BenchmarkTarget) ID() string {
	return fmt.Sprintf("%s/%s/%s", t.Provider, t.Runtime, t.Benchmark)
}

// MemoryLabel returns the memory variant as used in result file names.
func (t BenchmarkTarget) MemoryLabel() string {
	if t.MemoryMB <= 0 {
		return "default"
	}
	return fmt.Sprintf("%d", t.MemoryMB)
}
