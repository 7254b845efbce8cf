// Package deploy builds benchmark packages before they are invoked. The
// actual build runs through the repository's maven wrapper with a
// provider-specific profile; the build cache skips it when neither sources
// nor artifacts changed since the last successful build.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/serverlessbench/slb/internal/buildcache"
)

// BuildTarget identifies one package build.
type BuildTarget struct {
	Provider  string
	Benchmark string
	Native    bool
	// Dir is the benchmark submodule directory containing src/ and the
	// maven build output under target/.
	Dir string
}

// Profile returns the maven profile for this build.
func (t BuildTarget) Profile() string {
	if t.Native {
		return t.Provider + "-native"
	}
	return t.Provider
}

// Deployer builds benchmark packages.
type Deployer interface {
	Build(ctx context.Context, target BuildTarget) error
}

// MavenDeployer builds through the maven wrapper checked into the
// benchmark repository root.
type MavenDeployer struct {
	// RootPath is the benchmark repository root holding the wrapper.
	RootPath string
}

// Build runs "mvnw clean package -P <profile>" inside the benchmark
// submodule.
func (m *MavenDeployer) Build(ctx context.Context, target BuildTarget) error {
	wrapper := "mvnw"
	if runtime.GOOS == "windows" {
		wrapper = "mvnw.cmd"
	}
	mvnw := filepath.Join(m.RootPath, wrapper)

	fmt.Printf("Building %s with profile %s...\n", target.Benchmark, target.Profile())
	cmd := exec.CommandContext(ctx, mvnw, "clean", "package", "-P", target.Profile())
	cmd.Dir = target.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("building %s with profile %s: %w\n%s",
			target.Benchmark, target.Profile(), err, out)
	}
	slog.Debug("benchmark built", "benchmark", target.Benchmark, "profile", target.Profile())
	return nil
}

// EnsureBuilt builds the target unless the cache proves both the source
// tree and the previous build artifacts are unchanged. After a build the
// fresh hashes are recorded.
func EnsureBuilt(ctx context.Context, cache *buildcache.Cache, d Deployer, target BuildTarget) error {
	srcDir := filepath.Join(target.Dir, "src")
	artifactDir := filepath.Join(target.Dir, "target")

	srcHash, err := buildcache.HashTree(srcDir)
	if err != nil {
		return fmt.Errorf("hashing sources: %w", err)
	}
	artifactHash, err := buildcache.HashTree(artifactDir)
	if err != nil {
		return fmt.Errorf("hashing artifacts: %w", err)
	}

	if !cache.ShouldBuild(target.Provider, target.Benchmark, target.Native, srcHash, artifactHash) {
		slog.Warn("skipping build, no changes detected",
			"benchmark", target.Benchmark, "profile", target.Profile())
		return nil
	}

	if err := d.Build(ctx, target); err != nil {
		return err
	}

	artifactHash, err = buildcache.HashTree(artifactDir)
	if err != nil {
		return fmt.Errorf("hashing artifacts after build: %w", err)
	}
	if err := cache.RecordBuild(target.Provider, target.Benchmark, target.Native, srcHash, artifactHash); err != nil {
		return fmt.Errorf("recording build: %w", err)
	}
	return nil
}
