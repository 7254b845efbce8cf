package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/buildcache"
)

// fakeDeployer counts builds and simulates maven writing build output.
type fakeDeployer struct {
	builds   int
	artifact string
}

func (d *fakeDeployer) Build(ctx context.Context, target BuildTarget) error {
	d.builds++
	dir := filepath.Join(target.Dir, "target")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "function.zip"), []byte(d.artifact), 0644)
}

func newBuildEnv(t *testing.T) (*buildcache.Cache, BuildTarget) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Handler.java"), []byte("class H {}"), 0644))

	cache, err := buildcache.Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	return cache, BuildTarget{Provider: "aws", Benchmark: "echo", Dir: dir}
}

func TestEnsureBuiltBuildsOnceThenSkips(t *testing.T) {
	cache, target := newBuildEnv(t)
	d := &fakeDeployer{artifact: "zip-v1"}

	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))
	assert.Equal(t, 1, d.builds)

	// Nothing changed: the cache skips the second build.
	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))
	assert.Equal(t, 1, d.builds)
}

func TestEnsureBuiltRebuildsOnSourceChange(t *testing.T) {
	cache, target := newBuildEnv(t)
	d := &fakeDeployer{artifact: "zip-v1"}

	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))

	require.NoError(t, os.WriteFile(filepath.Join(target.Dir, "src", "Handler.java"),
		[]byte("class H { int x; }"), 0644))
	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))
	assert.Equal(t, 2, d.builds)
}

func TestEnsureBuiltRebuildsOnMissingArtifacts(t *testing.T) {
	cache, target := newBuildEnv(t)
	d := &fakeDeployer{artifact: "zip-v1"}

	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))
	require.NoError(t, os.RemoveAll(filepath.Join(target.Dir, "target")))

	require.NoError(t, EnsureBuilt(t.Context(), cache, d, target))
	assert.Equal(t, 2, d.builds)
}

func TestBuildTargetProfile(t *testing.T) {
	assert.Equal(t, "gcp", BuildTarget{Provider: "gcp"}.Profile())
	assert.Equal(t, "gcp-native", BuildTarget{Provider: "gcp", Native: true}.Profile())
}
