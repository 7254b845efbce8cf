package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/models"
)

func testTarget() models.BenchmarkTarget {
	return models.BenchmarkTarget{
		Provider:  "aws",
		Runtime:   "jvm",
		Benchmark: "echo",
	}
}

func TestPathLayout(t *testing.T) {
	s := NewStore("out")

	target := testTarget()
	assert.Equal(t,
		filepath.Join("out", "aws", "jvm", "echo", "COLD_10_default.json"),
		s.Path(target, models.ProfileCold, 10))

	target.MemoryMB = 1024
	assert.Equal(t,
		filepath.Join("out", "aws", "jvm", "echo", "WARM_5_1024.json"),
		s.Path(target, models.ProfileWarm, 5))
}

func TestSaveAndOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	target := testTarget()

	set := models.RunRecordSet{}
	require.NoError(t, set.Add(&models.InvocationRecord{RequestID: "a", ClientTime: 0.5}))
	require.NoError(t, set.Add(&models.InvocationRecord{RequestID: "b", ClientTime: 0.7}))

	path, err := s.Save(target, models.ProfileCold, 2, set)
	require.NoError(t, err)

	var loaded map[string]models.InvocationRecord
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Len(t, loaded, 2)
	assert.InDelta(t, 0.5, loaded["a"].ClientTime, 1e-9)

	// A second run of the same configuration replaces the file wholesale.
	replacement := models.RunRecordSet{}
	require.NoError(t, replacement.Add(&models.InvocationRecord{RequestID: "c", ClientTime: 0.9}))

	again, err := s.Save(target, models.ProfileCold, 2, replacement)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	loaded = nil
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Len(t, loaded, 1)
	assert.Contains(t, loaded, "c")
}
