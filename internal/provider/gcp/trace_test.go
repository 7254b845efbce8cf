package gcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/models"
)

func TestExtractTraceID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"log entry form", "projects/my-proj/traces/abc123def", "abc123def"},
		{"header with span and options", "abc123def/456;o=1", "abc123def"},
		{"header with span only", "abc123def/456", "abc123def"},
		{"bare trace id", "abc123def", "abc123def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := extractTraceID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	_, err := extractTraceID("")
	require.Error(t, err)
}

func TestExtractMatch(t *testing.T) {
	p := &Provider{}

	entry := models.RawLogEntry{Fields: map[string]string{
		"trace":   "projects/my-proj/traces/abc123def",
		"latency": "123ms",
	}}
	id, d, ok := p.ExtractMatch(entry)
	require.True(t, ok)
	assert.Equal(t, "abc123def", id)
	assert.Equal(t, 123*time.Millisecond, d)

	// Entries without a usable latency carry no measurement.
	_, _, ok = p.ExtractMatch(models.RawLogEntry{Fields: map[string]string{
		"trace":   "projects/my-proj/traces/abc",
		"latency": "0s",
	}})
	assert.False(t, ok)

	_, _, ok = p.ExtractMatch(models.RawLogEntry{Fields: map[string]string{}})
	assert.False(t, ok)
}

func TestCPUForMemory(t *testing.T) {
	assert.Equal(t, "1", cpuForMemory(512))
	assert.Equal(t, "1", cpuForMemory(2048))
	assert.Equal(t, "2", cpuForMemory(4096))
	assert.Equal(t, "4", cpuForMemory(8192))
}
