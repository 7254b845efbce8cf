package aws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = "REPORT RequestId: 8286a188-ba32-4475-8077-530cd35c09a9\t" +
	"Duration: 182.43 ms\tBilled Duration: 183 ms\tMemory Size: 512 MB\t" +
	"Max Memory Used: 74 MB\tInit Duration: 434.55 ms\t"

func TestParseReportLine(t *testing.T) {
	id, d, ok := parseReportLine(sampleReport)
	require.True(t, ok)
	assert.Equal(t, "8286a188-ba32-4475-8077-530cd35c09a9", id)
	assert.Equal(t, time.Duration(182.43*float64(time.Millisecond)), d)
}

func TestParseReportLineStartRequestID(t *testing.T) {
	line := "START RequestId: abc-123 Version: $LATEST\tDuration: 50.5 ms\t"
	id, d, ok := parseReportLine(line)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, time.Duration(50.5*float64(time.Millisecond)), d)
}

func TestParseReportLineRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"no request id", "Duration: 12.3 ms\tBilled Duration: 13 ms"},
		{"no duration", "REPORT RequestId: abc\tMemory Size: 128 MB"},
		{"unparseable duration", "REPORT RequestId: abc\tDuration: fast ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := parseReportLine(tt.line)
			assert.False(t, ok)
		})
	}
}
