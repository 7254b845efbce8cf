package knative

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

func TestPrepareRequestGeneratesUniqueIDs(t *testing.T) {
	p := New(Settings{})

	hdr1 := http.Header{}
	id1 := p.PrepareRequest(hdr1)
	require.NotEmpty(t, id1)
	assert.Equal(t, id1, hdr1.Get("x-client-trace-id"))

	hdr2 := http.Header{}
	id2 := p.PrepareRequest(hdr2)
	assert.NotEqual(t, id1, id2)
}

func TestCorrelationIDEchoesPregenerated(t *testing.T) {
	p := New(Settings{})

	id, err := p.CorrelationID("pre-gen-id", http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "pre-gen-id", id)
}

func TestFetchCandidatesReportsNoTelemetry(t *testing.T) {
	p := New(Settings{})

	_, err := p.FetchCandidates(t.Context(), "fn", models.Window{})
	assert.True(t, errors.Is(err, provider.ErrNoTelemetry))
}
