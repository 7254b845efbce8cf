package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

// headerProvider extracts the correlation id from a response header, like
// the managed platforms do.
type headerProvider struct {
	header string
}

func (p *headerProvider) Name() string                                          { return "fake" }
func (p *headerProvider) EnforceColdStart(ctx context.Context, fn string) error { return nil }
func (p *headerProvider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	return nil
}
func (p *headerProvider) PrepareRequest(hdr http.Header) string { return "" }
func (p *headerProvider) CorrelationID(pregen string, resp http.Header) (string, error) {
	id := resp.Get(p.header)
	if id == "" {
		return "", fmt.Errorf("response missing %s header", p.header)
	}
	return id, nil
}
func (p *headerProvider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	return nil, provider.ErrNoTelemetry
}
func (p *headerProvider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	return "", 0, false
}
func (p *headerProvider) Delete(ctx context.Context, fn string) error { return nil }

// pregenProvider injects a client-generated id, like knative.
type pregenProvider struct {
	headerProvider
	next string
}

func (p *pregenProvider) PrepareRequest(hdr http.Header) string {
	hdr.Set("x-client-trace-id", p.next)
	return p.next
}

func (p *pregenProvider) CorrelationID(pregen string, resp http.Header) (string, error) {
	return pregen, nil
}

func TestInvokeHeaderExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("x-request-id", "req-123")
		fmt.Fprint(w, `{"is_cold": true, "result": "ok"}`)
	}))
	defer srv.Close()

	c := New()
	rec, err := c.Invoke(t.Context(), &headerProvider{header: "x-request-id"}, srv.URL, "POST",
		map[string]any{"n": 1})
	require.NoError(t, err)

	assert.Equal(t, "req-123", rec.RequestID)
	assert.True(t, rec.IsCold())
	assert.GreaterOrEqual(t, rec.ClientEnd, rec.ClientBegin)
	assert.InDelta(t, float64(rec.ClientEnd-rec.ClientBegin)/1e6, rec.ClientTime, 1e-6)
}

func TestInvokePregeneratedID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("x-client-trace-id")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	p := &pregenProvider{next: "client-id-7"}
	c := New()
	rec, err := c.Invoke(t.Context(), p, srv.URL, "POST", nil)
	require.NoError(t, err)

	assert.Equal(t, "client-id-7", rec.RequestID)
	assert.Equal(t, "client-id-7", seen, "pregenerated id must travel on the request")
}

func TestInvokePreservesMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-request-id", "req-1")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>502 Bad Gateway</html>")
	}))
	defer srv.Close()

	c := New()
	rec, err := c.Invoke(t.Context(), &headerProvider{header: "x-request-id"}, srv.URL, "POST", nil)
	require.NoError(t, err, "a malformed body is not an invocation error")

	assert.Equal(t, "<html>502 Bad Gateway</html>", rec.ResponseBody)
	assert.False(t, rec.IsCold())
}

func TestInvokeConnectivityError(t *testing.T) {
	// A server that is already closed refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(WithRetries(2, time.Millisecond))
	_, err := c.Invoke(t.Context(), &headerProvider{header: "x-request-id"}, url, "POST", nil)
	require.Error(t, err)

	var connErr *ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, 3, connErr.Attempts)
	assert.Equal(t, url, connErr.URL)
}

func TestInvokeMissingCorrelationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := New(WithRetries(2, time.Millisecond))
	_, err := c.Invoke(t.Context(), &headerProvider{header: "x-request-id"}, srv.URL, "POST", nil)
	require.Error(t, err)

	var connErr *ConnectivityError
	assert.False(t, errors.As(err, &connErr), "a missing header is not a connectivity problem")
	assert.Contains(t, err.Error(), "missing x-request-id")
}
