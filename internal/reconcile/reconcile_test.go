package reconcile

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

// scriptedProvider returns one batch of entries per FetchCandidates call.
type scriptedProvider struct {
	batches [][]models.RawLogEntry
	calls   int
	err     error
}

func (p *scriptedProvider) Name() string                                          { return "scripted" }
func (p *scriptedProvider) EnforceColdStart(ctx context.Context, fn string) error { return nil }
func (p *scriptedProvider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	return nil
}
func (p *scriptedProvider) PrepareRequest(hdr http.Header) string { return "" }
func (p *scriptedProvider) CorrelationID(pregen string, resp http.Header) (string, error) {
	return "", nil
}

func (p *scriptedProvider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.calls <= len(p.batches) {
		return p.batches[p.calls-1], nil
	}
	return nil, nil
}

// ExtractMatch treats Fields["id"] as the correlation id and Fields["ms"]
// as milliseconds.
func (p *scriptedProvider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	id := entry.Fields["id"]
	if id == "" {
		return "", 0, false
	}
	d, err := time.ParseDuration(entry.Fields["ms"] + "ms")
	if err != nil {
		return "", 0, false
	}
	return id, d, true
}

func (p *scriptedProvider) Delete(ctx context.Context, fn string) error { return nil }

func entry(id, ms string) models.RawLogEntry {
	return models.RawLogEntry{Fields: map[string]string{"id": id, "ms": ms}}
}

func recordSet(ids ...string) models.RunRecordSet {
	set := models.RunRecordSet{}
	for _, id := range ids {
		set[id] = &models.InvocationRecord{RequestID: id}
	}
	return set
}

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	delays []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestReconciler() (*Reconciler, *fakeSleeper) {
	s := &fakeSleeper{}
	return New(WithSleeper(s.sleep)), s
}

func TestReconcileFullMatch(t *testing.T) {
	p := &scriptedProvider{batches: [][]models.RawLogEntry{
		{entry("a", "100"), entry("b", "200"), entry("c", "300")},
	}}
	set := recordSet("a", "b", "c")
	r, sleeper := newTestReconciler()

	policy := RetryPolicy{MaxAttempts: 10, InitialDelay: time.Minute, Interval: 10 * time.Second}
	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set, policy)
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.Equal(t, 3, report.Matched)
	assert.Equal(t, 1, p.calls, "no re-query once everything matched")
	assert.Equal(t, []time.Duration{time.Minute}, sleeper.delays, "only the ingestion delay")

	require.NotNil(t, set["b"].ProviderTime)
	assert.InDelta(t, 0.2, *set["b"].ProviderTime, 1e-9)
}

func TestReconcileZeroMatchTerminates(t *testing.T) {
	p := &scriptedProvider{}
	set := recordSet("a", "b")
	r, sleeper := newTestReconciler()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Minute, Interval: 10 * time.Second}
	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set, policy)
	require.NoError(t, err, "exhausting the retry budget is not fatal")

	assert.Equal(t, 3, p.calls, "exactly MaxAttempts queries")
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, []string{"a", "b"}, report.Unmatched)
	// Ingestion delay plus one interval between each pair of attempts.
	assert.Equal(t, []time.Duration{time.Minute, 10 * time.Second, 10 * time.Second}, sleeper.delays)
}

func TestReconcilePartialMatch(t *testing.T) {
	p := &scriptedProvider{batches: [][]models.RawLogEntry{
		{entry("a", "10"), entry("c", "30")},
	}}
	set := recordSet("a", "b", "c")
	r, _ := newTestReconciler()

	policy := RetryPolicy{MaxAttempts: 2, Interval: time.Second}
	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set, policy)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, []string{"b"}, report.Unmatched)

	assert.NotNil(t, set["a"].ProviderTime)
	assert.Nil(t, set["b"].ProviderTime, "unmatched record keeps a nil provider time")
}

func TestReconcileIgnoresForeignEntries(t *testing.T) {
	p := &scriptedProvider{batches: [][]models.RawLogEntry{
		{entry("other-run", "10"), entry("a", "20"), {Fields: map[string]string{}}},
	}}
	set := recordSet("a")
	r, _ := newTestReconciler()

	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set,
		RetryPolicy{MaxAttempts: 1})
	require.NoError(t, err)
	assert.True(t, report.Complete())
}

func TestReconcileIdempotent(t *testing.T) {
	p := &scriptedProvider{batches: [][]models.RawLogEntry{
		{entry("a", "10")},
	}}
	set := recordSet("a")
	r, _ := newTestReconciler()

	_, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set,
		RetryPolicy{MaxAttempts: 5, InitialDelay: time.Minute})
	require.NoError(t, err)

	// Second pass has nothing pending and must not query or sleep at all.
	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set,
		RetryPolicy{MaxAttempts: 5, InitialDelay: time.Minute})
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, 1, p.calls)
}

func TestReconcileNoTelemetryBackend(t *testing.T) {
	p := &scriptedProvider{err: provider.ErrNoTelemetry}
	set := recordSet("a", "b")
	r, _ := newTestReconciler()

	report, err := r.Reconcile(t.Context(), p, "fn", models.Window{}, set,
		RetryPolicy{MaxAttempts: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls, "no retries against a backend that does not exist")
	assert.Equal(t, []string{"a", "b"}, report.Unmatched)
}
