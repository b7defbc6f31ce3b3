package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/clipweave/stitcher/internal/ledger"
	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/ratelimit"
	"github.com/clipweave/stitcher/internal/workspace"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSource struct {
	mu      sync.Mutex
	opened  []string
	failFor map[string]bool
}

func (f *fakeSource) Open(ctx context.Context, span model.Span) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opened = append(f.opened, span.VideoID)
	f.mu.Unlock()

	if f.failFor[span.VideoID] {
		return nil, fmt.Errorf("simulated remote failure for %s", span.VideoID)
	}
	return io.NopCloser(bytes.NewReader([]byte("fake media bytes for " + span.VideoID))), nil
}

type alwaysSound struct{}

func (alwaysSound) IsSound(path string) bool { return true }

func fastLimitConfig() ratelimit.Config {
	return ratelimit.Config{GlobalRate: 1000, GlobalBurst: 1000, PerHostRate: 1000, PerHostBurst: 1000, CleanupInterval: 0}
}

func newTestFetcher(t *testing.T, source RemoteSource, prober Prober, maxFailureRate float64) *Fetcher {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Destroy() })

	cfg := Config{MaxWorkers: 3, RateLimit: fastLimitConfig(), MaxFailureRate: maxFailureRate}
	return New(source, prober, ws, cfg)
}

func TestFetch_ResolvesSpansInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plan := model.Plan{Spans: []model.Span{
		{Text: "hello", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "world", VideoID: "V2", StartTime: 1, Duration: 1, WordCount: 1},
		{Text: "again", VideoID: "V3", StartTime: 2, Duration: 1, WordCount: 1},
	}}

	f := newTestFetcher(t, &fakeSource{failFor: map[string]bool{}}, alwaysSound{}, 0)
	segments, err := f.Fetch(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	for i, seg := range segments {
		assert.Equal(t, plan.Spans[i].VideoID, seg.Span.VideoID)
		assert.NotEmpty(t, seg.Path)
		assert.Equal(t, model.SegmentRaw, seg.State)
	}
}

func TestFetch_PlaceholderSpansPassThroughUntouched(t *testing.T) {
	plan := model.Plan{Spans: []model.Span{
		{Text: "hello", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "xyzzy", VideoID: model.PlaceholderVideoID, Duration: 1, WordCount: 1},
	}}

	source := &fakeSource{failFor: map[string]bool{}}
	f := newTestFetcher(t, source, alwaysSound{}, 0)
	segments, err := f.Fetch(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Empty(t, segments[1].Path)
	assert.True(t, segments[1].Span.IsPlaceholder())

	// Only the non-placeholder span should ever have reached the remote source.
	assert.Equal(t, []string{"V1"}, source.opened)
}

func TestFetch_BelowFailureRateThresholdSucceedsWithPartialResults(t *testing.T) {
	plan := model.Plan{Spans: []model.Span{
		{Text: "a", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "b", VideoID: "V2", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "c", VideoID: "V3", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "d", VideoID: "V4", StartTime: 0, Duration: 1, WordCount: 1},
	}}

	source := &fakeSource{failFor: map[string]bool{"V2": true}}
	f := newTestFetcher(t, source, alwaysSound{}, 0.5)
	segments, err := f.Fetch(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, segments[1].Path)
	assert.NotEmpty(t, segments[0].Path)
	assert.NotEmpty(t, segments[2].Path)
	assert.NotEmpty(t, segments[3].Path)
}

func TestFetch_AboveFailureRateThresholdReturnsPhaseError(t *testing.T) {
	plan := model.Plan{Spans: []model.Span{
		{Text: "a", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "b", VideoID: "V2", StartTime: 0, Duration: 1, WordCount: 1},
		{Text: "c", VideoID: "V3", StartTime: 0, Duration: 1, WordCount: 1},
	}}

	source := &fakeSource{failFor: map[string]bool{"V1": true, "V2": true}}
	f := newTestFetcher(t, source, alwaysSound{}, 0.3)
	_, err := f.Fetch(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failure rate")
}

type unsoundProber struct{}

func (unsoundProber) IsSound(path string) bool { return false }

func TestFetch_FailsSpanWhenProbeRejectsFile(t *testing.T) {
	plan := model.Plan{Spans: []model.Span{
		{Text: "a", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1},
	}}

	f := newTestFetcher(t, &fakeSource{failFor: map[string]bool{}}, unsoundProber{}, 1.0)
	segments, err := f.Fetch(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, segments[0].Path)
}

func TestFetch_LedgerHitSkipsRemoteSourceEntirely(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Destroy() })

	bl, err := ledger.OpenBadger(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bl.Close() })

	span := model.Span{Text: "hello", VideoID: "V1", StartTime: 0, Duration: 1, WordCount: 1}
	key := workspace.CacheKey{VideoID: span.VideoID, StartTime: span.StartTime, Duration: span.Duration}
	cachedPath := ws.RawPath(key, ".mp4")
	require.NoError(t, workspace.WriteAtomic(cachedPath, bytes.NewReader([]byte("already fetched"))))
	require.NoError(t, bl.Record(context.Background(), key.Digest(), cachedPath))

	source := &fakeSource{failFor: map[string]bool{}}
	f := New(source, alwaysSound{}, ws, Config{MaxWorkers: 1, RateLimit: fastLimitConfig(), Ledger: bl})

	segments, err := f.Fetch(context.Background(), model.Plan{Spans: []model.Span{span}})
	require.NoError(t, err)

	require.Empty(t, source.opened, "ledger hit must skip the remote source")
	if diff := cmp.Diff(cachedPath, segments[0].Path); diff != "" {
		t.Fatalf("unexpected segment path (-want +got):\n%s", diff)
	}
}
