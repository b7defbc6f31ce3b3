package orchestrator

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipweave/stitcher/internal/concat"
	"github.com/clipweave/stitcher/internal/fetcher"
	"github.com/clipweave/stitcher/internal/index"
	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/probe"
	"github.com/clipweave/stitcher/internal/ratelimit"
	"github.com/clipweave/stitcher/internal/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSource struct{}

func (fakeSource) Open(ctx context.Context, span model.Span) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("fake media"))), nil
}

type alwaysSound struct{}

func (alwaysSound) IsSound(path string) bool { return true }

func (alwaysSound) Properties(path string) (probe.Properties, error) {
	return probe.Properties{DurationSec: 1.0}, nil
}

func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/bash\ntouch \"${@: -1}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestOrchestrator(t *testing.T, lookup Lookup) *Orchestrator {
	t.Helper()
	ffmpegPath := fakeFFmpeg(t)

	budget := model.DefaultPipelineBudget()
	budget.MaxDownloadWorkers = 2
	budget.MaxTranscodeWorkers = 2

	return New(
		lookup,
		fakeSource{},
		alwaysSound{},
		fetcher.Config{
			MaxWorkers: 2,
			RateLimit: ratelimit.Config{
				GlobalRate: 1000, GlobalBurst: 1000,
				PerHostRate: 1000, PerHostBurst: 1000,
			},
		},
		transcode.Config{FFmpegPath: ffmpegPath},
		concat.Config{FFmpegPath: ffmpegPath},
		t.TempDir(),
	)
}

func TestGenerate_ProducesArtifactWithTimingsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	idx := index.New()
	idx.LoadWordClips([]model.WordClip{
		{Word: "hello", VideoID: "V1", StartTime: 0, Duration: 0.5},
		{Word: "world", VideoID: "V2", StartTime: 0.5, Duration: 0.5},
	})

	o := newTestOrchestrator(t, idx)
	budget := model.DefaultPipelineBudget()
	budget.CleanupTempFiles = false

	artifact, err := o.Generate(context.Background(), "Hello world", budget, model.StyleOptions{})
	require.NoError(t, err)
	assert.FileExists(t, artifact.OutputPath)
	require.Len(t, artifact.Timings, 2)
	assert.Equal(t, "hello", artifact.Timings[0].Word)
	assert.Equal(t, "world", artifact.Timings[1].Word)
}

func TestGenerate_RejectsEmptyInput(t *testing.T) {
	idx := index.New()
	o := newTestOrchestrator(t, idx)
	_, err := o.Generate(context.Background(), "   ", model.DefaultPipelineBudget(), model.StyleOptions{})
	assert.Error(t, err)
}

func TestGenerate_StrictModeFailsOnEmptyPlan(t *testing.T) {
	idx := index.New()
	o := newTestOrchestrator(t, idx)
	_, err := o.Generate(context.Background(), "xyzzy plugh", model.DefaultPipelineBudget(), model.StyleOptions{StrictMode: true})
	assert.Error(t, err)
}

func TestGenerate_MissingWordStillProducesPlaceholderSlot(t *testing.T) {
	idx := index.New()
	idx.LoadWordClips([]model.WordClip{
		{Word: "hello", VideoID: "V1", StartTime: 0, Duration: 0.5},
	})

	o := newTestOrchestrator(t, idx)
	artifact, err := o.Generate(context.Background(), "hello xyzzy", model.DefaultPipelineBudget(), model.StyleOptions{})
	require.NoError(t, err)
	require.Len(t, artifact.Timings, 2)
	assert.Equal(t, "xyzzy", artifact.Timings[1].Word)
}

func TestGenerate_IntroAndOutroCardsExcludedFromTimings(t *testing.T) {
	idx := index.New()
	idx.LoadWordClips([]model.WordClip{{Word: "hello", VideoID: "V1", StartTime: 0, Duration: 0.5}})

	o := newTestOrchestrator(t, idx)
	artifact, err := o.Generate(context.Background(), "hello", model.DefaultPipelineBudget(), model.StyleOptions{
		IntroText: "Welcome",
		OutroText: "Thanks for watching",
	})
	require.NoError(t, err)
	require.Len(t, artifact.Timings, 1)
	assert.Equal(t, "hello", artifact.Timings[0].Word)
	assert.Equal(t, 1.0, artifact.Timings[0].StartSec)
}
