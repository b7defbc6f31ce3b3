package index

import (
	"testing"

	"github.com/clipweave/stitcher/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex() *Index {
	idx := New()
	idx.LoadWordClips([]model.WordClip{
		{Word: "goodbye", VideoID: "V3", StartTime: 1.0, Duration: 0.8},
		{Word: "quick", VideoID: "V2", StartTime: 0.5, Duration: 0.4},
	})
	idx.LoadTranscripts([]model.Transcript{
		{
			VideoID: "V1",
			Entries: []model.TranscriptEntry{
				{Word: "hello", Start: 0.0, End: 0.5},
				{Word: "world", Start: 0.5, End: 1.0},
				{Word: "how", Start: 1.0, End: 1.3},
				{Word: "are", Start: 1.3, End: 1.6},
				{Word: "you", Start: 1.6, End: 2.3},
			},
		},
		{
			VideoID: "V4",
			Entries: []model.TranscriptEntry{
				{Word: "the", Start: 0.0, End: 0.2},
				{Word: "quick", Start: 0.2, End: 0.5},
				{Word: "brown", Start: 0.5, End: 0.9},
				{Word: "fox", Start: 0.9, End: 1.2},
			},
		},
	})
	return idx
}

func TestFindPhrase_SingleVideoFullMatch(t *testing.T) {
	idx := newTestIndex()
	span, ok := idx.FindPhrase([]string{"hello", "world", "how", "are", "you"}, nil, "", 0, 0)
	require.True(t, ok)
	assert.Equal(t, "V1", span.VideoID)
	assert.InDelta(t, 0.0, span.StartTime, 1e-9)
	assert.InDelta(t, 2.3, span.Duration, 1e-9)
	assert.Equal(t, 5, span.WordCount)
}

func TestFindPhrase_GreedyThenOrphan(t *testing.T) {
	idx := newTestIndex()
	span, ok := idx.FindPhrase([]string{"the", "quick", "brown"}, nil, "", 0, 0)
	require.True(t, ok)
	assert.Equal(t, "V4", span.VideoID)

	clip, ok := idx.LookupWord("goodbye", []string{"V4"}, "")
	require.True(t, ok)
	assert.Equal(t, "V3", clip.VideoID)
}

func TestFindPhrase_NoMatchReturnsFalse(t *testing.T) {
	idx := newTestIndex()
	_, ok := idx.FindPhrase([]string{"xyzzy", "plugh"}, nil, "", 0, 0)
	assert.False(t, ok)
}

func TestFindPhrase_RepeatedMissIsServedFromCache(t *testing.T) {
	idx := newTestIndex()
	_, ok := idx.FindPhrase([]string{"xyzzy", "plugh"}, nil, "", 0, 0)
	assert.False(t, ok)

	cached, hit := idx.phraseMiss.Get("\x00xyzzy plugh")
	require.True(t, hit)
	assert.Equal(t, true, cached)

	// A second lookup with a different exclude/padding still reports a
	// miss, sourced from the cache rather than a fresh scan.
	_, ok = idx.FindPhrase([]string{"xyzzy", "plugh"}, []string{"V1"}, "", 2.0, 3.0)
	assert.False(t, ok)
}

func TestFindPhrase_ReloadInvalidatesMissCache(t *testing.T) {
	idx := newTestIndex()
	_, ok := idx.FindPhrase([]string{"brand", "new"}, nil, "", 0, 0)
	assert.False(t, ok)

	idx.LoadTranscripts([]model.Transcript{
		{VideoID: "V9", Entries: []model.TranscriptEntry{
			{Word: "brand", Start: 0, End: 0.5},
			{Word: "new", Start: 0.5, End: 1.0},
		}},
	})

	span, ok := idx.FindPhrase([]string{"brand", "new"}, nil, "", 0, 0)
	require.True(t, ok)
	assert.Equal(t, "V9", span.VideoID)
}

func TestFindPhrase_PrefersNonExcludedVideo(t *testing.T) {
	idx := New()
	idx.LoadTranscripts([]model.Transcript{
		{VideoID: "A", Entries: []model.TranscriptEntry{{Word: "hi", Start: 0, End: 1}, {Word: "there", Start: 1, End: 2}}},
		{VideoID: "B", Entries: []model.TranscriptEntry{{Word: "hi", Start: 0, End: 1}, {Word: "there", Start: 1, End: 2}}},
	})
	span, ok := idx.FindPhrase([]string{"hi", "there"}, []string{"A"}, "", 0, 0)
	require.True(t, ok)
	assert.Equal(t, "B", span.VideoID)
}

func TestFindPhrase_FallsBackToExcludedWhenNoAlternative(t *testing.T) {
	idx := New()
	idx.LoadTranscripts([]model.Transcript{
		{VideoID: "A", Entries: []model.TranscriptEntry{{Word: "hi", Start: 0, End: 1}, {Word: "there", Start: 1, End: 2}}},
	})
	span, ok := idx.FindPhrase([]string{"hi", "there"}, []string{"A"}, "", 0, 0)
	require.True(t, ok)
	assert.Equal(t, "A", span.VideoID)
}

func TestFindPhrase_PaddingClampsAtZero(t *testing.T) {
	idx := newTestIndex()
	span, ok := idx.FindPhrase([]string{"hello", "world"}, nil, "", 5.0, 1.0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, span.StartTime, 1e-9)
	assert.InDelta(t, 1.0+5.0+1.0, span.Duration, 1e-9)
}

func TestLookupWord_CaseInsensitive(t *testing.T) {
	idx := newTestIndex()
	clip, ok := idx.LookupWord("Goodbye", nil, "")
	require.True(t, ok)
	assert.Equal(t, "V3", clip.VideoID)
}

func TestLookupWord_ExcludesVideoWhenAlternativeExists(t *testing.T) {
	idx := New()
	idx.LoadWordClips([]model.WordClip{
		{Word: "quick", VideoID: "V2", StartTime: 0, Duration: 1},
		{Word: "quick", VideoID: "V5", StartTime: 0, Duration: 1},
	})
	clip, ok := idx.LookupWord("quick", []string{"V2"}, "")
	require.True(t, ok)
	assert.Equal(t, "V5", clip.VideoID)
}

func TestLookupWord_Miss(t *testing.T) {
	idx := newTestIndex()
	_, ok := idx.LookupWord("xyzzy", nil, "")
	assert.False(t, ok)
}

func TestLookupWord_ChannelFilter(t *testing.T) {
	idx := New()
	idx.LoadWordClips([]model.WordClip{{Word: "quick", VideoID: "V2", StartTime: 0, Duration: 1}})
	idx.LoadVideoMeta([]model.VideoMeta{{VideoID: "V2", ChannelID: "chanA"}})

	_, ok := idx.LookupWord("quick", nil, "chanB")
	assert.False(t, ok)

	clip, ok := idx.LookupWord("quick", nil, "chanA")
	require.True(t, ok)
	assert.Equal(t, "V2", clip.VideoID)
}
