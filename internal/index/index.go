// Package index provides the read-only lookup of word and phrase
// occurrences over a corpus of indexed source videos. It answers two
// queries without side effects and never errors on a lookup miss: a miss
// is a normal outcome in this domain, not an exceptional one.
package index

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipweave/stitcher/internal/cache"
	"github.com/clipweave/stitcher/internal/model"
)

// negativeLookupTTL bounds how long a "phrase matches nothing in the
// corpus" result is trusted. LoadTranscripts also clears the miss cache
// explicitly, so a reload never serves a miss from the previous corpus.
const negativeLookupTTL = 5 * time.Minute

// Index is an in-memory, read-only snapshot of WordClips and Transcripts.
// Any number of goroutines may call its lookup methods concurrently.
type Index struct {
	mu sync.RWMutex // guards nothing after Load; retained for future hot-reload

	// byWord maps a lowercase word to every known clip of it, across videos.
	byWord map[string][]model.WordClip

	// transcripts maps videoId to its ordered word-level timing.
	transcripts map[string]model.Transcript

	// meta maps videoId to optional channel/title metadata.
	meta map[string]model.VideoMeta

	// phraseMiss remembers phrases that FindPhrase scanned every transcript
	// for and found nowhere, keyed by channel filter and phrase. A long
	// plan commonly repeats common phrases that aren't in the corpus
	// (filler words, connectives); without this, each repeat costs a full
	// linear scan of every transcript to rediscover the same miss. A miss
	// is independent of excludeVideos and padding, so it's safe to share
	// across calls with different diversity state.
	phraseMiss cache.Cache
}

// New returns an empty Index. Use Load to populate it, or construct one
// directly from pre-built maps in tests.
func New() *Index {
	return &Index{
		byWord:      make(map[string][]model.WordClip),
		transcripts: make(map[string]model.Transcript),
		meta:        make(map[string]model.VideoMeta),
		// cleanupInterval 0: no background janitor goroutine. The Index
		// has no explicit Close, so a running janitor would leak for the
		// process lifetime. Expired entries are never returned by Get but
		// stay in memory until LoadTranscripts clears the cache; the cache
		// has no size bound.
		phraseMiss: cache.NewMemoryCache(0),
	}
}

// LoadWordClips replaces the word->clips mapping. Intended for bulk load at
// startup; the Index is immutable from the pipeline's perspective afterward.
func (idx *Index) LoadWordClips(clips []model.WordClip) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byWord := make(map[string][]model.WordClip, len(clips))
	for _, c := range clips {
		key := strings.ToLower(c.Word)
		byWord[key] = append(byWord[key], c)
	}
	idx.byWord = byWord
}

// LoadTranscripts replaces the videoId->Transcript mapping.
func (idx *Index) LoadTranscripts(transcripts []model.Transcript) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m := make(map[string]model.Transcript, len(transcripts))
	for _, t := range transcripts {
		m[t.VideoID] = t
	}
	idx.transcripts = m
	idx.phraseMiss.Clear()
}

// LoadVideoMeta replaces the videoId->VideoMeta mapping.
func (idx *Index) LoadVideoMeta(metas []model.VideoMeta) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m := make(map[string]model.VideoMeta, len(metas))
	for _, v := range metas {
		m[v.VideoID] = v
	}
	idx.meta = m
}

func (idx *Index) videoInChannel(videoID, channelFilter string) bool {
	if channelFilter == "" {
		return true
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	meta, ok := idx.meta[videoID]
	return ok && meta.ChannelID == channelFilter
}

func contains(excludeVideos []string, videoID string) bool {
	for _, v := range excludeVideos {
		if v == videoID {
			return true
		}
	}
	return false
}

// LookupWord performs a case-insensitive single-word lookup. It prefers a
// clip from a video not in excludeVideos; otherwise it returns any clip;
// otherwise it reports found=false. If channelFilter is non-empty, only
// clips from videos in that channel are considered.
func (idx *Index) LookupWord(word string, excludeVideos []string, channelFilter string) (model.WordClip, bool) {
	idx.mu.RLock()
	candidates := idx.byWord[strings.ToLower(word)]
	idx.mu.RUnlock()

	if len(candidates) == 0 {
		return model.WordClip{}, false
	}

	var fallback *model.WordClip
	for i := range candidates {
		c := candidates[i]
		if !idx.videoInChannel(c.VideoID, channelFilter) {
			continue
		}
		if !contains(excludeVideos, c.VideoID) {
			return c, true
		}
		if fallback == nil {
			fallback = &c
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return model.WordClip{}, false
}

// FindPhrase scans transcripts for a case-insensitive match of the
// consecutive word sequence phrase. It prefers the first match in a video
// not in excludeVideos; if none, it returns the first match from excluded
// videos. The returned span's StartTime is firstWord.Start-padStart
// (clamped at 0) and its Duration is lastWord.End-firstWord.Start+padStart+padEnd.
func (idx *Index) FindPhrase(phrase []string, excludeVideos []string, channelFilter string, padStart, padEnd float64) (model.Span, bool) {
	if len(phrase) == 0 {
		return model.Span{}, false
	}

	missKey := channelFilter + "\x00" + strings.ToLower(strings.Join(phrase, " "))
	if _, missed := idx.phraseMiss.Get(missKey); missed {
		return model.Span{}, false
	}

	idx.mu.RLock()
	videoIDs := make([]string, 0, len(idx.transcripts))
	for id := range idx.transcripts {
		videoIDs = append(videoIDs, id)
	}
	// Deterministic scan order so "first match" is reproducible across runs.
	sort.Strings(videoIDs)

	var excludedMatch *model.Span
	for _, videoID := range videoIDs {
		if !idx.videoInChannel(videoID, channelFilter) {
			continue
		}
		t := idx.transcripts[videoID]
		span, ok := matchPhraseInTranscript(t, phrase, padStart, padEnd)
		if !ok {
			continue
		}
		if !contains(excludeVideos, videoID) {
			idx.mu.RUnlock()
			return span, true
		}
		if excludedMatch == nil {
			s := span
			excludedMatch = &s
		}
	}
	idx.mu.RUnlock()

	if excludedMatch != nil {
		return *excludedMatch, true
	}
	idx.phraseMiss.Set(missKey, true, negativeLookupTTL)
	return model.Span{}, false
}

// matchPhraseInTranscript finds the first occurrence of phrase (lowercase
// word sequence) within t.Entries and returns the corresponding Span.
// Comparison stops at the first occurrence per transcript.
func matchPhraseInTranscript(t model.Transcript, phrase []string, padStart, padEnd float64) (model.Span, bool) {
	n := len(t.Entries)
	p := len(phrase)
	if p == 0 || p > n {
		return model.Span{}, false
	}

	for i := 0; i+p <= n; i++ {
		matched := true
		for j := 0; j < p; j++ {
			if !strings.EqualFold(t.Entries[i+j].Word, phrase[j]) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		first := t.Entries[i]
		last := t.Entries[i+p-1]

		start := first.Start - padStart
		if start < 0 {
			start = 0
		}
		duration := last.End - first.Start + padStart + padEnd

		return model.Span{
			Text:      strings.Join(phrase, " "),
			VideoID:   t.VideoID,
			StartTime: start,
			Duration:  duration,
			WordCount: p,
		}, true
	}
	return model.Span{}, false
}
