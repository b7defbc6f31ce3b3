// Package planner turns a text string into a Plan: an ordered sequence of
// Spans whose flattened words equal the tokenized input exactly.
package planner

import (
	"regexp"
	"strings"

	"github.com/clipweave/stitcher/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lookup is the subset of the Index the Planner depends on, so tests can
// supply a fake without a real corpus.
type Lookup interface {
	LookupWord(word string, excludeVideos []string, channelFilter string) (model.WordClip, bool)
	FindPhrase(phrase []string, excludeVideos []string, channelFilter string, padStart, padEnd float64) (model.Span, bool)
}

var wordPattern = regexp.MustCompile(`\b[\w']+\b`)

var lowercaser = cases.Lower(language.Und)

// Tokenize normalizes text into a lowercase word sequence. A "word" matches
// \b[\w']+\b; standalone apostrophes are discarded.
func Tokenize(text string) []string {
	matches := wordPattern.FindAllString(text, -1)
	words := make([]string, 0, len(matches))
	for _, w := range matches {
		if w == "'" {
			continue
		}
		words = append(words, lowercaser.String(w))
	}
	return words
}

// Plan builds an ordered Plan for text using lookup, the greedy
// longest-phrase-match algorithm with a video-diversity tie-break.
func Plan(lookup Lookup, text string, budget model.PipelineBudget, channelFilter string) model.Plan {
	words := Tokenize(text)

	var spans []model.Span
	usedVideos := make([]string, 0, len(words))
	uniqueVideos := make(map[string]struct{})

	i := 0
	for i < len(words) {
		if span, length, ok := longestPhraseMatch(lookup, words, i, budget.MaxPhraseLength, usedVideos, channelFilter, budget.ClipPaddingStart, budget.ClipPaddingEnd); ok {
			spans = append(spans, span)
			usedVideos = append(usedVideos, span.VideoID)
			uniqueVideos[span.VideoID] = struct{}{}
			i += length
			continue
		}

		word := words[i]
		if clip, ok := lookup.LookupWord(word, usedVideos, channelFilter); ok {
			spans = append(spans, model.Span{
				Text:      word,
				VideoID:   clip.VideoID,
				StartTime: clip.StartTime,
				Duration:  clip.Duration,
				WordCount: 1,
			})
			usedVideos = append(usedVideos, clip.VideoID)
			uniqueVideos[clip.VideoID] = struct{}{}
		} else {
			spans = append(spans, model.Span{
				Text:      word,
				VideoID:   model.PlaceholderVideoID,
				Duration:  1.0,
				WordCount: 1,
			})
		}
		i++
	}

	return model.Plan{
		Spans: spans,
		Stats: model.PlanStats{
			UniqueVideos: len(uniqueVideos),
			TotalSpans:   len(spans),
		},
	}
}

// longestPhraseMatch tries phrase lengths from min(maxPhraseLength, remaining)
// down to 2, returning the first match found.
func longestPhraseMatch(lookup Lookup, words []string, i, maxPhraseLength int, usedVideos []string, channelFilter string, padStart, padEnd float64) (model.Span, int, bool) {
	remaining := len(words) - i
	maxLen := maxPhraseLength
	if remaining < maxLen {
		maxLen = remaining
	}
	for length := maxLen; length >= 2; length-- {
		phrase := words[i : i+length]
		if span, ok := lookup.FindPhrase(phrase, usedVideos, channelFilter, padStart, padEnd); ok {
			return span, length, true
		}
	}
	return model.Span{}, 0, false
}

// FlattenWords returns the per-word sequence implied by a Plan, expanding
// multi-word phrase spans into their constituent words, for verifying the
// order-preservation invariant against the original tokenized input.
func FlattenWords(plan model.Plan) []string {
	var out []string
	for _, s := range plan.Spans {
		if s.WordCount <= 1 {
			out = append(out, s.Text)
			continue
		}
		out = append(out, strings.Fields(s.Text)...)
	}
	return out
}
