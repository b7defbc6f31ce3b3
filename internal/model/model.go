// Package model defines the value types that flow through the pipeline:
// word clips loaded from the index, spans produced by the planner, segment
// files produced by the fetcher and transcoder, and the final artifact.
package model

import "time"

// PlaceholderVideoID marks a Span synthesized for a word absent from the index.
const PlaceholderVideoID = "⟨placeholder⟩"

// WordClip is one known occurrence of one lowercase word in one source video.
type WordClip struct {
	Word      string
	VideoID   string
	StartTime float64
	Duration  float64
}

// TranscriptEntry is one word-level timing record within a Transcript.
type TranscriptEntry struct {
	Word  string
	Start float64
	End   float64
}

// Transcript is the complete word-level timing for one source video.
type Transcript struct {
	VideoID string
	Entries []TranscriptEntry
}

// VideoMeta is optional per-video metadata used only for channel filtering.
type VideoMeta struct {
	VideoID      string
	Title        string
	ChannelID    string
	ChannelTitle string
	PublishedAt  string
}

// Span is a contiguous interval in one source video covering one word or an
// n-word phrase. A Placeholder Span has VideoID == PlaceholderVideoID and
// carries only the literal word to render as a title card.
type Span struct {
	Text      string
	VideoID   string
	StartTime float64
	Duration  float64
	WordCount int
	// Bookend marks a synthesized intro/outro card: it is concatenated into
	// the output like any other segment but never emits a WordTiming record.
	Bookend bool
}

// IsPlaceholder reports whether s is a synthesized title-card span.
func (s Span) IsPlaceholder() bool {
	return s.VideoID == PlaceholderVideoID
}

// Plan is the ordered sequence of spans whose flattened per-word sequence
// equals the input word sequence exactly (length, order, and spelling).
type Plan struct {
	Spans []Span
	Stats PlanStats
}

// PlanStats records observability-only facts about how a Plan was built.
type PlanStats struct {
	UniqueVideos int
	TotalSpans   int
}

// SegmentState is the processing stage a SegmentFile has reached.
type SegmentState int

const (
	// SegmentRaw is an unprocessed fetch/placeholder output.
	SegmentRaw SegmentState = iota
	// SegmentCanonical has passed through the transcoder's canonical pipeline.
	SegmentCanonical
)

func (s SegmentState) String() string {
	switch s {
	case SegmentRaw:
		return "raw"
	case SegmentCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// SegmentFile is a media file on local disk realizing one span.
type SegmentFile struct {
	Path  string
	Span  Span
	State SegmentState
}

// AspectRatio is a supported output frame geometry slot.
type AspectRatio string

const (
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio1x1  AspectRatio = "1:1"
)

// Dimensions returns the canonical pixel resolution for the aspect ratio slot.
func (a AspectRatio) Dimensions() (width, height int, ok bool) {
	switch a {
	case AspectRatio16x9, "":
		return 1920, 1080, true
	case AspectRatio9x16:
		return 1080, 1920, true
	case AspectRatio1x1:
		return 1080, 1080, true
	default:
		return 0, 0, false
	}
}

// PipelineBudget is the single explicit configuration value type for
// resource limits and cut behavior. Validate range-checks its values
// before a run.
type PipelineBudget struct {
	MaxDownloadWorkers  int
	MaxTranscodeWorkers int
	DownloadTimeout     time.Duration
	TranscodeTimeout    time.Duration
	MaxFailureRate      float64
	MaxPhraseLength     int
	ClipPaddingStart    float64
	ClipPaddingEnd      float64
	AspectRatio         AspectRatio
	NormalizeAudio      bool
	CleanupTempFiles    bool
}

// StyleOptions carries the optional presentation knobs for one generate call.
type StyleOptions struct {
	IntroText     string
	OutroText     string
	WatermarkText string
	AddSubtitles  bool
	ChannelFilter string
	StrictMode    bool // PlanEmpty is raised instead of falling back to placeholders
}

// WordTiming is one record of the final output's timeline, in output order.
type WordTiming struct {
	Word     string
	StartSec float64
	EndSec   float64
}

// FinalArtifact is the result of a successful generate call.
type FinalArtifact struct {
	OutputPath string
	Timings    []WordTiming
}
