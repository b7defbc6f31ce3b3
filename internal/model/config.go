package model

import (
	"fmt"
	"time"
)

// DefaultPipelineBudget returns the documented defaults: low download
// concurrency (the remote source is rate-sensitive), generous transcode
// concurrency, and cleanup enabled.
func DefaultPipelineBudget() PipelineBudget {
	return PipelineBudget{
		MaxDownloadWorkers:  3,
		MaxTranscodeWorkers: 4,
		DownloadTimeout:     2 * time.Minute,
		TranscodeTimeout:    5 * time.Minute,
		MaxFailureRate:      0.2,
		MaxPhraseLength:     10,
		ClipPaddingStart:    0,
		ClipPaddingEnd:      0,
		AspectRatio:         AspectRatio16x9,
		NormalizeAudio:      true,
		CleanupTempFiles:    true,
	}
}

// Validate hard-bounds worker counts to [1,10] and phrase length to [1,50]
// per the pipeline's concurrency and input-error contract, and rejects
// unrecognized aspect ratio slots at the boundary.
func (b PipelineBudget) Validate() error {
	if b.MaxDownloadWorkers < 1 || b.MaxDownloadWorkers > 10 {
		return fmt.Errorf("model: maxDownloadWorkers %d out of range [1,10]", b.MaxDownloadWorkers)
	}
	if b.MaxTranscodeWorkers < 1 || b.MaxTranscodeWorkers > 10 {
		return fmt.Errorf("model: maxTranscodeWorkers %d out of range [1,10]", b.MaxTranscodeWorkers)
	}
	if b.MaxPhraseLength < 1 || b.MaxPhraseLength > 50 {
		return fmt.Errorf("model: maxPhraseLength %d out of range [1,50]", b.MaxPhraseLength)
	}
	if b.MaxFailureRate < 0 || b.MaxFailureRate > 1 {
		return fmt.Errorf("model: maxFailureRate %f out of range [0,1]", b.MaxFailureRate)
	}
	if b.DownloadTimeout <= 0 {
		return fmt.Errorf("model: downloadTimeout must be positive")
	}
	if b.TranscodeTimeout <= 0 {
		return fmt.Errorf("model: transcodeTimeout must be positive")
	}
	if b.ClipPaddingStart < 0 || b.ClipPaddingEnd < 0 {
		return fmt.Errorf("model: clip padding must be non-negative")
	}
	if _, _, ok := b.AspectRatio.Dimensions(); !ok {
		return fmt.Errorf("model: unsupported aspect ratio %q", b.AspectRatio)
	}
	return nil
}
