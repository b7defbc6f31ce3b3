// Package transcode converts raw fetched segments into the canonical output
// format and synthesizes placeholder title cards for words absent from the
// index. Canonical form is fixed: H.264 yuv420p, 30fps constant frame rate,
// AAC 128kbit/s 44.1kHz stereo, letterboxed or pillarboxed into the
// requested aspect ratio slot, faststart MP4.
package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipweave/stitcher/internal/audiomaster"
	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/pipeline/perr"
	"github.com/clipweave/stitcher/internal/procgroup"
	"github.com/clipweave/stitcher/internal/workspace"
	"github.com/rs/zerolog"
)

const (
	canonicalFPS        = 30
	canonicalAudioRate  = 44100
	canonicalAudioKbps  = "128k"
	canonicalPixFmt     = "yuv420p"
	placeholderDuration = 1.0
)

// Config bounds the transcode phase's tool paths and presentation options.
type Config struct {
	FFmpegPath  string
	MaxWorkers  int
	Style       model.StyleOptions
	AspectRatio model.AspectRatio
	Master      audiomaster.AudioMaster
	Logger      zerolog.Logger
}

// Transcoder canonicalizes raw segments and builds placeholder cards.
type Transcoder struct {
	cfg Config
	ws  *workspace.Workspace
}

// New constructs a Transcoder. ws owns the destination directories for
// canonical segments and placeholder cards.
func New(ws *workspace.Workspace, cfg Config) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxWorkers > 10 {
		cfg.MaxWorkers = 10
	}
	if cfg.Master == nil {
		cfg.Master = audiomaster.NullAudioMaster{}
	}
	return &Transcoder{cfg: cfg, ws: ws}
}

// Canonicalize converts one raw segment into the canonical format. A
// placeholder segment is routed to buildPlaceholder instead; Canonicalize
// assumes seg.Path already points at a real media file.
func (t *Transcoder) Canonicalize(ctx context.Context, index int, seg model.SegmentFile) (model.SegmentFile, error) {
	if seg.Span.IsPlaceholder() {
		return t.buildPlaceholder(ctx, index, seg.Span)
	}

	w, h, ok := t.cfg.AspectRatio.Dimensions()
	if !ok {
		return model.SegmentFile{}, fmt.Errorf("%w: unsupported aspect ratio %q", perr.ErrTranscode, t.cfg.AspectRatio)
	}

	key := workspace.CacheKey{VideoID: seg.Span.VideoID, StartTime: seg.Span.StartTime, Duration: seg.Span.Duration}
	dest := t.ws.CanonicalPath(key)

	args := []string{
		"-y",
		"-i", seg.Path,
		"-vf", letterboxFilter(w, h),
		"-r", fmt.Sprintf("%d", canonicalFPS),
		"-pix_fmt", canonicalPixFmt,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-ar", fmt.Sprintf("%d", canonicalAudioRate),
		"-ac", "2",
		"-b:a", canonicalAudioKbps,
		"-movflags", "+faststart",
		dest,
	}

	if err := t.run(ctx, args); err != nil {
		return model.SegmentFile{}, fmt.Errorf("%w: %v", perr.ErrTranscode, err)
	}

	// Subtitle burn-in needs the full-timeline word timings that only exist
	// after concatenation, so AddSubtitles is handled by the concat stage.
	finalPath := dest

	if _, isNull := t.cfg.Master.(audiomaster.NullAudioMaster); !isNull {
		masteredAudio, err := t.cfg.Master.Master(ctx, dest)
		if err != nil {
			return model.SegmentFile{}, fmt.Errorf("%w: audio mastering: %v", perr.ErrTranscode, err)
		}
		muxed, err := t.muxMasteredAudio(ctx, dest, masteredAudio)
		if err != nil {
			return model.SegmentFile{}, fmt.Errorf("%w: audio mux: %v", perr.ErrTranscode, err)
		}
		finalPath = muxed
	}

	return model.SegmentFile{Path: finalPath, Span: seg.Span, State: model.SegmentCanonical}, nil
}

// muxMasteredAudio replaces videoPath's audio stream with audioPath.
// AudioMaster.Master returns an audio-only file and never touches the video
// stream, so the mastered track has to be remuxed against the original
// canonical video before it can stand in as the segment's output. Written to
// a sibling "_mastered" file so a failed mux leaves the plain canonical
// segment on disk.
func (t *Transcoder) muxMasteredAudio(ctx context.Context, videoPath, audioPath string) (string, error) {
	ext := filepath.Ext(videoPath)
	dest := strings.TrimSuffix(videoPath, ext) + "_mastered" + ext

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", fmt.Sprintf("%d", canonicalAudioRate),
		"-ac", "2",
		"-b:a", canonicalAudioKbps,
		"-shortest",
		"-movflags", "+faststart",
		dest,
	}

	if err := t.run(ctx, args); err != nil {
		return "", err
	}
	return dest, nil
}

// buildPlaceholder synthesizes a solid-color title card carrying the
// placeholder span's word, sized and timed to the canonical contract.
func (t *Transcoder) buildPlaceholder(ctx context.Context, index int, span model.Span) (model.SegmentFile, error) {
	w, h, ok := t.cfg.AspectRatio.Dimensions()
	if !ok {
		return model.SegmentFile{}, fmt.Errorf("%w: unsupported aspect ratio %q", perr.ErrTranscode, t.cfg.AspectRatio)
	}

	dur := span.Duration
	if dur <= 0 {
		dur = placeholderDuration
	}

	dest := t.ws.PlaceholderPath(index, span.Text)
	drawtext := fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=(h-text_h)/2", escapeDrawtext(span.Text))

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%.3f", w, h, canonicalFPS, dur),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", canonicalAudioRate),
		"-vf", drawtext,
		"-shortest",
		"-pix_fmt", canonicalPixFmt,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", canonicalAudioKbps,
		"-movflags", "+faststart",
		dest,
	}

	if err := t.run(ctx, args); err != nil {
		return model.SegmentFile{}, fmt.Errorf("%w: placeholder: %v", perr.ErrTranscode, err)
	}

	return model.SegmentFile{Path: dest, Span: span, State: model.SegmentCanonical}, nil
}

func (t *Transcoder) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath, args...) // #nosec G204 -- args are built entirely from internal values, never raw user input
	procgroup.Set(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.cfg.Logger.Error().Err(err).Str("output", string(out)).Msg("ffmpeg invocation failed")
		return err
	}
	return nil
}

// letterboxFilter scales the source into the target box preserving aspect
// ratio, then pads the remainder with black bars.
func letterboxFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		width, height, width, height,
	)
}

func escapeDrawtext(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\'', ':', '\\':
			out = append(out, '\\', r)
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
