// Package concat joins canonical segments into a single output file and
// computes the per-segment timeline the spec requires alongside it. It
// always re-encodes rather than stream-copying, since placeholder cards and
// fetched clips can originate from different source encodings even after
// canonicalization quirks in exotic source material.
package concat

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/pipeline/perr"
	"github.com/clipweave/stitcher/internal/probe"
	"github.com/clipweave/stitcher/internal/procgroup"
	"github.com/clipweave/stitcher/internal/workspace"
	"github.com/rs/zerolog"
)

// Prober reports a canonical segment's actual probed media properties, so
// the output timeline reflects what was encoded rather than what the plan
// nominally asked for.
type Prober interface {
	Properties(path string) (probe.Properties, error)
}

// Config bounds the concat phase's tool path and presentation overlays.
// Style is set per call by the orchestrator, since subtitles and the
// watermark are generate-call options, not fixed pipeline configuration.
type Config struct {
	FFmpegPath string
	Prober     Prober
	Logger     zerolog.Logger
	Style      model.StyleOptions
}

// Concatenator joins an ordered sequence of canonical segments.
type Concatenator struct {
	cfg Config
	ws  *workspace.Workspace
}

// New constructs a Concatenator. ws owns the output directory and the
// scratch location for the ffmpeg concat list file.
func New(ws *workspace.Workspace, cfg Config) *Concatenator {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Prober == nil {
		cfg.Prober = probe.New()
	}
	return &Concatenator{cfg: cfg, ws: ws}
}

// Concat joins segments in order into outputName under the workspace's
// output directory and returns the resulting FinalArtifact, including
// timings derived from each segment's probed duration. A single-segment
// plan still goes through the concat demuxer so every output, including
// the degenerate one-word case, follows the same code path.
func (c *Concatenator) Concat(ctx context.Context, segments []model.SegmentFile, outputName string) (model.FinalArtifact, error) {
	if len(segments) == 0 {
		return model.FinalArtifact{}, fmt.Errorf("%w: no segments to concatenate", perr.ErrConcat)
	}

	listPath, err := c.ws.OutputPath("concat_list.txt")
	if err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}
	if err := writeConcatList(listPath, segments); err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}
	defer os.Remove(listPath)

	dest, err := c.ws.OutputPath(outputName)
	if err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		dest,
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...) // #nosec G204 -- args built entirely from internal paths
	procgroup.Set(cmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		c.cfg.Logger.Error().Err(err).Str("output", string(out)).Msg("ffmpeg concat failed")
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}

	timings, err := computeTimings(c.cfg.Prober, segments)
	if err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}

	finalPath := dest
	if c.cfg.Style.AddSubtitles || strings.TrimSpace(c.cfg.Style.WatermarkText) != "" {
		overlaid, err := c.burnOverlays(ctx, dest, timings)
		if err != nil {
			return model.FinalArtifact{}, err
		}
		finalPath = overlaid
	}

	return model.FinalArtifact{
		OutputPath: finalPath,
		Timings:    timings,
	}, nil
}

// burnOverlays re-encodes src through a drawtext filter chain applying
// per-word subtitles (one timed drawtext per word, active only across its
// [StartSec, EndSec) window) and/or a static watermark in the corner. It
// writes to a sibling "_overlay" file rather than replacing src in place,
// so a failed overlay pass still leaves the plain concatenated output on
// disk for the caller to fall back to.
func (c *Concatenator) burnOverlays(ctx context.Context, src string, timings []model.WordTiming) (string, error) {
	var filters []string
	if c.cfg.Style.AddSubtitles {
		for _, wt := range timings {
			filters = append(filters, fmt.Sprintf(
				"drawtext=text='%s':fontcolor=white:fontsize=36:x=(w-text_w)/2:y=h-80:box=1:boxcolor=black@0.5:enable='between(t,%.3f,%.3f)'",
				escapeDrawtext(wt.Word), wt.StartSec, wt.EndSec,
			))
		}
	}
	if text := strings.TrimSpace(c.cfg.Style.WatermarkText); text != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=white@0.6:fontsize=24:x=w-text_w-20:y=20",
			escapeDrawtext(text),
		))
	}
	if len(filters) == 0 {
		return src, nil
	}

	ext := filepath.Ext(src)
	dest, err := c.ws.OutputPath(strings.TrimSuffix(filepath.Base(src), ext) + "_overlay" + ext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}
	args := []string{
		"-y",
		"-i", src,
		"-vf", strings.Join(filters, ","),
		"-c:a", "copy",
		"-movflags", "+faststart",
		dest,
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...) // #nosec G204 -- args built entirely from internal paths
	procgroup.Set(cmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		c.cfg.Logger.Error().Err(err).Str("output", string(out)).Msg("ffmpeg overlay pass failed")
		return "", fmt.Errorf("%w: %v", perr.ErrConcat, err)
	}
	return dest, nil
}

// escapeDrawtext escapes the characters ffmpeg's drawtext filter treats as
// syntax within a quoted text value.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(s)
}

// writeConcatList writes the ffmpeg concat demuxer's list format: one
// "file '<path>'" line per segment, in order. Single quotes in a path are
// escaped per the demuxer's own escaping rule.
func writeConcatList(path string, segments []model.SegmentFile) error {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(seg.Path, "'", `'\''`))
		b.WriteString("'\n")
	}
	return workspace.WriteAtomic(path, strings.NewReader(b.String()))
}

// computeTimings derives each output segment's [start, end) interval by
// walking segments in order and probing each one's actual canonical
// duration, rather than trusting the planner's nominal span duration. A
// multi-word phrase span still yields a single record carrying the whole
// phrase as Word; sub-word boundaries within a phrase aren't recoverable
// once a span is resolved to one clip. Bookend segments (intro/outro cards)
// advance the cursor so later segments land at the right offset but never
// emit a record of their own.
func computeTimings(prober Prober, segments []model.SegmentFile) ([]model.WordTiming, error) {
	var timings []model.WordTiming
	cursor := 0.0

	for _, seg := range segments {
		props, err := prober.Properties(seg.Path)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", seg.Path, err)
		}
		dur := props.DurationSec

		if !seg.Span.Bookend {
			timings = append(timings, model.WordTiming{Word: seg.Span.Text, StartSec: cursor, EndSec: cursor + dur})
		}
		cursor += dur
	}
	return timings, nil
}
