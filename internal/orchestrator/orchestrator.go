// Package orchestrator drives one generate call end to end: plan, fetch,
// transcode, concat, and guaranteed teardown. It owns the temp workspace
// root and is the only component that sequences phases.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clipweave/stitcher/internal/concat"
	"github.com/clipweave/stitcher/internal/fetcher"
	"github.com/clipweave/stitcher/internal/log"
	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/pipeline/perr"
	"github.com/clipweave/stitcher/internal/planner"
	"github.com/clipweave/stitcher/internal/telemetry"
	"github.com/clipweave/stitcher/internal/transcode"
	"github.com/clipweave/stitcher/internal/workspace"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("github.com/clipweave/stitcher/internal/orchestrator")

// Lookup is the Index subset the planner depends on.
type Lookup = planner.Lookup

// Prober validates fetched files and reports probed media properties; it
// satisfies both the fetcher's and the concatenator's narrower Prober
// interfaces so the orchestrator can hand a single implementation to both.
type Prober interface {
	fetcher.Prober
	concat.Prober
}

// Orchestrator sequences Planner, Fetcher, Transcoder, and Concatenator for
// one generate call.
type Orchestrator struct {
	lookup     Lookup
	source     fetcher.RemoteSource
	prober     Prober
	fetchCfg   fetcher.Config
	transcode  transcode.Config
	concat     concat.Config
	tempParent string
}

// New constructs an Orchestrator. tempParent is the directory under which
// each generate call's workspace is created (os.TempDir() if empty).
func New(lookup Lookup, source fetcher.RemoteSource, prober Prober, fetchCfg fetcher.Config, transcodeCfg transcode.Config, concatCfg concat.Config, tempParent string) *Orchestrator {
	return &Orchestrator{
		lookup:     lookup,
		source:     source,
		prober:     prober,
		fetchCfg:   fetchCfg,
		transcode:  transcodeCfg,
		concat:     concatCfg,
		tempParent: tempParent,
	}
}

// Generate runs the full pipeline for text under budget and style, returning
// the final artifact. Cleanup of intermediate directories runs on every
// exit path when budget.CleanupTempFiles is set; the output artifact is
// never removed here.
func (o *Orchestrator) Generate(ctx context.Context, text string, budget model.PipelineBudget, style model.StyleOptions) (model.FinalArtifact, error) {
	if err := budget.Validate(); err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrInputInvalid, err)
	}

	words := planner.Tokenize(text)
	if len(words) == 0 {
		return model.FinalArtifact{}, fmt.Errorf("%w: no words in input", perr.ErrInputInvalid)
	}

	correlationID := uuid.NewString()
	logger := log.WithComponent("orchestrator").With().Str("correlation_id", correlationID).Logger()
	ctx = log.ContextWithCorrelationID(ctx, correlationID)

	ctx, genSpan := tracer.Start(ctx, "generate")
	defer genSpan.End()

	plan := planner.Plan(o.lookup, text, budget, style.ChannelFilter)
	logger.Info().
		Int("spans", plan.Stats.TotalSpans).
		Int("unique_videos", plan.Stats.UniqueVideos).
		Msg("plan built")

	if nonPlaceholderCount(plan) == 0 && style.StrictMode {
		return model.FinalArtifact{}, perr.ErrPlanEmpty
	}

	ws, err := workspace.New(o.tempParent)
	if err != nil {
		return model.FinalArtifact{}, fmt.Errorf("%w: %v", perr.ErrInputInvalid, err)
	}
	defer func() {
		if budget.CleanupTempFiles {
			if err := ws.Cleanup(true); err != nil {
				logger.Warn().Err(err).Msg("workspace cleanup failed")
			}
		}
	}()

	fetchCtx, cancelFetch := withPhaseDeadline(ctx, budget.DownloadTimeout)
	defer cancelFetch()
	fetchCtx, fetchSpan := tracer.Start(fetchCtx, "fetch")

	ft := fetcher.New(o.source, o.prober, ws, withFetchBudget(o.fetchCfg, budget))
	rawSegments, err := ft.Fetch(fetchCtx, plan)
	fetchSpan.End()
	if err != nil {
		return model.FinalArtifact{}, wrapPhaseTimeout(fetchCtx, err)
	}

	withCards := applyIntroOutro(rawSegments, style)

	transcodeCtx, cancelTranscode := withPhaseDeadline(ctx, budget.TranscodeTimeout)
	defer cancelTranscode()
	transcodeCtx, transcodeSpan := tracer.Start(transcodeCtx, "transcode")

	tc := transcode.New(ws, withTranscodeBudget(o.transcode, budget, style))
	canonicalSegments, err := o.transcodePhase(transcodeCtx, tc, withCards, budget)
	transcodeSpan.End()
	if err != nil {
		return model.FinalArtifact{}, wrapPhaseTimeout(transcodeCtx, err)
	}

	ctx, concatSpan := tracer.Start(ctx, "concat")
	defer concatSpan.End()

	cc := concat.New(ws, withConcatStyle(o.concat, style, o.prober))
	artifact, err := cc.Concat(ctx, canonicalSegments, "output.mp4")
	if err != nil {
		return model.FinalArtifact{}, err
	}

	return artifact, nil
}

func nonPlaceholderCount(plan model.Plan) int {
	n := 0
	for _, s := range plan.Spans {
		if !s.IsPlaceholder() {
			n++
		}
	}
	return n
}

func withPhaseDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func wrapPhaseTimeout(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", perr.ErrPhaseTimeout, err)
	}
	return err
}

func withFetchBudget(cfg fetcher.Config, budget model.PipelineBudget) fetcher.Config {
	cfg.MaxWorkers = budget.MaxDownloadWorkers
	cfg.MaxFailureRate = budget.MaxFailureRate
	return cfg
}

func withTranscodeBudget(cfg transcode.Config, budget model.PipelineBudget, style model.StyleOptions) transcode.Config {
	cfg.MaxWorkers = budget.MaxTranscodeWorkers
	cfg.AspectRatio = budget.AspectRatio
	cfg.Style = style
	return cfg
}

func withConcatStyle(cfg concat.Config, style model.StyleOptions, prober concat.Prober) concat.Config {
	cfg.Style = style
	cfg.Prober = prober
	return cfg
}

// transcodePhase runs Canonicalize over every populated slot concurrently,
// under the transcode worker bound, preserving plan order in its result.
// A slot left empty by the fetch phase (a failed fetch downgraded to None)
// is skipped rather than retried.
func (o *Orchestrator) transcodePhase(ctx context.Context, tc *transcode.Transcoder, segments []model.SegmentFile, budget model.PipelineBudget) ([]model.SegmentFile, error) {
	out := make([]model.SegmentFile, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	workers := budget.MaxTranscodeWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	type outcome struct {
		index int
		word  string
		ok    bool
	}
	outcomes := make(chan outcome, len(segments))
	total := 0

	for i, seg := range segments {
		if seg.Path == "" && !seg.Span.IsPlaceholder() {
			continue
		}
		total++
		i, seg := i, seg
		g.Go(func() error {
			canon, err := tc.Canonicalize(gctx, i, seg)
			if err != nil {
				outcomes <- outcome{index: i, word: seg.Span.Text, ok: false}
				return nil
			}
			out[i] = canon
			outcomes <- outcome{index: i, word: seg.Span.Text, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	var failed []string
	completed := 0
	for o := range outcomes {
		if o.ok {
			completed++
		} else {
			failed = append(failed, o.word)
		}
	}

	if total > 0 {
		rate := float64(len(failed)) / float64(total)
		if rate > budget.MaxFailureRate {
			return compactSegments(out), perr.NewPhaseError("transcode", perr.ErrPhaseFailureRate, completed, total, failed)
		}
	}

	return compactSegments(out), nil
}

// compactSegments drops the empty slots left by skipped/failed transcodes
// so the concat phase only ever sees segments with a real path.
func compactSegments(segments []model.SegmentFile) []model.SegmentFile {
	out := make([]model.SegmentFile, 0, len(segments))
	for _, s := range segments {
		if s.Path != "" {
			out = append(out, s)
		}
	}
	return out
}

// applyIntroOutro prepends/appends placeholder-shaped slots carrying the
// configured intro/outro text, so they flow through the transcoder's
// existing title-card path and then into concat like any other slot.
func applyIntroOutro(segments []model.SegmentFile, style model.StyleOptions) []model.SegmentFile {
	out := segments
	if strings.TrimSpace(style.OutroText) != "" {
		out = append(out, introOutroCard(style.OutroText))
	}
	if strings.TrimSpace(style.IntroText) != "" {
		out = append([]model.SegmentFile{introOutroCard(style.IntroText)}, out...)
	}
	return out
}

func introOutroCard(text string) model.SegmentFile {
	return model.SegmentFile{
		Span: model.Span{
			Text:      text,
			VideoID:   model.PlaceholderVideoID,
			Duration:  2.0,
			WordCount: len(strings.Fields(text)),
			Bookend:   true,
		},
	}
}
