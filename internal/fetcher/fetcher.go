// Package fetcher resolves each Span in a Plan to a SegmentFile on disk.
// It runs a bounded worker pool over the plan's spans, preserves input
// order in its result, and never returns a partially-written file: every
// segment lands via an atomic rename or not at all.
package fetcher

import (
	"context"
	"fmt"
	"io"

	"github.com/clipweave/stitcher/internal/ledger"
	"github.com/clipweave/stitcher/internal/model"
	stitchnet "github.com/clipweave/stitcher/internal/platform/net"
	"github.com/clipweave/stitcher/internal/pipeline/perr"
	"github.com/clipweave/stitcher/internal/probe"
	"github.com/clipweave/stitcher/internal/ratelimit"
	"github.com/clipweave/stitcher/internal/resilience"
	"github.com/clipweave/stitcher/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// RemoteSource produces a playable media file for a span's source video and
// time range. Open is responsible for seeking to StartTime and bounding the
// read to Duration (plus any padding already folded into the span); the
// fetcher only copies whatever Open yields.
type RemoteSource interface {
	Open(ctx context.Context, span model.Span) (io.ReadCloser, error)
}

// Prober validates a fetched file before it is accepted into the plan.
type Prober interface {
	IsSound(path string) bool
}

// Config bounds the fetch phase's concurrency, politeness, and failure
// tolerance.
type Config struct {
	MaxWorkers     int
	OutboundPolicy stitchnet.OutboundPolicy
	RateLimit      ratelimit.Config
	MaxFailureRate float64
	// Ledger, if set, is consulted before every download and updated after
	// every successful one, so a repeated call over the same plan costs
	// zero downloads for keys it has already fetched.
	Ledger ledger.Ledger
}

// Fetcher resolves Spans to SegmentFiles.
type Fetcher struct {
	source  RemoteSource
	prober  Prober
	ws      *workspace.Workspace
	cfg     Config
	limiter *ratelimit.Limiter
	breaker *resilience.CircuitBreaker
}

// New constructs a Fetcher. ws owns the destination directory for raw
// downloads.
func New(source RemoteSource, prober Prober, ws *workspace.Workspace, cfg Config) *Fetcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxWorkers > 10 {
		cfg.MaxWorkers = 10
	}
	return &Fetcher{
		source:  source,
		prober:  prober,
		ws:      ws,
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RateLimit),
		breaker: resilience.NewCircuitBreaker("fetch", 3, 5, 0, 0),
	}
}

// result carries one span's outcome while preserving its original index,
// so results can be reassembled in order after concurrent completion.
type result struct {
	index   int
	segment model.SegmentFile
	err     *perr.SpanError
}

// Fetch resolves every non-placeholder span in the plan to a raw
// SegmentFile, running up to MaxWorkers downloads concurrently. Placeholder
// spans pass through untouched; the transcoder is responsible for
// synthesizing their title cards. The returned slice preserves plan order.
// If the observed failure rate across attempted (non-placeholder) spans
// exceeds MaxFailureRate, Fetch returns a PhaseError wrapping
// ErrPhaseFailureRate. The rate is evaluated once every worker has
// finished, and the segments that did resolve are still returned.
func (f *Fetcher) Fetch(ctx context.Context, plan model.Plan) ([]model.SegmentFile, error) {
	segments := make([]model.SegmentFile, len(plan.Spans))
	results := make(chan result, len(plan.Spans))

	attemptable := 0
	for i, span := range plan.Spans {
		if span.IsPlaceholder() {
			segments[i] = model.SegmentFile{Span: span, State: model.SegmentRaw}
			continue
		}
		attemptable++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxWorkers)

	for i, span := range plan.Spans {
		if span.IsPlaceholder() {
			continue
		}
		i, span := i, span
		g.Go(func() error {
			seg, spanErr := f.fetchOne(gctx, span)
			results <- result{index: i, segment: seg, err: spanErr}
			return nil
		})
	}

	// errgroup.Wait only returns non-nil if a worker func itself errors,
	// which never happens here; per-span failures are carried in result.
	_ = g.Wait()
	close(results)

	var failed []string
	completed := 0
	for r := range results {
		if r.err != nil {
			failed = append(failed, r.err.Word)
			continue
		}
		segments[r.index] = r.segment
		completed++
	}

	if attemptable > 0 {
		failureRate := float64(len(failed)) / float64(attemptable)
		if failureRate > f.cfg.MaxFailureRate {
			return segments, perr.NewPhaseError("fetch", perr.ErrPhaseFailureRate, completed, attemptable, failed)
		}
	}

	return segments, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, span model.Span) (model.SegmentFile, *perr.SpanError) {
	key := workspace.CacheKey{
		VideoID:   span.VideoID,
		StartTime: span.StartTime,
		Duration:  span.Duration,
		PadStart:  0,
		PadEnd:    0,
	}

	if f.cfg.Ledger != nil {
		if path, err := f.cfg.Ledger.Lookup(ctx, key.Digest()); err == nil {
			return model.SegmentFile{Path: path, Span: span, State: model.SegmentRaw}, nil
		}
	}

	if !f.breaker.AllowRequest() {
		return model.SegmentFile{}, &perr.SpanError{Word: span.Text, VideoID: span.VideoID, Reason: "circuit open", Err: resilience.ErrCircuitOpen}
	}

	f.breaker.RecordAttempt()

	if err := f.limiter.Wait(ctx, span.VideoID); err != nil {
		f.breaker.RecordTechnicalFailure()
		return model.SegmentFile{}, &perr.SpanError{Word: span.Text, VideoID: span.VideoID, Reason: "rate limit wait", Err: err}
	}

	rc, err := f.source.Open(ctx, span)
	if err != nil {
		f.breaker.RecordTechnicalFailure()
		return model.SegmentFile{}, &perr.SpanError{Word: span.Text, VideoID: span.VideoID, Reason: "open", Err: fmt.Errorf("%w: %v", perr.ErrFetch, err)}
	}
	defer rc.Close()

	dest := f.ws.RawPath(key, ".mp4")

	if err := workspace.WriteAtomic(dest, rc); err != nil {
		f.breaker.RecordTechnicalFailure()
		return model.SegmentFile{}, &perr.SpanError{Word: span.Text, VideoID: span.VideoID, Reason: "write", Err: fmt.Errorf("%w: %v", perr.ErrFetch, err)}
	}

	if f.prober != nil && !f.prober.IsSound(dest) {
		f.breaker.RecordTechnicalFailure()
		return model.SegmentFile{}, &perr.SpanError{Word: span.Text, VideoID: span.VideoID, Reason: "failed probe", Err: perr.ErrFetch}
	}

	if f.cfg.Ledger != nil {
		_ = f.cfg.Ledger.Record(ctx, key.Digest(), dest)
	}

	f.breaker.RecordSuccess()
	return model.SegmentFile{Path: dest, Span: span, State: model.SegmentRaw}, nil
}
