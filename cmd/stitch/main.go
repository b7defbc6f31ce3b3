// Command stitch composes a video from a text string by matching words and
// phrases to indexed clips, fetching and transcoding them to a canonical
// format, and concatenating the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipweave/stitcher/internal/concat"
	"github.com/clipweave/stitcher/internal/fetcher"
	"github.com/clipweave/stitcher/internal/index"
	"github.com/clipweave/stitcher/internal/ledger"
	"github.com/clipweave/stitcher/internal/log"
	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/orchestrator"
	"github.com/clipweave/stitcher/internal/pipeline/perr"
	"github.com/clipweave/stitcher/internal/platform/httpx"
	stitchnet "github.com/clipweave/stitcher/internal/platform/net"
	"github.com/clipweave/stitcher/internal/probe"
	"github.com/clipweave/stitcher/internal/ratelimit"
	"github.com/clipweave/stitcher/internal/transcode"
	"github.com/clipweave/stitcher/internal/version"
)

const (
	exitSuccess  = 0
	exitCanceled = 130
	exitFailure  = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		indexPath     = flag.String("index", "", "path to the SQLite clip index")
		text          = flag.String("text", "", "text to stitch into a video")
		outDir        = flag.String("out", "", "temp workspace parent directory")
		sourceURL     = flag.String("source-url", "", "templated content-hosting URL, containing one %s for the videoId")
		allowedHost   = flag.String("allow-host", "", "outbound host allowed for fetching clips")
		aspectRatio   = flag.String("aspect", string(model.AspectRatio16x9), "output aspect ratio: 16:9, 9:16, or 1:1")
		introText     = flag.String("intro", "", "optional intro card text")
		outroText     = flag.String("outro", "", "optional outro card text")
		channelFilter = flag.String("channel", "", "restrict matches to this channel id")
		strictMode    = flag.Bool("strict", false, "fail instead of falling back to placeholders when the plan is empty")
		cacheDir      = flag.String("cache-dir", "", "directory for the persistent Badger-backed fetch cache; disabled if empty")
		showVersion   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("stitch %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		return exitSuccess
	}

	log.Configure(log.Config{Service: "stitch", Version: version.Version})
	logger := log.WithComponent("cmd")

	if *indexPath == "" || *text == "" || *sourceURL == "" {
		logger.Error().Msg("missing required flags: -index, -text, -source-url")
		return exitFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	idx, err := index.LoadFromSQLite(*indexPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load index")
		return exitFailure
	}

	policy := stitchnet.OutboundPolicy{
		Enabled: true,
		Allow: stitchnet.OutboundAllowlist{
			Hosts:   []string{*allowedHost},
			Schemes: []string{"https"},
			Ports:   []int{443},
		},
	}

	source := fetcher.NewHTTPSource(httpx.NewClient(30*time.Second), *sourceURL, policy)
	prober := probe.New()

	var cacheLedger ledger.Ledger
	if *cacheDir != "" {
		bl, err := ledger.OpenBadger(*cacheDir)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open cache ledger")
			return exitFailure
		}
		defer func() {
			if err := bl.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close cache ledger")
			}
		}()
		cacheLedger = bl
	}

	budget := model.DefaultPipelineBudget()
	budget.AspectRatio = model.AspectRatio(*aspectRatio)

	style := model.StyleOptions{
		IntroText:     *introText,
		OutroText:     *outroText,
		ChannelFilter: *channelFilter,
		StrictMode:    *strictMode,
	}

	orch := orchestrator.New(
		idx,
		source,
		prober,
		fetcher.Config{MaxFailureRate: budget.MaxFailureRate, RateLimit: ratelimit.DefaultConfig(), Ledger: cacheLedger},
		transcode.Config{Logger: log.WithComponent("transcode")},
		concat.Config{Logger: log.WithComponent("concat")},
		*outDir,
	)

	artifact, err := orch.Generate(ctx, *text, budget, style)
	if err != nil {
		if ctx.Err() != nil || errorsIsCancelled(err) {
			logger.Warn().Err(err).Msg("generation cancelled")
			return exitCanceled
		}
		logger.Error().Err(err).Msg("generation failed")
		return exitFailure
	}

	logger.Info().Str("output", artifact.OutputPath).Int("words", len(artifact.Timings)).Msg("generation complete")
	fmt.Println(artifact.OutputPath)
	return exitSuccess
}

func errorsIsCancelled(err error) bool {
	return errors.Is(err, perr.ErrCancelled)
}
