// go_botgraph — YouTube bot-graph expansion engine.
//
// Walks outward from known bot channels through featured-channel and
// subscription references, persisting channel records, image evidence
// and a discovery audit trail for later human review and model training.
//
// Usage:
//
//	go_botgraph expand UCchannel1 [UCchannel2 ...]
//	go_botgraph backfill
//	go_botgraph runs
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/anatolykoptev/go_botgraph/internal/blob"
	"github.com/anatolykoptev/go_botgraph/internal/engine"
	"github.com/anatolykoptev/go_botgraph/internal/metadata"
	"github.com/anatolykoptev/go_botgraph/internal/runlog"
	"github.com/anatolykoptev/go_botgraph/internal/scorer"
	"github.com/anatolykoptev/go_botgraph/internal/scrape"
	"github.com/anatolykoptev/go_botgraph/internal/store"
)

var version = "dev"

var (
	databaseURL     = env.Str("DATABASE_URL", "postgres://localhost:5432/botgraph")
	gcsBucket       = env.Str("GCS_BUCKET", "")
	blobRoot        = env.Str("BLOB_ROOT", "")
	youtubeAPIKey   = env.Str("YOUTUBE_API_KEY", "")
	youtubeQPS      = env.Float("YOUTUBE_QPS", 2)
	redisURL        = env.Str("REDIS_URL", "")
	metaCacheTTL    = env.Duration("METADATA_CACHE_TTL", 24*time.Hour)
	scorerURL       = env.Str("SCORER_URL", "")
	scorerSecret    = env.Str("INTERNAL_SERVICE_SECRET", "")
	runlogPath      = env.Str("RUNLOG_PATH", "")
	concurrency     = env.Int("CONCURRENCY", 4)
	maxHops         = env.Int("MAX_HOPS", 1)
	maxTabs         = env.Int("MAX_TABS", 3)
	pageTimeout     = env.Duration("PAGE_TIMEOUT", 30*time.Second)
	settleDelay     = env.Duration("SETTLE_DELAY", 2*time.Second)
	avatarSize      = env.Int("AVATAR_SIZE", 800)
	subLimit        = env.Int("SUB_LIMIT", 50)
	fetchTimeoutSec = env.Int("FETCH_TIMEOUT_SECONDS", 30)
	headless        = env.Str("HEADLESS", "true") != "false"
	useMetadataAPI  = env.Str("USE_METADATA_API", "true") != "false"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "expand":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		err = runExpand(ctx, os.Args[2:])
	case "backfill":
		err = runBackfill(ctx)
	case "runs":
		err = runRuns(ctx)
	case "version":
		fmt.Println("go_botgraph", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  go_botgraph expand <channel-id> [channel-id ...]   expand from explicit seeds
  go_botgraph backfill                               expand from all checked bots
  go_botgraph runs                                   show recent run journal`)
}

func runExpand(ctx context.Context, seeds []string) error {
	return expand(ctx, seeds)
}

func runBackfill(ctx context.Context) error {
	db, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	seeds, err := db.SeedBots(ctx)
	db.Close()
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		slog.Info("no checked bot channels to expand from")
		return nil
	}
	slog.Info("backfill seeded", slog.Int("seeds", len(seeds)))
	return expand(ctx, seeds)
}

func expand(ctx context.Context, seeds []string) error {
	slog.Info("starting go_botgraph",
		slog.String("version", version),
		slog.Int("seeds", len(seeds)),
		slog.Int("max_hops", maxHops))

	db, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, closeBlobs, err := newBlobStore(ctx)
	if err != nil {
		return err
	}
	defer closeBlobs()

	browser, err := scrape.NewBrowser(ctx, scrape.Options{
		Headless:    headless,
		MaxTabs:     int64(maxTabs),
		PageTimeout: pageTimeout,
		SettleDelay: settleDelay,
		SubLimit:    subLimit,
	})
	if err != nil {
		return err
	}
	defer browser.Close()

	fetcher, err := engine.NewBrowserClient(fetchTimeoutSec)
	if err != nil {
		return err
	}

	deps := engine.Deps{
		Store:    db,
		Edges:    db,
		Blobs:    blobs,
		Scraper:  browser,
		Fetch:    fetcher,
		Metadata: newMetadataSource(),
		Scorer:   newScorer(),
	}
	eng, err := engine.New(engine.Config{
		Concurrency: concurrency,
		AvatarSize:  avatarSize,
		SubLimit:    subLimit,
	}, deps)
	if err != nil {
		return err
	}

	journal, err := runlog.Open(runlogPath)
	if err != nil {
		slog.Warn("run journal unavailable", slog.Any("error", err))
		journal = nil
	} else {
		defer journal.Close()
	}

	opts := engine.DefaultOptions()
	opts.UseMetadataAPI = useMetadataAPI

	started := time.Now().UTC()
	res, runErr := eng.Hop(ctx, seeds, opts, maxHops)

	if journal != nil && res != nil {
		run := runlog.Run{
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Seeds:      seeds,
			Hops:       maxHops,
			Processed:  res.Processed,
			Created:    res.Created,
			Failed:     len(res.Failures),
			Frontier:   len(res.Frontier),
			Status:     runStatus(res, runErr),
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if _, err := journal.Record(ctx, run); err != nil {
			slog.Warn("run journal write failed", slog.Any("error", err))
		}
	}

	if res != nil {
		slog.Info("run complete",
			slog.Int("processed", res.Processed),
			slog.Int("created", res.Created),
			slog.Int("failed", len(res.Failures)),
			slog.Int("frontier_remaining", len(res.Frontier)))
		for id, reason := range res.Failures {
			slog.Warn("channel failed", slog.String("channel", id), slog.String("reason", reason))
		}
	}
	fmt.Println(engine.FormatMetrics())
	return runErr
}

func runStatus(res *engine.Result, err error) string {
	switch {
	case err != nil:
		return "aborted"
	case len(res.Failures) > 0:
		return "partial"
	default:
		return "ok"
	}
}

func runRuns(ctx context.Context) error {
	journal, err := runlog.Open(runlogPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	runs, err := journal.Recent(ctx, 20)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  seeds=%d hops=%d processed=%d created=%d failed=%d frontier=%d %s\n",
			r.StartedAt.Format(time.RFC3339), r.Status,
			len(r.Seeds), r.Hops, r.Processed, r.Created, r.Failed, r.Frontier, r.Error)
	}
	return nil
}

func newBlobStore(ctx context.Context) (engine.BlobStore, func(), error) {
	if gcsBucket != "" {
		gcs, err := blob.NewGCS(ctx, gcsBucket)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("blob store: gcs", slog.String("bucket", gcsBucket))
		return gcs, func() { gcs.Close() }, nil
	}
	fs, err := blob.NewFS(blobRoot)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("blob store: local filesystem")
	return fs, func() {}, nil
}

func newMetadataSource() engine.MetadataSource {
	if youtubeAPIKey == "" {
		slog.Info("no YOUTUBE_API_KEY, running scrape-only")
		return nil
	}
	return metadata.NewCachedSource(metadata.NewClient(youtubeAPIKey, youtubeQPS), redisURL, metaCacheTTL)
}

func newScorer() engine.AvatarScorer {
	if scorerURL != "" {
		slog.Info("avatar scorer: remote", slog.String("url", scorerURL))
		return scorer.NewRemote(scorerURL, scorerSecret)
	}
	return scorer.NewHeuristic()
}
