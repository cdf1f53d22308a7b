package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config holds engine tunables, injected from main.
type Config struct {
	Concurrency int    // parallel per-channel pipelines
	AvatarSize  int    // target size for avatar URL upgrade before download
	SubLimit    int    // max featured/subscription tiles consumed per page
	Source      string // provenance tag stamped on records this engine writes
}

// Deps are the capability interfaces the engine orchestrates.
// Metadata and Scorer may be nil: the engine then runs scrape-only and
// skips avatar scoring respectively.
type Deps struct {
	Store    ChannelStore
	Edges    DiscoveryLog
	Blobs    BlobStore
	Metadata MetadataSource
	Scraper  PageScraper
	Scorer   AvatarScorer
	Fetch    Downloader
}

// Engine expands the channel-reference graph one hop at a time:
// it enriches every candidate it is handed and returns the neighbors it
// found as an output frontier. It never recurses within a call — the
// caller decides whether and how to re-invoke.
type Engine struct {
	cfg  Config
	deps Deps
}

// New builds an engine. Store, Edges, Blobs, Scraper and Fetch are required.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("engine: ChannelStore is required")
	case deps.Edges == nil:
		return nil, errors.New("engine: DiscoveryLog is required")
	case deps.Blobs == nil:
		return nil, errors.New("engine: BlobStore is required")
	case deps.Scraper == nil:
		return nil, errors.New("engine: PageScraper is required")
	case deps.Fetch == nil:
		return nil, errors.New("engine: Downloader is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.AvatarSize <= 0 {
		cfg.AvatarSize = 800
	}
	if cfg.SubLimit <= 0 {
		cfg.SubLimit = 50
	}
	if cfg.Source == "" {
		cfg.Source = "bot_graph_expansion"
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// Options configure one Expand call.
type Options struct {
	UseMetadataAPI bool         // fetch canonical metadata vs. best-effort scrape only
	IsBot          bool         // initial label stamped on newly discovered channels
	CheckType      BotCheckType // provenance stamped on newly discovered channels
	Visited        *VisitedSet  // pre-seeded set to suppress re-expansion across calls
}

// DefaultOptions matches the bulk backfill caller: assume-bot, propagated.
func DefaultOptions() Options {
	return Options{UseMetadataAPI: true, IsBot: true, CheckType: CheckPropagated}
}

func (o Options) validate() error {
	switch o.CheckType {
	case CheckPendingReview, CheckPropagated:
		return nil
	case CheckManual, CheckConfirmed:
		return fmt.Errorf("check type %q is reserved for human review", o.CheckType)
	default:
		return fmt.Errorf("unknown check type %q", o.CheckType)
	}
}

// Result summarizes one Expand call.
type Result struct {
	Processed int               // channels admitted to a pipeline this call
	Created   int               // records that did not exist before
	Failures  map[string]string // channel id → reason, per-channel only
	Frontier  []string          // newly discovered neighbors, not expanded
	Visited   *VisitedSet       // updated set, for the caller to carry over
}

// Expand runs the per-channel pipeline for every seed not yet visited,
// with bounded concurrency. Per-channel failures are collected in the
// result; only systemic failures (credential rejection, store down)
// return an error, alongside the partial result gathered so far.
func (e *Engine) Expand(ctx context.Context, seeds []string, opts Options) (*Result, error) {
	if len(seeds) == 0 {
		return nil, errors.New("expand: empty seed set")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	visited := opts.Visited
	if visited == nil {
		visited = NewVisitedSet()
	}
	res := &Result{Failures: make(map[string]string), Visited: visited}

	// Admission: drop repeated and already-visited seeds. Marking visited
	// is deferred to pipeline start, so an aborted batch never returns a
	// visited set claiming channels it did not process.
	var batch []string
	batchSeen := make(map[string]struct{})
	for _, id := range seeds {
		if _, dup := batchSeen[id]; dup || visited.Has(id) {
			continue
		}
		batchSeen[id] = struct{}{}
		batch = append(batch, id)
	}
	if len(batch) == 0 {
		return res, nil
	}
	slog.Info("expansion starting",
		slog.Int("seeds", len(seeds)),
		slog.Int("admitted", len(batch)),
		slog.Bool("metadata_api", opts.UseMetadataAPI && e.deps.Metadata != nil))

	meta, metaErrs, err := e.prefetchMetadata(ctx, batch, opts)
	if err != nil {
		return res, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu           sync.Mutex
		wg           sync.WaitGroup
		systemicErr  error
		frontierSeen = make(map[string]struct{})
	)
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))

	for _, id := range batch {
		if err := sem.Acquire(runCtx, 1); err != nil {
			break // canceled after a systemic failure
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			// Mark visited only once the pipeline actually starts; Add also
			// arbitrates against a concurrent call sharing the set.
			if !visited.Add(id) {
				return
			}

			var md *ChannelMetadata
			if m, ok := meta[id]; ok {
				md = &m
			}
			out, err := e.processChannel(runCtx, id, md, metaErrs[id], opts, visited)

			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			metrics.ChannelsProcessed.Add(1)
			if err != nil {
				res.Failures[id] = err.Error()
				metrics.ChannelsFailed.Add(1)
				if IsSystemic(err) && systemicErr == nil {
					systemicErr = err
					cancel()
				}
				return
			}
			if out.created {
				res.Created++
				metrics.ChannelsCreated.Add(1)
			}
			res.Created += out.createdNeighbors
			for _, n := range out.frontier {
				if _, dup := frontierSeen[n]; !dup {
					frontierSeen[n] = struct{}{}
					res.Frontier = append(res.Frontier, n)
				}
			}
		}(id)
	}
	wg.Wait()

	slog.Info("expansion finished",
		slog.Int("processed", res.Processed),
		slog.Int("created", res.Created),
		slog.Int("failed", len(res.Failures)),
		slog.Int("frontier", len(res.Frontier)))

	if systemicErr != nil {
		return res, systemicErr
	}
	return res, nil
}

// prefetchMetadata fetches canonical metadata for all UC ids in one
// batched call before the pipelines start. Handles are skipped: the API
// cannot resolve them by id, scraping covers them.
func (e *Engine) prefetchMetadata(ctx context.Context, batch []string, opts Options) (map[string]ChannelMetadata, map[string]error, error) {
	if !opts.UseMetadataAPI || e.deps.Metadata == nil {
		return nil, nil, nil
	}
	var ucIDs []string
	for _, id := range batch {
		if IsChannelID(id) {
			ucIDs = append(ucIDs, id)
		}
	}
	if len(ucIDs) == 0 {
		return nil, nil, nil
	}
	meta, perID, err := e.deps.Metadata.FetchByID(ctx, ucIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata prefetch: %w", err)
	}
	return meta, perID, nil
}

// Hop is a convenience driving loop: it re-invokes Expand on each
// returned frontier until it drains or maxHops is reached, carrying the
// visited set across hops. maxHops <= 0 means a single hop.
func (e *Engine) Hop(ctx context.Context, seeds []string, opts Options, maxHops int) (*Result, error) {
	if maxHops <= 0 {
		maxHops = 1
	}
	total := &Result{Failures: make(map[string]string)}
	frontier := seeds
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		start := time.Now()
		res, err := e.Expand(ctx, frontier, opts)
		if res != nil {
			total.Processed += res.Processed
			total.Created += res.Created
			for id, reason := range res.Failures {
				total.Failures[id] = reason
			}
			total.Frontier = res.Frontier
			total.Visited = res.Visited
			opts.Visited = res.Visited
		}
		if err != nil {
			return total, err
		}
		slog.Info("hop complete",
			slog.Int("hop", hop+1),
			slog.Int("next_frontier", len(res.Frontier)),
			slog.Duration("took", time.Since(start)))
		frontier = res.Frontier
	}
	return total, nil
}
