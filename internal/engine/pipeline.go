package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// channelOutcome is what one per-channel pipeline pass produced.
type channelOutcome struct {
	created          bool
	createdNeighbors int
	frontier         []string
}

// processChannel runs the evidence pipeline for one admitted candidate:
// metadata → images/scoring → about-page scrape → persist → neighbor
// edges. Each evidence stage degrades independently; only store failures
// and malformed ids surface as errors.
func (e *Engine) processChannel(ctx context.Context, id string, md *ChannelMetadata, mdErr error, opts Options, visited *VisitedSet) (channelOutcome, error) {
	var out channelOutcome
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/? \t\n") {
		return out, fmt.Errorf("malformed channel identifier %q", id)
	}

	now := time.Now().UTC()
	patch := ChannelPatch{
		Label:          &Label{IsBot: opts.IsBot, IsBotChecked: false, CheckType: opts.CheckType},
		LastExpandedAt: &now,
		Source:         Str(e.cfg.Source),
	}

	var avatarURL, bannerURL string
	if mdErr != nil {
		slog.Warn("metadata unavailable, continuing scrape-only",
			slog.String("channel", id), slog.Any("error", mdErr))
	}
	if md != nil {
		if md.Title != "" {
			patch.Title = Str(md.Title)
		}
		if md.Handle != "" {
			patch.Handle = Str(md.Handle)
		}
		if md.Description != "" {
			patch.Description = Str(md.Description)
		}
		if md.Country != "" {
			patch.Country = Str(md.Country)
		}
		if !md.PublishedAt.IsZero() {
			t := md.PublishedAt
			patch.PublishedAt = &t
		}
		patch.SubscriberCount = Int64(md.SubscriberCount)
		patch.VideoCount = Int64(md.VideoCount)
		patch.ViewCount = Int64(md.ViewCount)
		patch.MetadataMissing = Bool(false)
		avatarURL, bannerURL = md.AvatarURL, md.BannerURL
	} else {
		patch.MetadataMissing = Bool(true)
	}

	// About-page render. Deleted/suspended/private channels and pages with
	// zero links are expected; a failed render degrades to the zero page.
	metrics.ScrapeRequests.Add(1)
	page, err := e.deps.Scraper.RenderAboutPage(ctx, id)
	if err != nil {
		metrics.ScrapeErrors.Add(1)
		slog.Warn("about-page scrape failed",
			slog.String("channel", id), slog.Any("error", err))
		page = AboutPage{}
	}
	if avatarURL == "" {
		avatarURL = page.AvatarURL
	}
	if bannerURL == "" {
		bannerURL = page.BannerURL
	}

	e.captureAvatar(ctx, id, avatarURL, &patch)
	e.captureBanner(ctx, id, bannerURL, &patch)
	e.captureScreenshot(ctx, id, page.Screenshot, &patch)

	if md != nil && len(md.Raw) > 0 {
		if _, err := e.putBlob(ctx, MetadataKey(id), "application/json", md.Raw); err != nil {
			slog.Warn("raw metadata archive failed",
				slog.String("channel", id), slog.Any("error", err))
		}
	}

	patch.AboutLinksCount = Int(len(page.ExternalLinks))
	patch.FeaturedChannelsCount = Int(len(page.FeaturedIDs))

	created, err := e.deps.Store.Upsert(ctx, id, patch)
	if err != nil {
		return out, fmt.Errorf("upsert %s: %w", id, err)
	}
	out.created = created

	for _, raw := range page.ExternalLinks {
		link := DomainLink{
			FromChannelID:    id,
			URL:              raw,
			NormalizedDomain: NormalizeDomain(raw),
			DiscoveredAt:     now,
			Source:           "about_section",
		}
		if err := e.deps.Edges.AppendDomainLink(ctx, link); err != nil {
			slog.Warn("domain link append failed",
				slog.String("channel", id), slog.Any("error", err))
			continue
		}
		metrics.DomainLinks.Add(1)
	}

	out.frontier, out.createdNeighbors = e.recordNeighbors(ctx, id, page, opts, visited, now)
	return out, nil
}

// captureAvatar downloads the avatar at an upgraded size, stores it, and
// scores it when a scorer is configured. All failures degrade to a
// record without image evidence.
func (e *Engine) captureAvatar(ctx context.Context, id, avatarURL string, patch *ChannelPatch) {
	if avatarURL == "" {
		return
	}
	data, err := e.deps.Fetch.Download(ctx, UpgradeAvatarURL(avatarURL, e.cfg.AvatarSize))
	if err != nil {
		metrics.AvatarDownloadErrors.Add(1)
		slog.Warn("avatar download failed",
			slog.String("channel", id), slog.Any("error", err))
		return
	}
	metrics.AvatarDownloads.Add(1)

	if uri, err := e.putBlob(ctx, AvatarKey(id), "image/png", data); err == nil {
		patch.AvatarURI = Str(uri)
	} else {
		slog.Warn("avatar upload failed",
			slog.String("channel", id), slog.Any("error", err))
	}

	if e.deps.Scorer == nil {
		return // no model configured, not an error
	}
	m, err := e.deps.Scorer.Score(ctx, data)
	if err != nil {
		slog.Warn("avatar scoring failed",
			slog.String("channel", id), slog.Any("error", err))
		return
	}
	metrics.AvatarScores.Add(1)
	patch.AvatarMetrics = &m
}

func (e *Engine) captureBanner(ctx context.Context, id, bannerURL string, patch *ChannelPatch) {
	if bannerURL == "" {
		return
	}
	data, err := e.deps.Fetch.Download(ctx, bannerURL)
	if err != nil {
		slog.Warn("banner download failed",
			slog.String("channel", id), slog.Any("error", err))
		return
	}
	if uri, err := e.putBlob(ctx, BannerKey(id), "image/jpeg", data); err == nil {
		patch.BannerURI = Str(uri)
	}
}

func (e *Engine) captureScreenshot(ctx context.Context, id string, shot []byte, patch *ChannelPatch) {
	if len(shot) == 0 {
		patch.IsScreenshotStored = Bool(false)
		return
	}
	uri, err := e.putBlob(ctx, ScreenshotKey(id), "image/png", shot)
	if err != nil {
		slog.Warn("screenshot upload failed",
			slog.String("channel", id), slog.Any("error", err))
		patch.IsScreenshotStored = Bool(false)
		return
	}
	patch.ScreenshotURI = Str(uri)
	patch.IsScreenshotStored = Bool(true)
}

func (e *Engine) putBlob(ctx context.Context, key, contentType string, data []byte) (string, error) {
	uri, err := e.deps.Blobs.Put(ctx, key, contentType, data)
	if err != nil {
		metrics.BlobUploadErrors.Add(1)
		return "", err
	}
	metrics.BlobUploads.Add(1)
	return uri, nil
}

// recordNeighbors appends one DiscoveryEdge per not-yet-visited featured
// and subscribed channel, in extraction order, registers a minimal
// labeled record for each, and returns them as this channel's
// contribution to the output frontier. Already-expanded neighbors are
// skipped entirely. Frontier neighbors are NOT marked visited here:
// they haven't been expanded, only discovered. The registration patch
// carries only the label triad, so a neighbor that already has a
// human-checked record stays byte-for-byte untouched.
func (e *Engine) recordNeighbors(ctx context.Context, id string, page AboutPage, opts Options, visited *VisitedSet, now time.Time) ([]string, int) {
	var frontier []string
	createdNeighbors := 0
	seen := make(map[string]struct{})

	add := func(ids []string, method DiscoveryMethod) {
		if len(ids) > e.cfg.SubLimit {
			ids = ids[:e.cfg.SubLimit]
		}
		for _, n := range ids {
			if n == "" || n == id || visited.Has(n) {
				continue
			}
			edge := DiscoveryEdge{
				FromChannelID: id,
				ToChannelID:   n,
				Method:        method,
				DiscoveredAt:  now,
			}
			if err := e.deps.Edges.Append(ctx, edge); err != nil {
				slog.Warn("discovery edge append failed",
					slog.String("from", id), slog.String("to", n), slog.Any("error", err))
				continue
			}
			metrics.EdgesAppended.Add(1)
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}

			created, err := e.deps.Store.Upsert(ctx, n, ChannelPatch{
				Label: &Label{IsBot: opts.IsBot, IsBotChecked: false, CheckType: opts.CheckType},
			})
			if err != nil {
				slog.Warn("neighbor registration failed",
					slog.String("channel", n), slog.Any("error", err))
			} else if created {
				createdNeighbors++
				metrics.ChannelsCreated.Add(1)
			}
			frontier = append(frontier, n)
		}
	}

	add(page.FeaturedIDs, MethodFeaturedChannel)
	add(page.SubscriptionIDs, MethodSubscription)
	return frontier, createdNeighbors
}
