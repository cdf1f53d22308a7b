package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the expansion engine.
var metrics struct {
	ChannelsProcessed    atomic.Int64
	ChannelsCreated      atomic.Int64
	ChannelsFailed       atomic.Int64
	MetadataRequests     atomic.Int64
	MetadataErrors       atomic.Int64
	ScrapeRequests       atomic.Int64
	ScrapeErrors         atomic.Int64
	AvatarDownloads      atomic.Int64
	AvatarDownloadErrors atomic.Int64
	AvatarScores         atomic.Int64
	BlobUploads          atomic.Int64
	BlobUploadErrors     atomic.Int64
	EdgesAppended        atomic.Int64
	DomainLinks          atomic.Int64
	CacheHits            atomic.Int64
	CacheMisses          atomic.Int64
}

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"channels_processed":     metrics.ChannelsProcessed.Load(),
		"channels_created":       metrics.ChannelsCreated.Load(),
		"channels_failed":        metrics.ChannelsFailed.Load(),
		"metadata_requests":      metrics.MetadataRequests.Load(),
		"metadata_errors":        metrics.MetadataErrors.Load(),
		"scrape_requests":        metrics.ScrapeRequests.Load(),
		"scrape_errors":          metrics.ScrapeErrors.Load(),
		"avatar_downloads":       metrics.AvatarDownloads.Load(),
		"avatar_download_errors": metrics.AvatarDownloadErrors.Load(),
		"avatar_scores":          metrics.AvatarScores.Load(),
		"blob_uploads":           metrics.BlobUploads.Load(),
		"blob_upload_errors":     metrics.BlobUploadErrors.Load(),
		"edges_appended":         metrics.EdgesAppended.Load(),
		"domain_links":           metrics.DomainLinks.Load(),
		"cache_hits":             metrics.CacheHits.Load(),
		"cache_misses":           metrics.CacheMisses.Load(),
	}
}

// FormatMetrics returns counters as a simple text dump.
func FormatMetrics() string {
	m := GetMetrics()
	keys := []string{
		"channels_processed", "channels_created", "channels_failed",
		"metadata_requests", "metadata_errors",
		"scrape_requests", "scrape_errors",
		"avatar_downloads", "avatar_download_errors", "avatar_scores",
		"blob_uploads", "blob_upload_errors",
		"edges_appended", "domain_links",
		"cache_hits", "cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrMetadataRequests() { metrics.MetadataRequests.Add(1) }
func IncrMetadataErrors()   { metrics.MetadataErrors.Add(1) }
func IncrCacheHits()        { metrics.CacheHits.Add(1) }
func IncrCacheMisses()      { metrics.CacheMisses.Add(1) }
