package engine

import "log/slog"

// Apply merges patch into rec field by field: set pointers overwrite,
// nil pointers leave the field alone. The one exception is the label
// triad, which is dropped when the record is already human-checked —
// manual review is terminal and automated expansion never downgrades it.
// Returns true when the label was applied.
func Apply(rec *ChannelRecord, patch ChannelPatch) bool {
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Handle != nil {
		rec.Handle = *patch.Handle
	}

	labelApplied := false
	if patch.Label != nil {
		if rec.IsBotChecked {
			slog.Warn("label downgrade rejected",
				slog.String("channel", rec.ChannelID),
				slog.String("existing", string(rec.CheckType)))
		} else {
			rec.IsBot = patch.Label.IsBot
			rec.IsBotChecked = patch.Label.IsBotChecked
			rec.CheckType = patch.Label.CheckType
			labelApplied = true
		}
	}

	if patch.AvatarURI != nil {
		rec.AvatarURI = *patch.AvatarURI
	}
	if patch.BannerURI != nil {
		rec.BannerURI = *patch.BannerURI
	}
	if patch.AvatarMetrics != nil {
		// Last write wins; repeated scores are never averaged.
		rec.AvatarMetrics = patch.AvatarMetrics
	}
	if patch.AboutLinksCount != nil {
		rec.AboutLinksCount = *patch.AboutLinksCount
	}
	if patch.FeaturedChannelsCount != nil {
		rec.FeaturedChannelsCount = *patch.FeaturedChannelsCount
	}
	if patch.ScreenshotURI != nil {
		rec.ScreenshotURI = *patch.ScreenshotURI
	}
	if patch.IsScreenshotStored != nil {
		rec.IsScreenshotStored = *patch.IsScreenshotStored
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Country != nil {
		rec.Country = *patch.Country
	}
	if patch.SubscriberCount != nil {
		rec.SubscriberCount = *patch.SubscriberCount
	}
	if patch.VideoCount != nil {
		rec.VideoCount = *patch.VideoCount
	}
	if patch.ViewCount != nil {
		rec.ViewCount = *patch.ViewCount
	}
	if patch.PublishedAt != nil {
		rec.PublishedAt = patch.PublishedAt
	}
	if patch.MetadataMissing != nil {
		rec.MetadataMissing = *patch.MetadataMissing
	}
	if patch.LastExpandedAt != nil {
		rec.LastExpandedAt = patch.LastExpandedAt
	}
	if patch.Source != nil {
		rec.Source = *patch.Source
	}
	return labelApplied
}

// --- pointer helpers for building patches ---

func Str(s string) *string { return &s }
func Int(i int) *int       { return &i }
func Int64(i int64) *int64 { return &i }
func Bool(b bool) *bool    { return &b }
