package engine

// Deterministic blob keys per channel and asset type. Re-captures for
// the same channel overwrite in place.

func AvatarKey(id string) string     { return "channel_avatars/" + id + ".png" }
func BannerKey(id string) string     { return "channel_banners/" + id + ".jpg" }
func ScreenshotKey(id string) string { return "channel_screenshots/" + id + ".png" }
func MetadataKey(id string) string   { return "channel_metadata/raw/" + id + ".json" }
