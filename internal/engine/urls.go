package engine

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Channel identifiers come in two shapes: canonical "UC..." IDs and
// "@handle" / bare handle names picked up from scraped tiles. Handles
// stay expandable (scrape-only) until the API resolves them.

// IsChannelID reports whether id is a canonical UC channel ID.
func IsChannelID(id string) bool {
	return strings.HasPrefix(id, "UC")
}

// ChannelURL builds the public URL for a channel identifier.
// tab is appended verbatim, e.g. "/about".
func ChannelURL(identifier, tab string) string {
	if IsChannelID(identifier) {
		return "https://www.youtube.com/channel/" + identifier + tab
	}
	return "https://www.youtube.com/@" + strings.TrimPrefix(identifier, "@") + tab
}

var avatarSizeRE = regexp.MustCompile(`(=s)(\d+)(-[^?]*)`)

// UpgradeAvatarURL rewrites the last "=s<digits>-" size component of an
// avatar URL to the target size, keeping trailing suffixes like
// "-c-k-c0x00ffffff-no-rj" intact.
func UpgradeAvatarURL(rawURL string, size int) string {
	locs := avatarSizeRE.FindAllStringSubmatchIndex(rawURL, -1)
	if len(locs) == 0 {
		return rawURL
	}
	last := locs[len(locs)-1]
	// indices 4,5 delimit the digits group
	return rawURL[:last[4]] + strconv.Itoa(size) + rawURL[last[5]:]
}

// UnwrapRedirect extracts the destination from a youtube.com/redirect
// wrapper; non-wrapped URLs pass through unchanged.
func UnwrapRedirect(href string) string {
	if !strings.Contains(href, "youtube.com/redirect") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if q := u.Query().Get("q"); q != "" {
		return q
	}
	return href
}

// NormalizeDomain lowercases the URL's hostname and strips a leading
// "www." so links to the same site collapse to one domain row.
func NormalizeDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ChannelIDFromHref parses a channel tile href ("/channel/UC..." or
// "/@handle") into an identifier. Empty string when neither shape matches.
func ChannelIDFromHref(href string) string {
	if i := strings.Index(href, "/channel/"); i >= 0 {
		id := href[i+len("/channel/"):]
		if j := strings.IndexAny(id, "/?"); j >= 0 {
			id = id[:j]
		}
		return id
	}
	if i := strings.Index(href, "/@"); i >= 0 {
		handle := href[i+2:]
		if j := strings.IndexAny(handle, "/?"); j >= 0 {
			handle = handle[:j]
		}
		if unescaped, err := url.PathUnescape(handle); err == nil {
			handle = unescaped
		}
		return handle
	}
	return ""
}
