package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

// --- DOM extraction ---

// ParseAboutHTML pulls featured channels, subscriptions, external links
// and art URLs out of a rendered about page. Selectors track YouTube's
// desktop DOM; a selector that matches nothing yields an empty slice,
// not an error, since many real channels simply have no such section.
func ParseAboutHTML(html string, limit int) engine.AboutPage {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return engine.AboutPage{}
	}

	var page engine.AboutPage
	seen := make(map[string]bool)

	// External links live in the about panel's link list. YouTube wraps
	// them in a redirect interstitial; store the real destination.
	doc.Find("#link-list-container a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = engine.UnwrapRedirect(href)
		if href == "" || seen["link:"+href] {
			return
		}
		seen["link:"+href] = true
		page.ExternalLinks = append(page.ExternalLinks, href)
	})

	collect := func(sel *goquery.Selection, dst *[]string) {
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if limit > 0 && len(*dst) >= limit {
				return false
			}
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			id := engine.ChannelIDFromHref(href)
			if id == "" || seen["chan:"+id] {
				return true
			}
			seen["chan:"+id] = true
			*dst = append(*dst, id)
			return true
		})
	}

	// Featured channels render as grid tiles, subscriptions as list rows.
	collect(doc.Find("ytd-grid-channel-renderer a#channel-info"), &page.FeaturedIDs)
	collect(doc.Find("ytd-channel-renderer a.channel-link"), &page.SubscriptionIDs)

	if src, ok := doc.Find("img.ytCoreImageHost").First().Attr("src"); ok {
		page.AvatarURL = src
	}
	if src, ok := doc.Find("yt-image-banner-view-model img").First().Attr("src"); ok {
		page.BannerURL = src
	}
	return page
}
