// Package metadata fetches canonical channel info from the YouTube
// Data API v3, with a tiered cache in front of it.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

const (
	channelsEndpoint = "https://www.googleapis.com/youtube/v3/channels"
	// channels.list accepts at most 50 IDs per call.
	batchSize = 50
)

// Client talks to the channels.list endpoint. It implements
// engine.MetadataSource.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   engine.RetryConfig
}

// NewClient builds an API client. qps bounds request rate against the
// daily quota; 0 means a conservative default.
func NewClient(apiKey string, qps float64) *Client {
	if qps <= 0 {
		qps = 2
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: channelsEndpoint,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		retry:   engine.DefaultRetryConfig,
	}
}

// FetchByID resolves canonical metadata for up to len(ids) channels in
// batches of 50. IDs absent from the response map to ErrChannelNotFound
// in the per-ID error map. Only credential failures are returned as the
// batch error; quota exhaustion is per-ID so already-fetched batches
// are kept.
func (c *Client) FetchByID(ctx context.Context, ids []string) (map[string]engine.ChannelMetadata, map[string]error, error) {
	out := make(map[string]engine.ChannelMetadata, len(ids))
	perID := make(map[string]error)

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return out, perID, err
		}
		engine.IncrMetadataRequests()

		items, err := c.fetchBatch(ctx, batch)
		if err != nil {
			engine.IncrMetadataErrors()
			if engine.IsSystemic(err) {
				return out, perID, err
			}
			// Quota or transient failure: mark this batch's IDs and keep
			// whatever earlier batches produced.
			for _, id := range batch {
				perID[id] = err
			}
			slog.Warn("metadata batch failed",
				slog.Int("ids", len(batch)), slog.Any("error", err))
			continue
		}
		for id, meta := range items {
			out[id] = meta
		}
		for _, id := range batch {
			if _, ok := items[id]; !ok {
				// The API silently omits deleted and terminated channels.
				perID[id] = engine.ErrChannelNotFound
			}
		}
	}
	return out, perID, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []string) (map[string]engine.ChannelMetadata, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics,brandingSettings")
	q.Set("id", strings.Join(ids, ","))
	q.Set("maxResults", strconv.Itoa(batchSize))
	q.Set("key", c.apiKey)
	reqURL := c.baseURL + "?" + q.Encode()

	resp, err := engine.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("channels.list: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read channels.list response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyAPIError(resp.StatusCode, body)
	}
	return parseChannelList(body)
}

// classifyAPIError maps the API's error envelope onto the engine
// taxonomy. Bad credentials are systemic; quota is recoverable.
func classifyAPIError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	reason := ""
	if len(envelope.Error.Errors) > 0 {
		reason = envelope.Error.Errors[0].Reason
	}
	switch {
	case reason == "quotaExceeded" || reason == "rateLimitExceeded":
		return fmt.Errorf("%w: %s", engine.ErrQuotaExceeded, envelope.Error.Message)
	case reason == "keyInvalid" || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", engine.ErrAuth, status, envelope.Error.Message)
	default:
		return fmt.Errorf("channels.list status %d: %s", status, envelope.Error.Message)
	}
}

// --- response parsing ---

type channelListResponse struct {
	Items []channelItem `json:"items"`
}

type channelItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		CustomURL   string    `json:"customUrl"`
		Country     string    `json:"country"`
		PublishedAt time.Time `json:"publishedAt"`
		Thumbnails  struct {
			High    thumbnail `json:"high"`
			Medium  thumbnail `json:"medium"`
			Default thumbnail `json:"default"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount string `json:"subscriberCount"`
		HiddenSubsCount bool   `json:"hiddenSubscriberCount"`
		VideoCount      string `json:"videoCount"`
		ViewCount       string `json:"viewCount"`
	} `json:"statistics"`
	BrandingSettings struct {
		Image struct {
			BannerExternalURL string `json:"bannerExternalUrl"`
		} `json:"image"`
	} `json:"brandingSettings"`
}

type thumbnail struct {
	URL string `json:"url"`
}

func parseChannelList(body []byte) (map[string]engine.ChannelMetadata, error) {
	var listResp channelListResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("decode channels.list: %w", err)
	}

	out := make(map[string]engine.ChannelMetadata, len(listResp.Items))
	for _, item := range listResp.Items {
		raw, _ := json.Marshal(item)
		meta := engine.ChannelMetadata{
			ChannelID:       item.ID,
			Title:           item.Snippet.Title,
			Handle:          item.Snippet.CustomURL,
			Description:     item.Snippet.Description,
			Country:         item.Snippet.Country,
			PublishedAt:     item.Snippet.PublishedAt,
			AvatarURL:       bestThumbnail(item),
			BannerURL:       item.BrandingSettings.Image.BannerExternalURL,
			SubscriberCount: parseCount(item.Statistics.SubscriberCount),
			VideoCount:      parseCount(item.Statistics.VideoCount),
			ViewCount:       parseCount(item.Statistics.ViewCount),
			HiddenSubsCount: item.Statistics.HiddenSubsCount,
			Raw:             raw,
		}
		out[item.ID] = meta
	}
	return out, nil
}

func bestThumbnail(item channelItem) string {
	t := item.Snippet.Thumbnails
	switch {
	case t.High.URL != "":
		return t.High.URL
	case t.Medium.URL != "":
		return t.Medium.URL
	default:
		return t.Default.URL
	}
}

// The API serializes statistics counts as strings.
func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
