package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// BotCheckType is the provenance tag for a channel's bot label.
type BotCheckType string

const (
	CheckPendingReview BotCheckType = "pending_review" // new, no prior signal
	CheckPropagated    BotCheckType = "propagated"     // inherited from a labeled-bot parent
	CheckManual        BotCheckType = "manual"         // human reviewed, terminal
	CheckConfirmed     BotCheckType = "confirmed"      // human confirmed with strong evidence, never set here
)

// Valid reports whether t is a known provenance state.
func (t BotCheckType) Valid() bool {
	switch t {
	case CheckPendingReview, CheckPropagated, CheckManual, CheckConfirmed:
		return true
	}
	return false
}

// DiscoveryMethod describes how a channel was found.
type DiscoveryMethod string

const (
	MethodCommentRegistration DiscoveryMethod = "comment_registration"
	MethodFeaturedChannel     DiscoveryMethod = "featured_channel"
	MethodSubscription        DiscoveryMethod = "subscription"
	MethodAboutLink           DiscoveryMethod = "about_link"
	MethodGoogleSearch        DiscoveryMethod = "google_search"
)

// AvatarMetrics is the black-box output of an AvatarScorer.
type AvatarMetrics struct {
	BotProbability float64            `json:"bot_probability"`
	Features       map[string]float64 `json:"features,omitempty"`
}

// Label bundles the bot-labeling triad. It is merged as a unit: the store
// drops the whole triad when the existing record is already human-checked.
type Label struct {
	IsBot        bool         `json:"is_bot"`
	IsBotChecked bool         `json:"is_bot_checked"`
	CheckType    BotCheckType `json:"bot_check_type"`
}

// ChannelRecord is the persisted per-channel document.
type ChannelRecord struct {
	ChannelID string `json:"channel_id"`
	Title     string `json:"title,omitempty"`
	Handle    string `json:"handle,omitempty"`

	IsBot        bool         `json:"is_bot"`
	IsBotChecked bool         `json:"is_bot_checked"`
	CheckType    BotCheckType `json:"bot_check_type"`

	AvatarURI     string         `json:"avatar_uri,omitempty"`
	BannerURI     string         `json:"banner_uri,omitempty"`
	AvatarMetrics *AvatarMetrics `json:"avatar_metrics,omitempty"`

	AboutLinksCount       int `json:"about_links_count"`
	FeaturedChannelsCount int `json:"featured_channels_count"`

	ScreenshotURI      string `json:"screenshot_uri,omitempty"`
	IsScreenshotStored bool   `json:"is_screenshot_stored"`

	Description     string     `json:"description,omitempty"`
	Country         string     `json:"country,omitempty"`
	SubscriberCount int64      `json:"subscriber_count,omitempty"`
	VideoCount      int64      `json:"video_count,omitempty"`
	ViewCount       int64      `json:"view_count,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`

	MetadataMissing bool       `json:"is_metadata_missing"`
	RegisteredAt    time.Time  `json:"registered_at"`
	LastExpandedAt  *time.Time `json:"last_expanded_at,omitempty"`
	Source          string     `json:"source,omitempty"`
}

// ChannelPatch carries the fields one pipeline pass learned about a channel.
// nil pointer = field untouched on merge.
type ChannelPatch struct {
	Title  *string
	Handle *string
	Label  *Label

	AvatarURI     *string
	BannerURI     *string
	AvatarMetrics *AvatarMetrics

	AboutLinksCount       *int
	FeaturedChannelsCount *int

	ScreenshotURI      *string
	IsScreenshotStored *bool

	Description     *string
	Country         *string
	SubscriberCount *int64
	VideoCount      *int64
	ViewCount       *int64
	PublishedAt     *time.Time

	MetadataMissing *bool
	LastExpandedAt  *time.Time
	Source          *string
}

// DiscoveryEdge records "to was discovered from `from` via method".
// Append-only: edges are an audit trail, never an adjacency list.
type DiscoveryEdge struct {
	FromChannelID string          `json:"discovered_from_channel_id"`
	ToChannelID   string          `json:"discovered_channel_id"`
	Method        DiscoveryMethod `json:"discovery_method"`
	DiscoveredAt  time.Time       `json:"discovered_at"`
	IsValidated   bool            `json:"is_validated"`
}

// DomainLink records an external URL found in a channel's About section,
// keyed by its normalized domain for later enrichment.
type DomainLink struct {
	FromChannelID    string    `json:"from_channel_id"`
	URL              string    `json:"url"`
	NormalizedDomain string    `json:"normalized_domain"`
	DiscoveredAt     time.Time `json:"discovered_at"`
	Source           string    `json:"source"`
}

// ChannelMetadata is the canonical channel info from the metadata API.
type ChannelMetadata struct {
	ChannelID       string          `json:"channel_id"`
	Title           string          `json:"title"`
	Handle          string          `json:"handle"`
	Description     string          `json:"description"`
	Country         string          `json:"country"`
	PublishedAt     time.Time       `json:"published_at"`
	AvatarURL       string          `json:"avatar_url"`
	BannerURL       string          `json:"banner_url"`
	SubscriberCount int64           `json:"subscriber_count"`
	VideoCount      int64           `json:"video_count"`
	ViewCount       int64           `json:"view_count"`
	HiddenSubsCount bool            `json:"is_subscriber_count_hidden"`
	Raw             json.RawMessage `json:"-"`
}

// AboutPage is what one rendered about-page yields.
// Zero value is the legitimate "nothing found" outcome for deleted,
// private or link-less channels.
type AboutPage struct {
	FeaturedIDs     []string
	SubscriptionIDs []string
	ExternalLinks   []string
	AvatarURL       string
	BannerURL       string
	Screenshot      []byte // nil when capture failed or was skipped
}

// ChannelQuery filters records for downstream review/ML tooling.
type ChannelQuery struct {
	IsBot             *bool
	IsBotChecked      *bool
	CheckType         *BotCheckType
	MinBotProbability *float64
	MaxBotProbability *float64
	Limit             int
}

// --- capability interfaces (injected, see Deps) ---

// ChannelStore owns per-channel records in the document database.
type ChannelStore interface {
	// Upsert merges patch into the record for id, creating it when absent.
	// Returns true when a new record was created. The bot-labeling triad is
	// applied only while the existing record has is_bot_checked=false.
	Upsert(ctx context.Context, id string, patch ChannelPatch) (created bool, err error)
	// Get returns the record for id, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*ChannelRecord, error)
	Query(ctx context.Context, q ChannelQuery) ([]ChannelRecord, error)
}

// DiscoveryLog is the append-only edge audit trail.
type DiscoveryLog interface {
	Append(ctx context.Context, edge DiscoveryEdge) error
	AppendDomainLink(ctx context.Context, link DomainLink) error
}

// BlobStore stores evidence bytes and returns an addressable URI.
// Put is an idempotent overwrite keyed by the deterministic path.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// MetadataSource is the external channel-info API.
// Per-ID failures (quota, not found, private) land in the second map;
// the returned error is reserved for systemic failures that make
// retrying other IDs pointless.
type MetadataSource interface {
	FetchByID(ctx context.Context, ids []string) (map[string]ChannelMetadata, map[string]error, error)
}

// PageScraper renders a channel's about page in a headless browser session.
type PageScraper interface {
	RenderAboutPage(ctx context.Context, identifier string) (AboutPage, error)
}

// AvatarScorer turns avatar bytes into a bot-likelihood feature vector.
type AvatarScorer interface {
	Score(ctx context.Context, image []byte) (AvatarMetrics, error)
}

// Downloader fetches raw bytes from an image CDN URL.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// --- error taxonomy ---

// Systemic errors abort the whole batch; everything else degrades to
// partial evidence for the affected channel only.
var (
	ErrAuth        = errors.New("metadata API credentials rejected")
	ErrUnavailable = errors.New("backing store unavailable")

	// Per-ID metadata outcomes, recoverable locally.
	ErrQuotaExceeded   = errors.New("metadata API quota exceeded")
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelPrivate  = errors.New("channel is private")
)

// IsSystemic reports whether err must abort the remaining batch.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrUnavailable)
}
