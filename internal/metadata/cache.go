package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

// CachedSource wraps a MetadataSource with 2-tier per-ID caching:
// L1 in-memory + L2 Redis. L1 is fast but lost on restart; L2 survives
// restarts, which matters because re-fetching IDs burns API quota.
// Only successful lookups are cached — not-found channels may reappear.
type CachedSource struct {
	inner engine.MetadataSource
	l1    sync.Map // key → *cacheEntry
	rdb   *redis.Client
	ttl   time.Duration
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewCachedSource wraps inner. redisURL can be empty to disable L2.
func NewCachedSource(inner engine.MetadataSource, redisURL string, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &CachedSource{inner: inner, ttl: ttl}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("metadata cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("metadata cache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				c.rdb = rdb
				slog.Info("metadata cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}
	return c
}

func cacheKey(id string) string {
	hash := sha256.Sum256([]byte(id))
	return fmt.Sprintf("bg:meta:%x", hash[:12])
}

// FetchByID serves what it can from cache and forwards only the misses
// to the wrapped source.
func (c *CachedSource) FetchByID(ctx context.Context, ids []string) (map[string]engine.ChannelMetadata, map[string]error, error) {
	out := make(map[string]engine.ChannelMetadata, len(ids))
	var misses []string
	for _, id := range ids {
		if meta, ok := c.get(ctx, id); ok {
			engine.IncrCacheHits()
			out[id] = meta
		} else {
			engine.IncrCacheMisses()
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, map[string]error{}, nil
	}

	fetched, perID, err := c.inner.FetchByID(ctx, misses)
	for id, meta := range fetched {
		out[id] = meta
		c.set(ctx, id, meta)
	}
	return out, perID, err
}

func (c *CachedSource) get(ctx context.Context, id string) (engine.ChannelMetadata, bool) {
	key := cacheKey(id)

	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			var meta engine.ChannelMetadata
			if json.Unmarshal(entry.data, &meta) == nil {
				return meta, true
			}
		}
		c.l1.Delete(key) // expired or corrupt
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var meta engine.ChannelMetadata
			if json.Unmarshal(data, &meta) == nil {
				c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
				return meta, true
			}
		}
	}
	return engine.ChannelMetadata{}, false
}

func (c *CachedSource) set(ctx context.Context, id string, meta engine.ChannelMetadata) {
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	key := cacheKey(id)
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("metadata cache: L2 set failed", slog.Any("error", err))
		}
	}
}
