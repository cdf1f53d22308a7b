// Package store persists channel records and the discovery audit trail
// in Postgres.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB holds the pgx connection pool. It implements engine.ChannelStore
// and engine.DiscoveryLog; the pool is safe to share across all
// concurrent channel pipelines.
type DB struct {
	pool *pgxpool.Pool
}

// Connect creates a pgx pool and runs schema migrations.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("channel postgres connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := db.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// sysErr tags store failures as systemic: when the database misbehaves,
// retrying the remaining channels of a batch will not help.
func sysErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, engine.ErrUnavailable, err)
}

const channelColumns = `channel_id, title, handle, is_bot, is_bot_checked, bot_check_type,
	avatar_uri, banner_uri, avatar_metrics, about_links_count, featured_channels_count,
	screenshot_uri, is_screenshot_stored, description, country,
	subscriber_count, video_count, view_count, published_at,
	is_metadata_missing, registered_at, last_expanded_at, source`

// Upsert merges patch into the record for id inside one transaction,
// creating the record when absent. The row is locked for the merge so
// two enrichment passes cannot interleave. Label downgrades against a
// human-checked row are dropped by engine.Apply, never raised.
func (db *DB) Upsert(ctx context.Context, id string, patch engine.ChannelPatch) (bool, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, sysErr("begin upsert", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_id = $1 FOR UPDATE`, id)
	rec, err := scanChannel(row)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		rec = &engine.ChannelRecord{
			ChannelID:    id,
			CheckType:    engine.CheckPendingReview,
			RegisteredAt: time.Now().UTC(),
		}
	default:
		return false, sysErr("load channel", err)
	}

	engine.Apply(rec, patch)

	metricsJSON, err := marshalMetrics(rec.AvatarMetrics)
	if err != nil {
		return false, fmt.Errorf("encode avatar metrics: %w", err)
	}

	// FOR UPDATE cannot lock a row that does not exist yet, so two
	// first-writers can both race past the ErrNoRows branch. The insert
	// itself arbitrates: xmax = 0 only on the row version that was truly
	// inserted, never on a conflict-updated one.
	var created bool
	err = tx.QueryRow(ctx,
		`INSERT INTO channels (`+channelColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		 ON CONFLICT (channel_id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			is_bot = EXCLUDED.is_bot,
			is_bot_checked = EXCLUDED.is_bot_checked,
			bot_check_type = EXCLUDED.bot_check_type,
			avatar_uri = EXCLUDED.avatar_uri,
			banner_uri = EXCLUDED.banner_uri,
			avatar_metrics = EXCLUDED.avatar_metrics,
			about_links_count = EXCLUDED.about_links_count,
			featured_channels_count = EXCLUDED.featured_channels_count,
			screenshot_uri = EXCLUDED.screenshot_uri,
			is_screenshot_stored = EXCLUDED.is_screenshot_stored,
			description = EXCLUDED.description,
			country = EXCLUDED.country,
			subscriber_count = EXCLUDED.subscriber_count,
			video_count = EXCLUDED.video_count,
			view_count = EXCLUDED.view_count,
			published_at = EXCLUDED.published_at,
			is_metadata_missing = EXCLUDED.is_metadata_missing,
			last_expanded_at = EXCLUDED.last_expanded_at,
			source = EXCLUDED.source
		 RETURNING (xmax = 0)`,
		rec.ChannelID, rec.Title, rec.Handle, rec.IsBot, rec.IsBotChecked, rec.CheckType,
		rec.AvatarURI, rec.BannerURI, metricsJSON, rec.AboutLinksCount, rec.FeaturedChannelsCount,
		rec.ScreenshotURI, rec.IsScreenshotStored, rec.Description, rec.Country,
		rec.SubscriberCount, rec.VideoCount, rec.ViewCount, rec.PublishedAt,
		rec.MetadataMissing, rec.RegisteredAt, rec.LastExpandedAt, rec.Source).Scan(&created)
	if err != nil {
		return false, sysErr("write channel", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, sysErr("commit upsert", err)
	}
	return created, nil
}

// Get returns the record for id, or (nil, nil) when absent.
func (db *DB) Get(ctx context.Context, id string) (*engine.ChannelRecord, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_id = $1`, id)
	rec, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sysErr("get channel", err)
	}
	return rec, nil
}

// Query filters channels for the downstream review/ML tooling.
func (db *DB) Query(ctx context.Context, q engine.ChannelQuery) ([]engine.ChannelRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.IsBot != nil {
		where = append(where, "is_bot = "+arg(*q.IsBot))
	}
	if q.IsBotChecked != nil {
		where = append(where, "is_bot_checked = "+arg(*q.IsBotChecked))
	}
	if q.CheckType != nil {
		where = append(where, "bot_check_type = "+arg(string(*q.CheckType)))
	}
	if q.MinBotProbability != nil {
		where = append(where, "(avatar_metrics->>'bot_probability')::double precision >= "+arg(*q.MinBotProbability))
	}
	if q.MaxBotProbability != nil {
		where = append(where, "(avatar_metrics->>'bot_probability')::double precision <= "+arg(*q.MaxBotProbability))
	}

	sql := `SELECT ` + channelColumns + ` FROM channels`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY registered_at"
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, sysErr("query channels", err)
	}
	defer rows.Close()

	var out []engine.ChannelRecord
	for rows.Next() {
		rec, err := scanChannel(rows)
		if err != nil {
			return nil, sysErr("scan channel", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SeedBots returns the ids of all human-checked bot channels, the
// default seed set for a backfill run.
func (db *DB) SeedBots(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT channel_id FROM channels WHERE is_bot_checked AND is_bot ORDER BY channel_id`)
	if err != nil {
		return nil, sysErr("query seeds", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sysErr("scan seed", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Append writes one discovery edge. Edges are immutable; a duplicate
// (from, to, method) within or across runs collapses to the first row.
func (db *DB) Append(ctx context.Context, edge engine.DiscoveryEdge) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO discovery_edges (from_channel_id, to_channel_id, method, discovered_at, is_validated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (from_channel_id, to_channel_id, method) DO NOTHING`,
		edge.FromChannelID, edge.ToChannelID, string(edge.Method), edge.DiscoveredAt, edge.IsValidated)
	if err != nil {
		return sysErr("append edge", err)
	}
	return nil
}

// AppendDomainLink records an external About-section URL.
func (db *DB) AppendDomainLink(ctx context.Context, link engine.DomainLink) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO domain_links (from_channel_id, url, normalized_domain, discovered_at, source)
		 VALUES ($1, $2, $3, $4, $5)`,
		link.FromChannelID, link.URL, link.NormalizedDomain, link.DiscoveredAt, link.Source)
	if err != nil {
		return sysErr("append domain link", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*engine.ChannelRecord, error) {
	var (
		rec         engine.ChannelRecord
		checkType   string
		metricsJSON []byte
	)
	err := row.Scan(
		&rec.ChannelID, &rec.Title, &rec.Handle, &rec.IsBot, &rec.IsBotChecked, &checkType,
		&rec.AvatarURI, &rec.BannerURI, &metricsJSON, &rec.AboutLinksCount, &rec.FeaturedChannelsCount,
		&rec.ScreenshotURI, &rec.IsScreenshotStored, &rec.Description, &rec.Country,
		&rec.SubscriberCount, &rec.VideoCount, &rec.ViewCount, &rec.PublishedAt,
		&rec.MetadataMissing, &rec.RegisteredAt, &rec.LastExpandedAt, &rec.Source)
	if err != nil {
		return nil, err
	}
	rec.CheckType = engine.BotCheckType(checkType)
	if len(metricsJSON) > 0 {
		var m engine.AvatarMetrics
		if err := json.Unmarshal(metricsJSON, &m); err != nil {
			return nil, fmt.Errorf("decode avatar metrics: %w", err)
		}
		rec.AvatarMetrics = &m
	}
	return &rec, nil
}

func marshalMetrics(m *engine.AvatarMetrics) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
