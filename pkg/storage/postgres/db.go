package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// ErrNotFound is returned by repository lookups when no row matches.
var ErrNotFound = errors.New("record not found")

type DB struct {
	cfg  *Config
	pool *pgxpool.Pool
}

func NewDB(cfg *Config) *DB {
	return &DB{cfg: cfg}
}

func (d *DB) Pool() *pgxpool.Pool {
	if d.pool == nil {
		panic("db not connected, call DB.Connect() first")
	}
	return d.pool
}

// Connect opens the connection pool and verifies connectivity.
func (d *DB) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(d.cfg.DSN())
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			// The vector extension does not exist until the first
			// migration runs; connections opened before that are
			// recycled by Migrate.
			if d.cfg.AutoMigrate {
				return nil
			}
			return fmt.Errorf("register vector types: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("pgx connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	d.pool = pool

	return nil
}

func (d *DB) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// Migrate creates the schema if it does not exist. embeddingDim fixes the
// dimension of the native KNN table and must match the configured embedding
// model.
func (d *DB) Migrate(ctx context.Context, embeddingDim int) error {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			title_zh TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			summary TEXT NOT NULL DEFAULT '',
			topics TEXT[] NOT NULL DEFAULT '{}',
			tags TEXT[] NOT NULL DEFAULT '{}',
			importance TEXT NOT NULL DEFAULT '' CHECK (importance IN ('', 'high', 'medium', 'low')),
			target_audience TEXT NOT NULL DEFAULT '',
			key_points TEXT[] NOT NULL DEFAULT '{}',
			is_processed BOOLEAN NOT NULL DEFAULT FALSE,
			is_favorited BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS articles_published_at_idx ON articles (published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS articles_unprocessed_idx ON articles (published_at DESC) WHERE NOT is_processed`,
		`CREATE INDEX IF NOT EXISTS articles_source_name_idx ON articles (source_name)`,

		`CREATE TABLE IF NOT EXISTS article_embeddings (
			article_id BIGINT PRIMARY KEY REFERENCES articles (id) ON DELETE CASCADE,
			embedding VECTOR NOT NULL,
			dim INT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS article_vectors (
			article_id BIGINT PRIMARY KEY REFERENCES articles (id) ON DELETE CASCADE,
			embedding VECTOR(%d) NOT NULL
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS article_vectors_embedding_idx ON article_vectors USING hnsw (embedding vector_cosine_ops)`,

		`CREATE TABLE IF NOT EXISTS sources (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL CHECK (kind IN ('rss', 'reddit', 'hackernews', 'github', 'mastodon')),
			url TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_collected_at TIMESTAMPTZ,
			article_count BIGINT NOT NULL DEFAULT 0,
			error_count BIGINT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS collection_tasks (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'error')),
			ai_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			total_sources INT NOT NULL DEFAULT 0,
			success_sources INT NOT NULL DEFAULT 0,
			failed_sources INT NOT NULL DEFAULT 0,
			new_articles INT NOT NULL DEFAULT 0,
			analyzed_count INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS collection_tasks_started_at_idx ON collection_tasks (started_at DESC)`,

		`CREATE TABLE IF NOT EXISTS collection_logs (
			id BIGSERIAL PRIMARY KEY,
			task_id UUID NOT NULL REFERENCES collection_tasks (id) ON DELETE CASCADE,
			source_name TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('success', 'error')),
			items_found INT NOT NULL DEFAULT 0,
			new_articles INT NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS collection_logs_task_id_idx ON collection_logs (task_id)`,

		`CREATE TABLE IF NOT EXISTS summaries (
			id BIGSERIAL PRIMARY KEY,
			summary_type TEXT NOT NULL CHECK (summary_type IN ('daily', 'weekly')),
			date_bucket DATE NOT NULL,
			range_start TIMESTAMPTZ NOT NULL,
			range_end TIMESTAMPTZ NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			total_articles INT NOT NULL DEFAULT 0,
			high_importance_count INT NOT NULL DEFAULT 0,
			medium_importance_count INT NOT NULL DEFAULT 0,
			key_topics TEXT[] NOT NULL DEFAULT '{}',
			recommended JSONB NOT NULL DEFAULT '[]',
			model_used TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (summary_type, date_bucket)
		)`,

		`CREATE TABLE IF NOT EXISTS social_posts (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL CHECK (platform IN ('youtube', 'tiktok', 'twitter', 'reddit')),
			post_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			title_zh TEXT,
			author_name TEXT NOT NULL DEFAULT '',
			author_followers BIGINT NOT NULL DEFAULT 0,
			view_count BIGINT NOT NULL DEFAULT 0,
			like_count BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			share_count BIGINT NOT NULL DEFAULT 0,
			viral_score DOUBLE PRECISION,
			has_value BOOLEAN,
			value_reason TEXT,
			post_url TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (platform, post_id)
		)`,
		`CREATE INDEX IF NOT EXISTS social_posts_platform_score_idx ON social_posts (platform, viral_score DESC)`,

		`CREATE TABLE IF NOT EXISTS social_reports (
			id BIGSERIAL PRIMARY KEY,
			report_date DATE NOT NULL,
			youtube_count INT NOT NULL DEFAULT 0,
			tiktok_count INT NOT NULL DEFAULT 0,
			twitter_count INT NOT NULL DEFAULT 0,
			reddit_count INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL DEFAULT '',
			platforms JSONB NOT NULL DEFAULT '{}',
			model_used TEXT NOT NULL DEFAULT '',
			generation_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS social_reports_date_idx ON social_reports (report_date DESC)`,
	}

	for _, stmt := range statements {
		if _, err := d.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	// Connections opened before the vector extension existed lack the type
	// registration; recycle them so the AfterConnect hook runs again.
	d.Pool().Reset()

	return nil
}
