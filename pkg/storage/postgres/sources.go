package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	SourceKindRSS        = "rss"
	SourceKindReddit     = "reddit"
	SourceKindHackerNews = "hackernews"
	SourceKindGitHub     = "github"
	SourceKindMastodon   = "mastodon"
)

type Source struct {
	ID              int64
	Name            string
	Kind            string
	URL             string
	Category        string
	Enabled         bool
	LastCollectedAt *time.Time
	ArticleCount    int64
	ErrorCount      int64
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const sourceColumns = `id, name, kind, url, category, enabled, last_collected_at,
	article_count, error_count, last_error, created_at, updated_at`

type SourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(ctx context.Context, s *Source) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO sources (name, kind, url, category, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		s.Name, s.Kind, s.URL, s.Category, s.Enabled,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id int64) (*Source, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

func (r *SourceRepository) List(ctx context.Context, enabledOnly bool) ([]*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var result []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// RecordRun updates per-source stats after a collection attempt. A non-empty
// runErr marks the run as failed.
func (r *SourceRepository) RecordRun(ctx context.Context, id int64, newArticles int, runErr string) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE sources
		SET last_collected_at = now(),
			article_count = article_count + $2,
			error_count = error_count + CASE WHEN $3 <> '' THEN 1 ELSE 0 END,
			last_error = $3,
			updated_at = now()
		WHERE id = $1`,
		id, newArticles, runErr)
	if err != nil {
		return fmt.Errorf("record source run: %w", err)
	}
	return nil
}

func (r *SourceRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE sources SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (*Source, error) {
	var s Source
	err := row.Scan(
		&s.ID, &s.Name, &s.Kind, &s.URL, &s.Category, &s.Enabled, &s.LastCollectedAt,
		&s.ArticleCount, &s.ErrorCount, &s.LastError, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
