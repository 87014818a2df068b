package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type Article struct {
	ID             int64
	URL            string
	Title          string
	TitleZh        string
	Content        string
	SourceName     string
	Category       string
	Author         string
	PublishedAt    *time.Time
	Summary        string
	Topics         []string
	Tags           []string
	Importance     string
	TargetAudience string
	KeyPoints      []string
	IsProcessed    bool
	IsFavorited    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Enrichment holds the derived fields written back by article analysis.
type Enrichment struct {
	Summary        string
	TitleZh        string
	Topics         []string
	Tags           []string
	Importance     string
	TargetAudience string
	KeyPoints      []string
}

// URLState describes what is already known about a collected URL.
type URLState struct {
	ID          int64
	URL         string
	HasContent  bool
	IsProcessed bool
}

type ArticleFilter struct {
	SourceNames []string
	Importance  []string
	Processed   *bool
	Favorited   *bool
	Limit       int
	Offset      int
}

const articleColumns = `id, url, title, title_zh, content, source_name, category, author,
	published_at, summary, topics, tags, importance, target_audience, key_points,
	is_processed, is_favorited, created_at, updated_at`

type ArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Insert creates an article on first sighting of its URL. A concurrent insert
// of the same URL is benign: the method reports false and leaves the existing
// row untouched.
func (r *ArticleRepository) Insert(ctx context.Context, a *Article) (bool, error) {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO articles (url, title, title_zh, content, source_name, category, author, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, created_at, updated_at`,
		a.URL, a.Title, a.TitleZh, a.Content, a.SourceName, a.Category, a.Author, a.PublishedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert article: %w", err)
	}
	return true, nil
}

func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*Article, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func (r *ArticleRepository) GetByURL(ctx context.Context, url string) (*Article, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = $1`, url)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get article by url: %w", err)
	}
	return a, nil
}

func (r *ArticleRepository) GetByIDs(ctx context.Context, ids []int64) ([]*Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get articles by ids: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// URLStates resolves the stored state of a batch of URLs in one round trip.
// URLs not present in the result are unknown to the store.
func (r *ArticleRepository) URLStates(ctx context.Context, urls []string) (map[string]URLState, error) {
	states := make(map[string]URLState, len(urls))
	if len(urls) == 0 {
		return states, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, url, content <> '', is_processed FROM articles WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("query url states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s URLState
		if err := rows.Scan(&s.ID, &s.URL, &s.HasContent, &s.IsProcessed); err != nil {
			return nil, fmt.Errorf("scan url state: %w", err)
		}
		states[s.URL] = s
	}
	return states, rows.Err()
}

// UpdateContent replaces the stored content only when the new content is
// non-empty and at least as long as the existing one. Content never shrinks.
func (r *ArticleRepository) UpdateContent(ctx context.Context, id int64, content string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE articles
		SET content = $2, updated_at = now()
		WHERE id = $1 AND $2 <> '' AND char_length($2) >= char_length(content)`,
		id, content)
	if err != nil {
		return false, fmt.Errorf("update article content: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessed writes the derived fields and flips is_processed in one
// statement. An already-processed article is left untouched and reported as
// false.
func (r *ArticleRepository) MarkProcessed(ctx context.Context, id int64, e *Enrichment) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE articles
		SET summary = $2,
			title_zh = CASE WHEN $3 <> '' THEN $3 ELSE title_zh END,
			topics = $4,
			tags = $5,
			importance = $6,
			target_audience = $7,
			key_points = $8,
			is_processed = TRUE,
			updated_at = now()
		WHERE id = $1 AND NOT is_processed`,
		id, e.Summary, e.TitleZh, e.Topics, e.Tags, e.Importance, e.TargetAudience, e.KeyPoints)
	if err != nil {
		return false, fmt.Errorf("mark article processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ArticleRepository) ToggleFavorite(ctx context.Context, id int64) (*Article, error) {
	row := r.db.Pool().QueryRow(ctx, `
		UPDATE articles
		SET is_favorited = NOT is_favorited, updated_at = now()
		WHERE id = $1
		RETURNING `+articleColumns, id)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return a, nil
}

func (r *ArticleRepository) List(ctx context.Context, filter *ArticleFilter) ([]*Article, error) {
	where, args := buildArticleConds(filter)

	query := `SELECT ` + articleColumns + ` FROM articles` + where +
		` ORDER BY published_at DESC NULLS LAST, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

func (r *ArticleRepository) Count(ctx context.Context, filter *ArticleFilter) (int64, error) {
	where, args := buildArticleConds(filter)

	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT count(*) FROM articles`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// SearchKeyword matches a query against title, translated title, summary and
// content. Ranking is done by the caller.
func (r *ArticleRepository) SearchKeyword(ctx context.Context, query string, limit int) ([]*Article, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"

	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE title ILIKE $1 OR title_zh ILIKE $1 OR summary ILIKE $1 OR content ILIKE $1
		ORDER BY published_at DESC NULLS LAST
		LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// ListUnprocessedSince returns unprocessed articles with a known publish date
// inside the trailing window, newest first.
func (r *ArticleRepository) ListUnprocessedSince(ctx context.Context, since time.Time, limit int) ([]*Article, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE NOT is_processed AND published_at IS NOT NULL AND published_at >= $1
		ORDER BY published_at DESC
		LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed articles: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

func (r *ArticleRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT count(*) FROM articles WHERE NOT is_processed`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed articles: %w", err)
	}
	return count, nil
}

// ListProcessedSince returns processed articles published inside the window,
// newest first. Used by digest generation.
func (r *ArticleRepository) ListProcessedSince(ctx context.Context, since time.Time, limit int) ([]*Article, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE is_processed AND published_at IS NOT NULL AND published_at >= $1
		ORDER BY published_at DESC
		LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed articles: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// ListIDs returns every article id in insertion order. Used by full reindex.
func (r *ArticleRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM articles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list article ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func buildArticleConds(filter *ArticleFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)
	add := func(format string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if len(filter.SourceNames) > 0 {
		add("source_name = ANY($%d)", filter.SourceNames)
	}
	if len(filter.Importance) > 0 {
		add("importance = ANY($%d)", filter.Importance)
	}
	if filter.Processed != nil {
		add("is_processed = $%d", *filter.Processed)
	}
	if filter.Favorited != nil {
		add("is_favorited = $%d", *filter.Favorited)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanArticle(row pgx.Row) (*Article, error) {
	var a Article
	err := row.Scan(
		&a.ID, &a.URL, &a.Title, &a.TitleZh, &a.Content, &a.SourceName, &a.Category, &a.Author,
		&a.PublishedAt, &a.Summary, &a.Topics, &a.Tags, &a.Importance, &a.TargetAudience, &a.KeyPoints,
		&a.IsProcessed, &a.IsFavorited, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectArticles(rows pgx.Rows) ([]*Article, error) {
	var result []*Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
