package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRecord is the store of record for article vectors. The column is an
// untyped vector so rows embedded by different-dimension models can coexist;
// comparisons must check dimensions.
type EmbeddingRecord struct {
	ArticleID int64
	Embedding []float32
	Dim       int
	Content   string
	Model     string
	UpdatedAt time.Time
}

// EmbeddingWithArticle pairs an embedding row with its article for the
// brute-force scan.
type EmbeddingWithArticle struct {
	Embedding EmbeddingRecord
	Article   Article
}

// SearchFilter narrows candidate articles before similarity ranking.
type SearchFilter struct {
	Sources    []string
	Importance []string
	TimeFrom   *time.Time
	TimeTo     *time.Time
}

func (f *SearchFilter) Empty() bool {
	return f == nil ||
		(len(f.Sources) == 0 && len(f.Importance) == 0 && f.TimeFrom == nil && f.TimeTo == nil)
}

func (f *SearchFilter) conds(prefix string, argOffset int) (string, []any) {
	if f == nil {
		return "", nil
	}

	var (
		clause string
		args   []any
	)
	add := func(format string, val any) {
		args = append(args, val)
		clause += fmt.Sprintf(" AND "+format, prefix, argOffset+len(args))
	}

	if len(f.Sources) > 0 {
		add("%ssource_name = ANY($%d)", f.Sources)
	}
	if len(f.Importance) > 0 {
		add("%simportance = ANY($%d)", f.Importance)
	}
	if f.TimeFrom != nil {
		add("%spublished_at >= $%d", *f.TimeFrom)
	}
	if f.TimeTo != nil {
		add("%spublished_at <= $%d", *f.TimeTo)
	}
	return clause, args
}

type EmbeddingRepository struct {
	db *DB
}

func NewEmbeddingRepository(db *DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Upsert stores the embedding for an article, replacing any previous vector.
// At most one live embedding exists per article.
func (r *EmbeddingRepository) Upsert(ctx context.Context, rec *EmbeddingRecord) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO article_embeddings (article_id, embedding, dim, content, model, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (article_id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			content = EXCLUDED.content,
			model = EXCLUDED.model,
			updated_at = now()`,
		rec.ArticleID, pgvector.NewVector(rec.Embedding), rec.Dim, rec.Content, rec.Model)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (r *EmbeddingRepository) Delete(ctx context.Context, articleID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM article_embeddings WHERE article_id = $1`, articleID)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// Sample returns one stored embedding, used to detect dimension mismatches
// before trusting the native index.
func (r *EmbeddingRepository) Sample(ctx context.Context) (*EmbeddingRecord, error) {
	var (
		rec EmbeddingRecord
		vec pgvector.Vector
	)
	err := r.db.Pool().QueryRow(ctx, `
		SELECT article_id, embedding, dim, content, model, updated_at
		FROM article_embeddings LIMIT 1`).
		Scan(&rec.ArticleID, &vec, &rec.Dim, &rec.Content, &rec.Model, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sample embedding: %w", err)
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

// ListWithArticles streams every embedding row joined with its article,
// narrowed by the filter at the store level.
func (r *EmbeddingRepository) ListWithArticles(ctx context.Context, filter *SearchFilter) ([]*EmbeddingWithArticle, error) {
	query := `
		SELECT e.article_id, e.embedding, e.dim, e.content, e.model, e.updated_at,
			` + prefixColumns("a.", articleColumns) + `
		FROM article_embeddings e
		JOIN articles a ON e.article_id = a.id
		WHERE TRUE`

	clause, args := filter.conds("a.", 0)
	query += clause

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var result []*EmbeddingWithArticle
	for rows.Next() {
		var (
			item EmbeddingWithArticle
			vec  pgvector.Vector
			a    = &item.Article
		)
		err := rows.Scan(
			&item.Embedding.ArticleID, &vec, &item.Embedding.Dim,
			&item.Embedding.Content, &item.Embedding.Model, &item.Embedding.UpdatedAt,
			&a.ID, &a.URL, &a.Title, &a.TitleZh, &a.Content, &a.SourceName, &a.Category, &a.Author,
			&a.PublishedAt, &a.Summary, &a.Topics, &a.Tags, &a.Importance, &a.TargetAudience, &a.KeyPoints,
			&a.IsProcessed, &a.IsFavorited, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		item.Embedding.Embedding = vec.Slice()
		result = append(result, &item)
	}
	return result, rows.Err()
}

func (r *EmbeddingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT count(*) FROM article_embeddings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// CountBySource returns how many indexed articles each source contributes.
func (r *EmbeddingRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT a.source_name, count(*)
		FROM article_embeddings e
		JOIN articles a ON e.article_id = a.id
		GROUP BY a.source_name`)
	if err != nil {
		return nil, fmt.Errorf("count embeddings by source: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var (
			source string
			count  int64
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		stats[source] = count
	}
	return stats, rows.Err()
}

func prefixColumns(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = prefix + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
