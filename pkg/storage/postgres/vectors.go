package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// VectorMatch is a nearest-neighbor hit from the native index.
type VectorMatch struct {
	ArticleID int64
	Distance  float64
}

// VectorRepository is the fast-path KNN mirror over article_vectors. It is a
// secondary index: rows may be absent or stale, and callers fall back to the
// embedding store when it cannot serve a query.
type VectorRepository struct {
	db *DB
}

func NewVectorRepository(db *DB) *VectorRepository {
	return &VectorRepository{db: db}
}

func (r *VectorRepository) Upsert(ctx context.Context, articleID int64, vec []float32) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO article_vectors (article_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (article_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		articleID, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

func (r *VectorRepository) Delete(ctx context.Context, articleID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM article_vectors WHERE article_id = $1`, articleID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// Probe checks that the native index table exists and is queryable. An empty
// table passes; emptiness is handled per query.
func (r *VectorRepository) Probe(ctx context.Context) error {
	rows, err := r.db.Pool().Query(ctx, `SELECT 1 FROM article_vectors LIMIT 1`)
	if err != nil {
		return fmt.Errorf("probe vector index: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("probe vector index: %w", err)
	}
	return nil
}

// Metric reports the distance metric Nearest returns. The <=> operator is
// pgvector's cosine distance.
func (r *VectorRepository) Metric() string {
	return "cosine"
}

// Nearest runs a cosine-distance KNN query with article filters pushed down
// into the scan.
func (r *VectorRepository) Nearest(ctx context.Context, query []float32, k int, filter *SearchFilter) ([]VectorMatch, error) {
	if k <= 0 {
		k = 20
	}

	args := []any{pgvector.NewVector(query)}
	sql := `
		SELECT v.article_id, v.embedding <=> $1 AS distance
		FROM article_vectors v
		JOIN articles a ON v.article_id = a.id
		WHERE TRUE`

	clause, filterArgs := filter.conds("a.", len(args))
	sql += clause
	args = append(args, filterArgs...)

	args = append(args, k)
	sql += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args))

	rows, err := r.db.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest vectors: %w", err)
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var m VectorMatch
		if err := rows.Scan(&m.ArticleID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
