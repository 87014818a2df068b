package postgres

import (
	"context"
	"fmt"
	"time"
)

const (
	SummaryTypeDaily  = "daily"
	SummaryTypeWeekly = "weekly"
)

// RecommendedArticle is one digest pick, stored as JSONB.
type RecommendedArticle struct {
	ArticleID int64  `json:"article_id"`
	Title     string `json:"title"`
	Reason    string `json:"reason"`
}

type Summary struct {
	ID                    int64
	SummaryType           string
	DateBucket            time.Time
	RangeStart            time.Time
	RangeEnd              time.Time
	Content               string
	TotalArticles         int
	HighImportanceCount   int
	MediumImportanceCount int
	KeyTopics             []string
	Recommended           []RecommendedArticle
	ModelUsed             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type SummaryRepository struct {
	db *DB
}

func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Upsert writes a digest keyed by (type, date bucket). A second generation for
// the same bucket updates the existing row.
func (r *SummaryRepository) Upsert(ctx context.Context, s *Summary) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO summaries (summary_type, date_bucket, range_start, range_end, content,
			total_articles, high_importance_count, medium_importance_count,
			key_topics, recommended, model_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (summary_type, date_bucket) DO UPDATE
		SET range_start = EXCLUDED.range_start,
			range_end = EXCLUDED.range_end,
			content = EXCLUDED.content,
			total_articles = EXCLUDED.total_articles,
			high_importance_count = EXCLUDED.high_importance_count,
			medium_importance_count = EXCLUDED.medium_importance_count,
			key_topics = EXCLUDED.key_topics,
			recommended = EXCLUDED.recommended,
			model_used = EXCLUDED.model_used,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		s.SummaryType, s.DateBucket, s.RangeStart, s.RangeEnd, s.Content,
		s.TotalArticles, s.HighImportanceCount, s.MediumImportanceCount,
		s.KeyTopics, s.Recommended, s.ModelUsed,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (r *SummaryRepository) List(ctx context.Context, summaryType string, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, summary_type, date_bucket, range_start, range_end, content,
			total_articles, high_importance_count, medium_importance_count,
			key_topics, recommended, model_used, created_at, updated_at
		FROM summaries`
	args := []any{}
	if summaryType != "" {
		args = append(args, summaryType)
		query += ` WHERE summary_type = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY date_bucket DESC LIMIT $%d`, len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var result []*Summary
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID, &s.SummaryType, &s.DateBucket, &s.RangeStart, &s.RangeEnd, &s.Content,
			&s.TotalArticles, &s.HighImportanceCount, &s.MediumImportanceCount,
			&s.KeyTopics, &s.Recommended, &s.ModelUsed, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}
