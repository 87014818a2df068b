package postgres

import (
	"context"
	"fmt"
	"time"
)

const (
	PlatformYouTube = "youtube"
	PlatformTikTok  = "tiktok"
	PlatformTwitter = "twitter"
	PlatformReddit  = "reddit"
)

type SocialPost struct {
	ID              int64
	Platform        string
	PostID          string
	Title           string
	TitleZh         *string
	AuthorName      string
	AuthorFollowers int64
	ViewCount       int64
	LikeCount       int64
	CommentCount    int64
	ShareCount      int64
	ViralScore      *float64
	HasValue        *bool
	ValueReason     *string
	PostURL         string
	PublishedAt     *time.Time
	CollectedAt     time.Time
}

type SocialReport struct {
	ID                int64
	ReportDate        time.Time
	YouTubeCount      int
	TikTokCount       int
	TwitterCount      int
	RedditCount       int
	Content           string
	Platforms         map[string]bool
	ModelUsed         string
	GenerationSeconds float64
	CreatedAt         time.Time
}

const socialPostColumns = `id, platform, post_id, title, title_zh, author_name, author_followers,
	view_count, like_count, comment_count, share_count, viral_score, has_value, value_reason,
	post_url, published_at, collected_at`

type SocialRepository struct {
	db *DB
}

func NewSocialRepository(db *DB) *SocialRepository {
	return &SocialRepository{db: db}
}

// UpsertPost refreshes engagement metrics for a (platform, post id) pair. The
// LLM-derived fields are set-once: an existing non-null value always wins.
func (r *SocialRepository) UpsertPost(ctx context.Context, p *SocialPost) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO social_posts (platform, post_id, title, title_zh, author_name, author_followers,
			view_count, like_count, comment_count, share_count, viral_score, post_url, published_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (platform, post_id) DO UPDATE
		SET title = EXCLUDED.title,
			title_zh = COALESCE(social_posts.title_zh, EXCLUDED.title_zh),
			author_name = EXCLUDED.author_name,
			author_followers = EXCLUDED.author_followers,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			share_count = EXCLUDED.share_count,
			viral_score = EXCLUDED.viral_score,
			post_url = EXCLUDED.post_url,
			published_at = EXCLUDED.published_at,
			collected_at = now()
		RETURNING id, title_zh, has_value, value_reason, collected_at`,
		p.Platform, p.PostID, p.Title, p.TitleZh, p.AuthorName, p.AuthorFollowers,
		p.ViewCount, p.LikeCount, p.CommentCount, p.ShareCount, p.ViralScore,
		p.PostURL, p.PublishedAt,
	).Scan(&p.ID, &p.TitleZh, &p.HasValue, &p.ValueReason, &p.CollectedAt)
	if err != nil {
		return fmt.Errorf("upsert social post: %w", err)
	}
	return nil
}

// SetTranslation caches a translated title. The write is a no-op when a
// translation already exists.
func (r *SocialRepository) SetTranslation(ctx context.Context, id int64, titleZh string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE social_posts SET title_zh = $2 WHERE id = $1 AND title_zh IS NULL`,
		id, titleZh)
	if err != nil {
		return fmt.Errorf("set social post translation: %w", err)
	}
	return nil
}

// SetValueJudgment caches the information-value verdict. The write is a no-op
// when a verdict already exists.
func (r *SocialRepository) SetValueJudgment(ctx context.Context, id int64, hasValue bool, reason string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE social_posts SET has_value = $2, value_reason = $3 WHERE id = $1 AND has_value IS NULL`,
		id, hasValue, reason)
	if err != nil {
		return fmt.Errorf("set social post value judgment: %w", err)
	}
	return nil
}

// ListTop returns the highest-scoring posts for a platform collected since the
// given time.
func (r *SocialRepository) ListTop(ctx context.Context, platform string, since time.Time, limit int) ([]*SocialPost, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+socialPostColumns+` FROM social_posts
		WHERE platform = $1 AND collected_at >= $2
		ORDER BY viral_score DESC NULLS LAST, view_count DESC
		LIMIT $3`,
		platform, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list top social posts: %w", err)
	}
	defer rows.Close()

	var result []*SocialPost
	for rows.Next() {
		var p SocialPost
		err := rows.Scan(
			&p.ID, &p.Platform, &p.PostID, &p.Title, &p.TitleZh, &p.AuthorName, &p.AuthorFollowers,
			&p.ViewCount, &p.LikeCount, &p.CommentCount, &p.ShareCount, &p.ViralScore,
			&p.HasValue, &p.ValueReason, &p.PostURL, &p.PublishedAt, &p.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan social post: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (r *SocialRepository) InsertReport(ctx context.Context, rep *SocialReport) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO social_reports (report_date, youtube_count, tiktok_count, twitter_count,
			reddit_count, content, platforms, model_used, generation_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		rep.ReportDate, rep.YouTubeCount, rep.TikTokCount, rep.TwitterCount,
		rep.RedditCount, rep.Content, rep.Platforms, rep.ModelUsed, rep.GenerationSeconds,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert social report: %w", err)
	}
	return nil
}

func (r *SocialRepository) ListReports(ctx context.Context, limit int) ([]*SocialReport, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, report_date, youtube_count, tiktok_count, twitter_count, reddit_count,
			content, platforms, model_used, generation_seconds, created_at
		FROM social_reports
		ORDER BY report_date DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list social reports: %w", err)
	}
	defer rows.Close()

	var result []*SocialReport
	for rows.Next() {
		var rep SocialReport
		err := rows.Scan(
			&rep.ID, &rep.ReportDate, &rep.YouTubeCount, &rep.TikTokCount, &rep.TwitterCount,
			&rep.RedditCount, &rep.Content, &rep.Platforms, &rep.ModelUsed,
			&rep.GenerationSeconds, &rep.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan social report: %w", err)
		}
		result = append(result, &rep)
	}
	return result, rows.Err()
}
