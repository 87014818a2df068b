package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
	"github.com/rs/zerolog"
)

// youtubeMinViews filters candidates down to videos that actually took off.
// The search endpoint has no view floor of its own.
const youtubeMinViews = 200_000

// YouTubeCollector finds recent high-traffic videos through the YouTube Data
// API v3. Search results carry snippets without statistics, so collection is
// two calls: search for candidates, then batch-fetch view counts.
type YouTubeCollector struct {
	logger     *zerolog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	query      string
	maxResults int
}

func NewYouTubeCollector(logger *zerolog.Logger, baseURL, apiKey, query string, maxResults int) *YouTubeCollector {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	// The search endpoint rejects maxResults above 50.
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	return &YouTubeCollector{
		logger:     logger,
		httpClient: lib.DefaultHTTPClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		query:      query,
		maxResults: maxResults,
	}
}

func (c *YouTubeCollector) Platform() string {
	return postgres.PlatformYouTube
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type youtubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *YouTubeCollector) Collect(ctx context.Context) ([]*postgres.SocialPost, error) {
	search, err := c.search(ctx)
	if err != nil {
		return nil, fmt.Errorf("search videos: %w", err)
	}
	if len(search.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}

	stats, err := c.statistics(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}

	var posts []*postgres.SocialPost
	for _, item := range search.Items {
		st, ok := stats[item.ID.VideoID]
		if !ok || st.views < youtubeMinViews {
			continue
		}

		post := &postgres.SocialPost{
			Platform:     postgres.PlatformYouTube,
			PostID:       item.ID.VideoID,
			Title:        item.Snippet.Title,
			AuthorName:   item.Snippet.ChannelTitle,
			ViewCount:    st.views,
			LikeCount:    st.likes,
			CommentCount: st.comments,
			PostURL:      "https://www.youtube.com/watch?v=" + item.ID.VideoID,
		}
		if !item.Snippet.PublishedAt.IsZero() {
			published := item.Snippet.PublishedAt
			post.PublishedAt = &published
		}
		posts = append(posts, post)
	}

	c.logger.Debug().
		Int("candidates", len(search.Items)).
		Int("kept", len(posts)).
		Msg("Collected YouTube videos")

	return posts, nil
}

func (c *YouTubeCollector) search(ctx context.Context) (youtubeSearchResponse, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", c.query)
	params.Set("type", "video")
	params.Set("order", "relevance")
	params.Set("regionCode", "US")
	params.Set("maxResults", strconv.Itoa(c.maxResults))
	params.Set("publishedAfter", time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339))
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return youtubeSearchResponse{}, fmt.Errorf("create request: %w", err)
	}

	return lib.DecodeJSONFromRequest[youtubeSearchResponse](c.httpClient, req)
}

type youtubeStatistics struct {
	views    int64
	likes    int64
	comments int64
}

func (c *YouTubeCollector) statistics(ctx context.Context, ids []string) (map[string]youtubeStatistics, error) {
	params := url.Values{}
	params.Set("part", "statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := lib.DecodeJSONFromRequest[youtubeStatsResponse](c.httpClient, req)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]youtubeStatistics, len(resp.Items))
	for _, item := range resp.Items {
		stats[item.ID] = youtubeStatistics{
			views:    parseCount(item.Statistics.ViewCount),
			likes:    parseCount(item.Statistics.LikeCount),
			comments: parseCount(item.Statistics.CommentCount),
		}
	}

	return stats, nil
}

// parseCount reads the decimal string counters the YouTube API returns.
// Hidden counters come through as empty strings and count as zero.
func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
