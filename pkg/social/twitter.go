package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
	"github.com/rs/zerolog"
)

const (
	// twitterMinViews and twitterMinEngagement gate which tweets count as
	// trending. Both must clear.
	twitterMinViews      = 10_000
	twitterMinEngagement = 1000
	twitterMaxPages      = 10
	twitterTitleMaxLen   = 200
)

// TwitterCollector searches for top tweets through a twitterapi.io-style
// gateway. The engagement score it computes doubles as the stored viral
// score.
type TwitterCollector struct {
	logger     *zerolog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	query      string
	maxResults int
}

func NewTwitterCollector(logger *zerolog.Logger, baseURL, apiKey, query string, maxResults int) *TwitterCollector {
	if baseURL == "" {
		baseURL = "https://api.twitterapi.io/twitter/tweet"
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	return &TwitterCollector{
		logger:     logger,
		httpClient: lib.DefaultHTTPClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		query:      query,
		maxResults: maxResults,
	}
}

func (c *TwitterCollector) Platform() string {
	return postgres.PlatformTwitter
}

type twitterTweet struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	URL    string `json:"twitterUrl"`
	AltURL string `json:"url"`
	Author struct {
		ID       string `json:"id"`
		UserName string `json:"userName"`
	} `json:"author"`
	LikeCount    int64  `json:"likeCount"`
	RetweetCount int64  `json:"retweetCount"`
	ReplyCount   int64  `json:"replyCount"`
	QuoteCount   int64  `json:"quoteCount"`
	ViewCount    int64  `json:"viewCount"`
	CreatedAt    string `json:"createdAt"`
}

type twitterSearchResponse struct {
	Tweets  []twitterTweet `json:"tweets"`
	HasMore bool           `json:"hasMore"`
	Cursor  string         `json:"cursor"`
}

func (c *TwitterCollector) Collect(ctx context.Context) ([]*postgres.SocialPost, error) {
	var collected []*postgres.SocialPost
	cursor := ""

	for page := 0; page < twitterMaxPages && len(collected) < c.maxResults; page++ {
		resp, err := c.searchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("search page: %w", err)
		}

		for _, tweet := range resp.Tweets {
			if post, ok := c.toPost(tweet); ok {
				collected = append(collected, post)
			}
		}

		if !resp.HasMore || resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}

	var posts []*postgres.SocialPost
	for _, p := range collected {
		if *p.ViralScore >= twitterMinEngagement && p.ViewCount >= twitterMinViews {
			posts = append(posts, p)
		}
	}
	if len(posts) > c.maxResults {
		posts = posts[:c.maxResults]
	}

	c.logger.Debug().
		Int("candidates", len(collected)).
		Int("kept", len(posts)).
		Msg("Collected tweets")

	return posts, nil
}

func (c *TwitterCollector) searchPage(ctx context.Context, cursor string) (twitterSearchResponse, error) {
	params := url.Values{}
	params.Set("query", c.query)
	params.Set("queryType", "Top")
	params.Set("cursor", cursor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/advanced_search?"+params.Encode(), nil)
	if err != nil {
		return twitterSearchResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	return lib.DecodeJSONFromRequest[twitterSearchResponse](c.httpClient, req)
}

func (c *TwitterCollector) toPost(tweet twitterTweet) (*postgres.SocialPost, bool) {
	if tweet.ID == "" {
		return nil, false
	}

	postURL := tweet.URL
	if postURL == "" {
		postURL = tweet.AltURL
	}
	if postURL == "" {
		postURL = "https://twitter.com/i/status/" + tweet.ID
	}

	title, _ := lib.LimitStringLength(tweet.Text, twitterTitleMaxLen)
	score := TwitterEngagementScore(tweet.LikeCount, tweet.RetweetCount, tweet.ReplyCount, tweet.QuoteCount)

	post := &postgres.SocialPost{
		Platform:     postgres.PlatformTwitter,
		PostID:       tweet.ID,
		Title:        title,
		AuthorName:   tweet.Author.UserName,
		ViewCount:    tweet.ViewCount,
		LikeCount:    tweet.LikeCount,
		CommentCount: tweet.ReplyCount,
		ShareCount:   tweet.RetweetCount,
		ViralScore:   &score,
		PostURL:      postURL,
	}
	// Tweet timestamps arrive like "Sat Jan 17 08:00:01 +0000 2026".
	if published, err := time.Parse(time.RubyDate, tweet.CreatedAt); err == nil {
		published = published.UTC()
		post.PublishedAt = &published
	}

	return post, true
}
