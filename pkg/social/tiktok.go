package social

import (
	"context"
	"encoding/json"
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
	tiktokHost = "tiktok-api23.p.rapidapi.com"
	// tiktokMinScore keeps only videos that clear the viral threshold.
	tiktokMinScore = 8.0
	// tiktokMaxAge drops videos older than a week.
	tiktokMaxAge = 7 * 24 * time.Hour
	// tiktokMaxPages bounds pagination. A stuck cursor would loop forever
	// otherwise.
	tiktokMaxPages    = 10
	tiktokTitleMaxLen = 200
)

// TikTokCollector searches TikTok through a RapidAPI gateway. The search
// endpoint paginates with a cursor and a search session id that must be
// echoed back on every page.
type TikTokCollector struct {
	logger     *zerolog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	query      string
	maxResults int
}

func NewTikTokCollector(logger *zerolog.Logger, baseURL, apiKey, query string, maxResults int) *TikTokCollector {
	if baseURL == "" {
		baseURL = "https://" + tiktokHost
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	return &TikTokCollector{
		logger:     logger,
		httpClient: lib.DefaultHTTPClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		query:      query,
		maxResults: maxResults,
	}
}

func (c *TikTokCollector) Platform() string {
	return postgres.PlatformTikTok
}

type tiktokItem struct {
	ID     string `json:"id"`
	Desc   string `json:"desc"`
	Author struct {
		ID       string `json:"id"`
		UniqueID string `json:"uniqueId"`
	} `json:"author"`
	AuthorStats struct {
		FollowerCount int64 `json:"followerCount"`
	} `json:"authorStats"`
	Stats struct {
		PlayCount    int64 `json:"playCount"`
		DiggCount    int64 `json:"diggCount"`
		CommentCount int64 `json:"commentCount"`
		ShareCount   int64 `json:"shareCount"`
		CollectCount int64 `json:"collectCount"`
	} `json:"stats"`
	CreateTime int64 `json:"createTime"`
}

type tiktokSearchResponse struct {
	Data []struct {
		Item tiktokItem `json:"item"`
	} `json:"data"`
	Cursor   json.RawMessage `json:"cursor"`
	SearchID json.RawMessage `json:"search_id"`
	HasMore  bool            `json:"has_more"`
	LogPb    struct {
		ImprID json.RawMessage `json:"impr_id"`
	} `json:"log_pb"`
}

func (c *TikTokCollector) Collect(ctx context.Context) ([]*postgres.SocialPost, error) {
	var collected []*postgres.SocialPost
	cursor, searchID := "0", "0"
	now := time.Now()

	for page := 0; page < tiktokMaxPages && len(collected) < c.maxResults; page++ {
		resp, err := c.searchPage(ctx, cursor, searchID)
		if err != nil {
			return nil, fmt.Errorf("search page: %w", err)
		}

		for _, entry := range resp.Data {
			if post, ok := c.toPost(entry.Item, now); ok {
				collected = append(collected, post)
			}
		}

		if !resp.HasMore {
			break
		}
		if next := jsonToken(resp.Cursor); next != "" {
			cursor = next
		}
		// Some gateway versions report the session id only inside log_pb.
		if next := jsonToken(resp.SearchID); next != "" {
			searchID = next
		} else if next := jsonToken(resp.LogPb.ImprID); next != "" {
			searchID = next
		}
	}

	var posts []*postgres.SocialPost
	for _, p := range collected {
		if *p.ViralScore >= tiktokMinScore {
			posts = append(posts, p)
		}
	}
	if len(posts) > c.maxResults {
		posts = posts[:c.maxResults]
	}

	c.logger.Debug().
		Int("candidates", len(collected)).
		Int("kept", len(posts)).
		Msg("Collected TikTok videos")

	return posts, nil
}

func (c *TikTokCollector) searchPage(ctx context.Context, cursor, searchID string) (tiktokSearchResponse, error) {
	params := url.Values{}
	params.Set("keyword", c.query)
	params.Set("cursor", cursor)
	params.Set("search_id", searchID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/search/general?"+params.Encode(), nil)
	if err != nil {
		return tiktokSearchResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-rapidapi-host", tiktokHost)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	return lib.DecodeJSONFromRequest[tiktokSearchResponse](c.httpClient, req)
}

func (c *TikTokCollector) toPost(item tiktokItem, now time.Time) (*postgres.SocialPost, bool) {
	if item.ID == "" || item.Author.UniqueID == "" || item.CreateTime == 0 {
		return nil, false
	}

	published := time.Unix(item.CreateTime, 0).UTC()
	if now.Sub(published) > tiktokMaxAge {
		return nil, false
	}

	title, _ := lib.LimitStringLength(item.Desc, tiktokTitleMaxLen)
	score := TikTokViralScore(
		item.Stats.PlayCount,
		item.AuthorStats.FollowerCount,
		item.Stats.DiggCount,
		item.Stats.CommentCount,
		item.Stats.ShareCount,
	)

	return &postgres.SocialPost{
		Platform:        postgres.PlatformTikTok,
		PostID:          item.ID,
		Title:           title,
		AuthorName:      item.Author.UniqueID,
		AuthorFollowers: item.AuthorStats.FollowerCount,
		ViewCount:       item.Stats.PlayCount,
		LikeCount:       item.Stats.DiggCount,
		CommentCount:    item.Stats.CommentCount,
		ShareCount:      item.Stats.ShareCount,
		ViralScore:      &score,
		PostURL:         fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", item.Author.UniqueID, item.ID),
		PublishedAt:     &published,
	}, true
}

// jsonToken renders a raw JSON scalar as a plain string. The gateway is
// inconsistent about whether cursors are numbers or strings.
func jsonToken(raw json.RawMessage) string {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "null" {
		return ""
	}
	return s
}
