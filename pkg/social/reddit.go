package social

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
	"github.com/rs/zerolog"
	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// redditMaxAge drops posts older than a day; the viral tiers assume fresh
// vote counts.
const redditMaxAge = 24 * time.Hour

// RedditCollector scans AI subreddits for posts that blew up in the last
// day. Unlike the keyword platforms there is no search query; the subreddit
// list is the filter.
type RedditCollector struct {
	logger     *zerolog.Logger
	client     *reddit.Client
	subreddits []string
	minUpvotes int
	maxResults int
}

func NewRedditCollector(logger *zerolog.Logger, clientID, clientSecret string, subreddits []string, minUpvotes, maxResults int) (*RedditCollector, error) {
	var (
		client *reddit.Client
		err    error
	)
	if clientID != "" && clientSecret != "" {
		client, err = reddit.NewClient(reddit.Credentials{ID: clientID, Secret: clientSecret})
	} else {
		client, err = reddit.NewReadonlyClient()
	}
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	return &RedditCollector{
		logger:     logger,
		client:     client,
		subreddits: subreddits,
		minUpvotes: minUpvotes,
		maxResults: maxResults,
	}, nil
}

func (c *RedditCollector) Platform() string {
	return postgres.PlatformReddit
}

func (c *RedditCollector) Collect(ctx context.Context) ([]*postgres.SocialPost, error) {
	now := time.Now()
	var posts []*postgres.SocialPost

	for _, subreddit := range c.subreddits {
		batch, _, err := c.client.Subreddit.TopPosts(ctx, subreddit, &reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: c.maxResults},
			Time:        "day",
		})
		if err != nil {
			// One private or misspelled subreddit should not sink the rest.
			c.logger.Warn().Err(err).Str("subreddit", subreddit).Msg("Failed to fetch subreddit")
			continue
		}

		for _, post := range batch {
			if p, ok := c.toPost(post, now); ok {
				posts = append(posts, p)
			}
		}
	}

	if len(posts) > c.maxResults {
		posts = posts[:c.maxResults]
	}

	c.logger.Debug().
		Int("subreddits", len(c.subreddits)).
		Int("kept", len(posts)).
		Msg("Collected reddit posts")

	return posts, nil
}

func (c *RedditCollector) toPost(post *reddit.Post, now time.Time) (*postgres.SocialPost, bool) {
	if post.Created == nil || now.Sub(post.Created.Time) > redditMaxAge {
		return nil, false
	}
	ups := int64(post.Score)
	if ups <= int64(c.minUpvotes) {
		return nil, false
	}

	published := post.Created.Time.UTC()
	comments := int64(post.NumberOfComments)
	score := RedditViralScore(ups, comments, published, now)

	return &postgres.SocialPost{
		Platform:     postgres.PlatformReddit,
		PostID:       post.ID,
		Title:        html.UnescapeString(post.Title),
		AuthorName:   post.Author,
		LikeCount:    ups,
		CommentCount: comments,
		ViralScore:   &score,
		PostURL:      "https://www.reddit.com" + post.Permalink,
		PublishedAt:  &published,
	}, true
}
