package reddit

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const listLimit = 20

// Provider reads hot posts from a subreddit. The source URL holds the
// subreddit name, with or without an r/ prefix.
type Provider struct {
	logger *zerolog.Logger
	client *reddit.Client
}

// New builds a reddit provider. Without app credentials it falls back to
// the read-only client, which is enough for public subreddits.
func New(logger *zerolog.Logger, clientID, clientSecret string) (*Provider, error) {
	var client *reddit.Client
	var err error

	if clientID != "" && clientSecret != "" {
		client, err = reddit.NewClient(reddit.Credentials{
			ID:     clientID,
			Secret: clientSecret,
		})
	} else {
		client, err = reddit.NewReadonlyClient()
	}
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}

	return &Provider{logger: logger, client: client}, nil
}

func (p *Provider) Kind() string { return postgres.SourceKindReddit }

func (p *Provider) List(ctx context.Context, src *postgres.Source) ([]collector.Item, error) {
	subreddit := subredditName(src.URL)
	if subreddit == "" {
		return nil, fmt.Errorf("source %q has no subreddit", src.Name)
	}

	posts, _, err := p.client.Subreddit.HotPosts(ctx, subreddit, &reddit.ListOptions{
		Limit: listLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch hot posts: %w", err)
	}

	items := make([]collector.Item, 0, len(posts))
	for _, post := range posts {
		// Pinned posts are announcements, not news.
		if post.Stickied {
			continue
		}
		if post.NSFW {
			continue
		}

		item := collector.Item{
			URL:     "https://www.reddit.com" + post.Permalink,
			Title:   html.UnescapeString(post.Title),
			Content: post.Body,
			Author:  post.Author,
		}
		// Link posts point at the referenced page instead of the thread.
		if !post.IsSelfPost && post.URL != "" {
			item.URL = post.URL
		}
		if post.Created != nil {
			created := post.Created.Time
			item.PublishedAt = &created
		}

		items = append(items, item)
	}

	return items, nil
}

// FetchContent pulls the linked page text for link posts. Self posts
// already carry their full text in the listing.
func (p *Provider) FetchContent(ctx context.Context, item *collector.Item) (string, error) {
	if isRedditURL(item.URL) {
		return item.Content, nil
	}

	text, err := lib.FetchTextFromURL(ctx, p.logger, item.URL)
	if err != nil {
		// Images and other media have no text to extract.
		if errors.Is(err, lib.ErrUnsupportedContentType) {
			return item.Content, nil
		}
		return "", err
	}
	return text, nil
}

func subredditName(raw string) string {
	name := strings.TrimSpace(raw)

	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		parsed, err := url.Parse(name)
		if err != nil {
			return ""
		}
		name = parsed.Path
	}

	name = strings.Trim(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.Trim(name, "/")
}

func isRedditURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com")
}
