package rss

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// listLimit caps how many entries a single feed contributes per run.
const listLimit = 20

type customTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	return t.base.RoundTrip(req)
}

// Provider reads RSS and Atom feeds. The source URL is the feed URL.
type Provider struct {
	logger  *zerolog.Logger
	headers map[string]string
}

func New(logger *zerolog.Logger) *Provider {
	return &Provider{logger: logger}
}

// NewWithHeaders builds a provider that sends extra request headers,
// for feeds behind tokens or aggressive bot filters.
func NewWithHeaders(logger *zerolog.Logger, headers map[string]string) *Provider {
	return &Provider{logger: logger, headers: headers}
}

func (p *Provider) Kind() string { return postgres.SourceKindRSS }

func (p *Provider) List(ctx context.Context, src *postgres.Source) ([]collector.Item, error) {
	parser := gofeed.NewParser()
	parser.UserAgent = lib.UserAgentString

	if p.headers != nil {
		parser.Client = &http.Client{
			Transport: &customTransport{
				headers: p.headers,
				base:    http.DefaultTransport,
			},
		}
	}

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("feed is nil")
	}

	items := make([]collector.Item, 0, min(len(feed.Items), listLimit))
	for _, entry := range feed.Items {
		if len(items) >= listLimit {
			break
		}

		link := resolveLink(src.URL, entry.Link)
		if link == "" {
			continue
		}

		title := html.UnescapeString(entry.Title)
		if title == "" {
			p.logger.Debug().Str("link", link).Msg("Skipping feed entry without title")
			continue
		}

		content := entry.Content
		if content == "" {
			content = entry.Description
		}

		published := entry.PublishedParsed
		if published == nil {
			published = entry.UpdatedParsed
		}

		items = append(items, collector.Item{
			URL:         link,
			Title:       title,
			Content:     content,
			Author:      firstAuthor(entry),
			Category:    firstCategory(entry),
			PublishedAt: published,
		})
	}

	return items, nil
}

func (p *Provider) FetchContent(ctx context.Context, item *collector.Item) (string, error) {
	return lib.FetchTextFromURL(ctx, p.logger, item.URL)
}

// resolveLink turns a relative entry link into an absolute one using the
// feed URL's scheme and host.
func resolveLink(feedURL, link string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}

	parsed, err := url.Parse(feedURL)
	if err != nil {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return parsed.Scheme + "://" + parsed.Host + link
}

func firstAuthor(entry *gofeed.Item) string {
	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			return author.Name
		}
	}
	return ""
}

func firstCategory(entry *gofeed.Item) string {
	for _, category := range entry.Categories {
		if category != "" {
			return category
		}
	}
	return ""
}
