package mastodon

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const (
	listLimit     = 20
	defaultServer = "https://mastodon.social"
	titleMaxLen   = 80
)

// Provider reads a hashtag timeline from a Mastodon instance. The source
// URL holds the hashtag, with or without a leading #.
type Provider struct {
	logger *zerolog.Logger
	client *mastodon.Client
}

func New(logger *zerolog.Logger, server string) *Provider {
	if server == "" {
		server = defaultServer
	}

	client := mastodon.NewClient(&mastodon.Config{
		Server:       server,
		ClientID:     "aifeed",
		ClientSecret: "aifeed",
	})

	return &Provider{logger: logger, client: client}
}

func (p *Provider) Kind() string { return postgres.SourceKindMastodon }

func (p *Provider) List(ctx context.Context, src *postgres.Source) ([]collector.Item, error) {
	tag := strings.TrimPrefix(strings.TrimSpace(src.URL), "#")
	if tag == "" {
		return nil, fmt.Errorf("source %q has no hashtag", src.Name)
	}

	statuses, err := p.client.GetTimelineHashtag(ctx, tag, false, &mastodon.Pagination{
		Limit: int64(listLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("get hashtag timeline: %w", err)
	}

	items := make([]collector.Item, 0, len(statuses))
	for _, status := range statuses {
		if status.Sensitive {
			continue
		}

		text, statusURL := statusText(status)
		if text == "" || statusURL == "" {
			continue
		}

		createdAt := status.CreatedAt
		items = append(items, collector.Item{
			URL:         statusURL,
			Title:       statusTitle(status, text),
			Content:     text,
			Author:      status.Account.Acct,
			PublishedAt: &createdAt,
		})
	}

	return items, nil
}

// FetchContent returns the status text from the listing. Statuses are
// complete documents in themselves.
func (p *Provider) FetchContent(ctx context.Context, item *collector.Item) (string, error) {
	return item.Content, nil
}

func statusText(status *mastodon.Status) (text, url string) {
	if status.Content != "" {
		return extractTextFromHTML(status.Content), status.URL
	}
	if status.Reblog != nil && status.Reblog.Content != "" {
		body := extractTextFromHTML(status.Reblog.Content)
		return "Reblogged " + status.Reblog.Account.Acct + "'s post: " + body, status.Reblog.URL
	}
	return "", ""
}

func statusTitle(status *mastodon.Status, text string) string {
	if status.Card != nil && status.Card.Title != "" {
		return status.Card.Title
	}
	return oneLineTitle(text, titleMaxLen)
}

func extractTextFromHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return strings.TrimSpace(b.String())
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func oneLineTitle(text string, maxLen int) string {
	t := whitespacePattern.ReplaceAllString(text, " ")
	t = strings.TrimSpace(t)
	if utf8.RuneCountInString(t) > maxLen {
		runes := []rune(t)
		return string(runes[:maxLen-1]) + "…"
	}
	return t
}
