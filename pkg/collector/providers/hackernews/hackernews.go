package hackernews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alexferrari88/gohn/pkg/gohn"
	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const (
	listLimit = 20
	// The item endpoint serves one story per call, so story hydration
	// gets a wider pool than regular content fetches.
	fetchConcurrency = 20
)

// Provider reads Hacker News story feeds. The source URL selects the
// timeline: top, new, best, ask, show or job. Empty means top.
type Provider struct {
	logger *zerolog.Logger
	client *gohn.Client
}

func New(logger *zerolog.Logger) (*Provider, error) {
	client, err := gohn.NewClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create hacker news client: %w", err)
	}
	return &Provider{logger: logger, client: client}, nil
}

func (p *Provider) Kind() string { return postgres.SourceKindHackerNews }

func (p *Provider) List(ctx context.Context, src *postgres.Source) ([]collector.Item, error) {
	storyIDs, err := p.fetchStoryIDs(ctx, feedName(src.URL))
	if err != nil {
		return nil, fmt.Errorf("fetch story ids: %w", err)
	}

	if len(storyIDs) > listLimit {
		storyIDs = storyIDs[:listLimit]
	}

	var mu sync.Mutex
	var items []collector.Item

	pool := pond.NewPool(fetchConcurrency)
	for _, id := range storyIDs {
		if id == nil {
			continue
		}

		pool.Submit(func() {
			story, err := p.client.Items.Get(ctx, *id)
			if err != nil {
				p.logger.Warn().Err(err).Int("story_id", *id).Msg("Fetch hacker news story failed")
				return
			}
			if story == nil || story.Title == nil {
				return
			}
			if story.Deleted != nil && *story.Deleted {
				return
			}
			if story.Dead != nil && *story.Dead {
				return
			}

			item := collector.Item{
				URL:   fmt.Sprintf("https://news.ycombinator.com/item?id=%d", *id),
				Title: *story.Title,
			}
			if story.URL != nil && *story.URL != "" {
				item.URL = *story.URL
			}
			if story.Text != nil {
				item.Content = *story.Text
			}
			if story.By != nil {
				item.Author = *story.By
			}
			if story.Time != nil {
				published := time.Unix(int64(*story.Time), 0).UTC()
				item.PublishedAt = &published
			}

			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	return items, nil
}

// FetchContent pulls the text of the linked article. Ask HN and other
// self posts keep their listing text.
func (p *Provider) FetchContent(ctx context.Context, item *collector.Item) (string, error) {
	if strings.Contains(item.URL, "news.ycombinator.com") {
		return item.Content, nil
	}

	text, err := lib.FetchTextFromURL(ctx, p.logger, item.URL)
	if err != nil {
		if errors.Is(err, lib.ErrUnsupportedContentType) {
			return item.Content, nil
		}
		return "", err
	}
	return text, nil
}

func (p *Provider) fetchStoryIDs(ctx context.Context, feed string) ([]*int, error) {
	switch feed {
	case "top":
		return p.client.Stories.GetTopIDs(ctx)
	case "new":
		return p.client.Stories.GetNewIDs(ctx)
	case "best":
		return p.client.Stories.GetBestIDs(ctx)
	case "ask":
		return p.client.Stories.GetAskIDs(ctx)
	case "show":
		return p.client.Stories.GetShowIDs(ctx)
	case "job":
		return p.client.Stories.GetJobIDs(ctx)
	default:
		return nil, fmt.Errorf("invalid feed name: %s", feed)
	}
}

func feedName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "top"
	}
	return name
}
