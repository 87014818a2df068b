package social

import (
	"context"
	"fmt"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PlatformCollector fetches trending posts from one social platform.
type PlatformCollector interface {
	Platform() string
	Collect(ctx context.Context) ([]*postgres.SocialPost, error)
}

type postStore interface {
	UpsertPost(ctx context.Context, p *postgres.SocialPost) error
}

// Collector fans collection out across the configured platforms and saves
// whatever comes back. Platforms fail independently; a quota error on one
// must not block the others.
type Collector struct {
	logger     *zerolog.Logger
	store      postStore
	collectors []PlatformCollector
}

func NewCollector(logger *zerolog.Logger, store postStore, collectors ...PlatformCollector) *Collector {
	return &Collector{
		logger:     logger,
		store:      store,
		collectors: collectors,
	}
}

// Platforms returns the platform names collection is wired for.
func (c *Collector) Platforms() []string {
	names := make([]string, 0, len(c.collectors))
	for _, pc := range c.collectors {
		names = append(names, pc.Platform())
	}
	return names
}

// Result carries the saved posts and per-platform counts of one run. Saved
// posts come back with their database identity and any previously stored
// translation, so a report generated from them reuses earlier LLM work.
type Result struct {
	Posts  []*postgres.SocialPost
	Counts map[string]int
	Total  int
}

func (c *Collector) CollectAll(ctx context.Context) (*Result, error) {
	saved := make([][]*postgres.SocialPost, len(c.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, pc := range c.collectors {
		g.Go(func() error {
			posts, err := pc.Collect(gctx)
			if err != nil {
				c.logger.Error().
					Err(err).
					Str("platform", pc.Platform()).
					Msg("Platform collection failed")
				return nil
			}

			for _, post := range posts {
				if err := c.store.UpsertPost(gctx, post); err != nil {
					c.logger.Warn().
						Err(err).
						Str("platform", post.Platform).
						Str("post_id", post.PostID).
						Msg("Failed to save post")
					continue
				}
				saved[i] = append(saved[i], post)
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wait collect: %w", err)
	}

	result := &Result{Counts: make(map[string]int, len(c.collectors))}
	for i, pc := range c.collectors {
		result.Posts = append(result.Posts, saved[i]...)
		result.Counts[pc.Platform()] = len(saved[i])
		result.Total += len(saved[i])
	}

	c.logger.Info().
		Int("total", result.Total).
		Int("platforms", len(c.collectors)).
		Msg("Social collection finished")

	return result, nil
}
