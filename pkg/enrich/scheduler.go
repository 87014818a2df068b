package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// Counts reports the outcome of an analysis batch.
type Counts struct {
	Analyzed int
	Failed   int
	Skipped  int
}

// Scheduler dispatches article analysis over a bounded worker pool. Each
// article is an independent unit of work; one failure never blocks others.
type Scheduler struct {
	logger   *zerolog.Logger
	cfg      *Config
	analyzer analyzer
	articles articleStore
	indexer  indexer
}

type analyzer interface {
	Analyze(ctx context.Context, article *postgres.Article) (*postgres.Enrichment, error)
}

type articleStore interface {
	GetByID(ctx context.Context, id int64) (*postgres.Article, error)
	MarkProcessed(ctx context.Context, id int64, e *postgres.Enrichment) (bool, error)
	ListUnprocessedSince(ctx context.Context, since time.Time, limit int) ([]*postgres.Article, error)
	CountUnprocessed(ctx context.Context) (int64, error)
}

type indexer interface {
	IndexArticle(ctx context.Context, a *postgres.Article) (bool, error)
}

// NewScheduler wires analysis dispatch. indexer may be nil; enriched
// articles are then picked up by the next index rebuild instead.
func NewScheduler(
	logger *zerolog.Logger,
	cfg *Config,
	analyzer analyzer,
	articles articleStore,
	indexer indexer,
) *Scheduler {
	return &Scheduler{
		logger:   logger,
		cfg:      cfg,
		analyzer: analyzer,
		articles: articles,
		indexer:  indexer,
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeAnalyzed
	outcomeSkipped
)

// AnalyzeByIDs analyzes the given articles in parallel. Articles that were
// processed since the ids were gathered are skipped, not re-analyzed.
func (s *Scheduler) AnalyzeByIDs(ctx context.Context, ids []int64) (*Counts, error) {
	counts := &Counts{}
	if len(ids) == 0 {
		return counts, nil
	}

	var mu sync.Mutex
	pool := pond.NewPool(s.cfg.Concurrency)

	for _, id := range ids {
		pool.Submit(func() {
			result := s.analyzeOne(ctx, id)

			mu.Lock()
			switch result {
			case outcomeAnalyzed:
				counts.Analyzed++
			case outcomeSkipped:
				counts.Skipped++
			default:
				counts.Failed++
			}
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	s.logger.Info().
		Int("analyzed", counts.Analyzed).
		Int("failed", counts.Failed).
		Int("skipped", counts.Skipped).
		Msg("Article analysis batch finished")
	return counts, nil
}

func (s *Scheduler) analyzeOne(ctx context.Context, id int64) outcome {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", id).Msg("Load article for analysis failed")
		return outcomeFailed
	}
	if article.IsProcessed {
		return outcomeSkipped
	}

	enrichment, err := s.analyzer.Analyze(ctx, article)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", id).Msg("Analyze article failed")
		return outcomeFailed
	}

	updated, err := s.articles.MarkProcessed(ctx, id, enrichment)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", id).Msg("Persist analysis failed")
		return outcomeFailed
	}
	if !updated {
		// Another worker processed it between the fetch and the write.
		return outcomeSkipped
	}

	if s.indexer != nil {
		refreshed, err := s.articles.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int64("article_id", id).Msg("Reload enriched article failed")
			return outcomeAnalyzed
		}
		if _, err := s.indexer.IndexArticle(ctx, refreshed); err != nil {
			s.logger.Warn().Err(err).Int64("article_id", id).Msg("Index enriched article failed")
		}
	}

	return outcomeAnalyzed
}

// AnalyzeRecent analyzes unprocessed articles published within a trailing
// window, newest first. Unprocessed articles outside the window or beyond
// the batch cap are counted as skipped.
func (s *Scheduler) AnalyzeRecent(ctx context.Context, maxAgeDays, limit int) (*Counts, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = s.cfg.MaxAgeDays
	}
	if limit <= 0 {
		limit = s.cfg.RecentLimit
	}

	totalUnprocessed, err := s.articles.CountUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unprocessed articles: %w", err)
	}

	since := time.Now().AddDate(0, 0, -maxAgeDays)
	articles, err := s.articles.ListUnprocessedSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed articles: %w", err)
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	counts, err := s.AnalyzeByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	if outside := int(totalUnprocessed) - len(articles); outside > 0 {
		counts.Skipped += outside
	}
	return counts, nil
}
