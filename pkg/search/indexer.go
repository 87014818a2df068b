package search

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// reindexConcurrency bounds in-flight embedding requests during a full
// rebuild. The rate limiter below the embedder absorbs provider pushback.
const reindexConcurrency = 4

// Indexer maintains embedding records and the native index mirror.
type Indexer struct {
	logger     *zerolog.Logger
	embedder   embedder
	embeddings embeddingStore
	index      VectorIndex
	articles   articleStore
	engine     *Engine
	model      string
}

func NewIndexer(
	logger *zerolog.Logger,
	embedder embedder,
	embeddings embeddingStore,
	index VectorIndex,
	articles articleStore,
	engine *Engine,
	model string,
) *Indexer {
	return &Indexer{
		logger:     logger,
		embedder:   embedder,
		embeddings: embeddings,
		index:      index,
		articles:   articles,
		engine:     engine,
		model:      model,
	}
}

// IndexArticle embeds the article's canonical text and upserts the embedding
// record. Articles with no indexable text are skipped and reported as false.
// When the fast path is active the vector is also mirrored into the native
// index; mirror failures are logged and never fail the indexing.
func (ix *Indexer) IndexArticle(ctx context.Context, a *postgres.Article) (bool, error) {
	text := canonicalText(a)
	if text == "" {
		ix.logger.Warn().Int64("article_id", a.ID).Msg("Article has no indexable content")
		return false, nil
	}

	vecs, err := ix.embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return false, fmt.Errorf("embed article %d: %w", a.ID, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return false, fmt.Errorf("empty embedding for article %d", a.ID)
	}
	vec := vecs[0]

	err = ix.embeddings.Upsert(ctx, &postgres.EmbeddingRecord{
		ArticleID: a.ID,
		Embedding: vec,
		Dim:       len(vec),
		Content:   text,
		Model:     ix.model,
	})
	if err != nil {
		return false, fmt.Errorf("store embedding for article %d: %w", a.ID, err)
	}

	if ix.engine.FastPath() {
		if err := ix.index.Upsert(ctx, a.ID, vec); err != nil {
			ix.logger.Warn().
				Err(err).
				Int64("article_id", a.ID).
				Msg("Mirror vector to native index failed")
		}
	}

	return true, nil
}

// RemoveArticle deletes the embedding record and the native index entry.
// A failed mirror deletion is logged, not propagated.
func (ix *Indexer) RemoveArticle(ctx context.Context, articleID int64) error {
	if err := ix.embeddings.Delete(ctx, articleID); err != nil {
		return fmt.Errorf("delete embedding for article %d: %w", articleID, err)
	}

	if err := ix.index.Delete(ctx, articleID); err != nil {
		ix.logger.Warn().
			Err(err).
			Int64("article_id", articleID).
			Msg("Delete vector from native index failed")
	}
	return nil
}

type ReindexStats struct {
	Total   int
	Success int
	Failed  int
}

// ReindexAll rebuilds embeddings for every stored article, a bounded number
// in flight at a time. One article's failure never aborts the batch.
func (ix *Indexer) ReindexAll(ctx context.Context) (*ReindexStats, error) {
	ids, err := ix.articles.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list article ids: %w", err)
	}

	stats := &ReindexStats{Total: len(ids)}
	ix.logger.Info().Int("total", stats.Total).Msg("Rebuilding article index")

	indexed := make([]bool, len(ids))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			ok, err := ix.reindexOne(gctx, id)
			if err != nil {
				ix.logger.Error().Err(err).Int64("article_id", id).Msg("Reindex article failed")
			}
			indexed[i] = ok

			if n := done.Add(1); n%10 == 0 {
				ix.logger.Info().
					Int64("done", n).
					Int("total", stats.Total).
					Msg("Reindex progress")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wait reindex: %w", err)
	}

	for _, ok := range indexed {
		if ok {
			stats.Success++
		} else {
			stats.Failed++
		}
	}

	ix.logger.Info().
		Int("total", stats.Total).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Msg("Reindex complete")
	return stats, nil
}

// reindexOne reloads a single article and rebuilds its embedding.
func (ix *Indexer) reindexOne(ctx context.Context, id int64) (bool, error) {
	article, err := ix.articles.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load article %d: %w", id, err)
	}
	return ix.IndexArticle(ctx, article)
}

type IndexStats struct {
	TotalArticles     int64
	IndexedArticles   int64
	UnindexedArticles int64
	Coverage          float64
	BySource          map[string]int64
}

func (ix *Indexer) Stats(ctx context.Context) (*IndexStats, error) {
	total, err := ix.articles.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	indexed, err := ix.embeddings.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	bySource, err := ix.embeddings.CountBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings by source: %w", err)
	}

	stats := &IndexStats{
		TotalArticles:     total,
		IndexedArticles:   indexed,
		UnindexedArticles: total - indexed,
		BySource:          bySource,
	}
	if total > 0 {
		stats.Coverage = float64(indexed) / float64(total)
	}
	return stats, nil
}

// canonicalText assembles the text that represents an article in the index:
// title, translated title, summary, a capped content excerpt, tags and source
// label, in that order. The excerpt is shorter when a summary exists since
// content is then supplementary.
func canonicalText(a *postgres.Article) string {
	var parts []string

	if a.Title != "" {
		parts = append(parts, "Title: "+a.Title)
	}
	if a.TitleZh != "" {
		parts = append(parts, "Translated title: "+a.TitleZh)
	}
	if a.Summary != "" {
		parts = append(parts, "Summary: "+a.Summary)
	}
	if a.Content != "" {
		maxLen := 3000
		if a.Summary != "" {
			maxLen = 2000
		}
		excerpt := a.Content
		if runes := []rune(excerpt); len(runes) > maxLen {
			excerpt = string(runes[:maxLen])
		}
		parts = append(parts, "Content: "+excerpt)
	}
	if len(a.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(a.Tags, ", "))
	}
	if a.SourceName != "" {
		parts = append(parts, "Source: "+a.SourceName)
	}

	combined := strings.Join(parts, "\n\n")
	if strings.TrimSpace(combined) == "" {
		return ""
	}
	return combined
}
