package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// Engine answers semantic queries over indexed articles. It prefers the
// native KNN index and transparently falls back to a brute-force scan of the
// embedding store whenever the index cannot serve a query.
type Engine struct {
	logger     *zerolog.Logger
	cfg        *Config
	embedder   embedder
	index      VectorIndex
	embeddings embeddingStore
	articles   articleStore
	fastPath   bool
}

// MetricCosine identifies backends whose Nearest distances are cosine,
// bounded to [0, 2]. Any other Metric value gets magnitude-based
// normalization.
const MetricCosine = "cosine"

// VectorIndex is the fast-path KNN backend. It mirrors the embedding store
// and may be absent, empty or incompatible; it is never the source of truth.
type VectorIndex interface {
	Upsert(ctx context.Context, articleID int64, vec []float32) error
	Delete(ctx context.Context, articleID int64) error
	Nearest(ctx context.Context, query []float32, k int, filter *postgres.SearchFilter) ([]postgres.VectorMatch, error)
	Probe(ctx context.Context) error
	Metric() string
}

type embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type embeddingStore interface {
	Upsert(ctx context.Context, rec *postgres.EmbeddingRecord) error
	Delete(ctx context.Context, articleID int64) error
	Sample(ctx context.Context) (*postgres.EmbeddingRecord, error)
	ListWithArticles(ctx context.Context, filter *postgres.SearchFilter) ([]*postgres.EmbeddingWithArticle, error)
	Count(ctx context.Context) (int64, error)
	CountBySource(ctx context.Context) (map[string]int64, error)
}

type articleStore interface {
	GetByID(ctx context.Context, id int64) (*postgres.Article, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*postgres.Article, error)
	ListIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context, filter *postgres.ArticleFilter) (int64, error)
}

type Result struct {
	Article    *postgres.Article
	Similarity float64
}

func NewEngine(
	logger *zerolog.Logger,
	cfg *Config,
	embedder embedder,
	index VectorIndex,
	embeddings embeddingStore,
	articles articleStore,
) *Engine {
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		embedder:   embedder,
		index:      index,
		embeddings: embeddings,
		articles:   articles,
	}
}

// Init probes the native index once. Any failure permanently selects the
// brute-force path for this engine's lifetime.
func (e *Engine) Init(ctx context.Context) {
	if e.index == nil {
		e.logger.Info().Msg("No native vector index configured, using brute-force search")
		return
	}
	if err := e.index.Probe(ctx); err != nil {
		e.logger.Info().Err(err).Msg("Native vector index unavailable, using brute-force search")
		return
	}
	e.fastPath = true
	e.logger.Info().Msg("Native vector index available, using KNN fast path")
}

// FastPath reports whether the construction-time probe selected the native
// index.
func (e *Engine) FastPath() bool {
	return e.fastPath
}

// Search returns the topK most similar articles for a query. An empty or
// whitespace-only query yields an empty result without error.
func (e *Engine) Search(ctx context.Context, query string, topK int, filter *postgres.SearchFilter) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		e.logger.Warn().Msg("Empty search query")
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	vecs, err := e.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	queryVec := vecs[0]

	if e.fastPath {
		if results, ok := e.searchNative(ctx, queryVec, topK, filter); ok {
			return results, nil
		}
	}

	return e.searchBrute(ctx, queryVec, topK, filter)
}

// searchNative serves a query from the KNN index. It reports ok=false when
// the index cannot be trusted for this call, leaving the decision to the
// brute-force path.
func (e *Engine) searchNative(ctx context.Context, queryVec []float32, topK int, filter *postgres.SearchFilter) ([]Result, bool) {
	sample, err := e.embeddings.Sample(ctx)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			e.logger.Warn().Err(err).Msg("Sample stored embedding failed")
		}
		return nil, false
	}
	if sample.Dim != len(queryVec) {
		e.logger.Warn().
			Int("query_dim", len(queryVec)).
			Int("stored_dim", sample.Dim).
			Msg("Vector dimension mismatch, falling back to brute-force search")
		return nil, false
	}

	k := topK * 3
	if k < e.cfg.MinCandidates {
		k = e.cfg.MinCandidates
	}

	matches, err := e.index.Nearest(ctx, queryVec, k, filter)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Native KNN query failed, falling back to brute-force search")
		return nil, false
	}
	if len(matches) == 0 {
		// The mirror may be empty or stale while the store still has rows.
		return nil, false
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ArticleID
	}
	loaded, err := e.articles.GetByIDs(ctx, ids)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Load matched articles failed, falling back to brute-force search")
		return nil, false
	}
	byID := make(map[int64]*postgres.Article, len(loaded))
	for _, a := range loaded {
		byID[a.ID] = a
	}

	metric := e.index.Metric()
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		a, ok := byID[m.ArticleID]
		if !ok {
			continue
		}
		sim := distanceToSimilarity(metric, m.Distance)
		if a.IsFavorited {
			sim = lib.Clamp(sim+e.cfg.FavoriteBoost, 0, 1)
		}
		results = append(results, Result{Article: a, Similarity: sim})
	}

	return rankResults(results, topK), true
}

func (e *Engine) searchBrute(ctx context.Context, queryVec []float32, topK int, filter *postgres.SearchFilter) ([]Result, error) {
	rows, err := e.embeddings.ListWithArticles(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	if len(rows) == 0 {
		e.logger.Warn().Msg("No indexed articles match the query filters")
		return nil, nil
	}

	queryDim := len(queryVec)
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		stored := row.Embedding.Embedding
		if len(stored) == 0 {
			continue
		}
		if len(stored) != queryDim {
			e.logger.Debug().
				Int64("article_id", row.Embedding.ArticleID).
				Int("stored_dim", len(stored)).
				Int("query_dim", queryDim).
				Msg("Skipping embedding with mismatched dimension")
			continue
		}

		cos := lib.CosineSimilarity(queryVec, stored)
		sim := lib.Clamp((cos+1)/2, 0, 1)
		if row.Article.IsFavorited {
			sim = lib.Clamp(sim+e.cfg.FavoriteBoost, 0, 1)
		}
		results = append(results, Result{Article: &row.Article, Similarity: sim})
	}

	return rankResults(results, topK), nil
}

// rankResults deduplicates by article id keeping the highest similarity, then
// orders by similarity descending. Ties preserve input order.
func rankResults(results []Result, topK int) []Result {
	byID := make(map[int64]int, len(results))
	deduped := make([]Result, 0, len(results))
	for _, r := range results {
		if i, ok := byID[r.Article.ID]; ok {
			if r.Similarity > deduped[i].Similarity {
				deduped[i] = r
			}
			continue
		}
		byID[r.Article.ID] = len(deduped)
		deduped = append(deduped, r)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Similarity > deduped[j].Similarity
	})

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped
}

// distanceToSimilarity maps an index distance to [0, 1]. Cosine distances
// invert directly. For backends that do not declare their metric the cosine
// range [0, 2] is inferred from the value; anything larger is treated as an
// unbounded metric and squashed.
func distanceToSimilarity(metric string, d float64) float64 {
	if metric == MetricCosine || d <= 2.0 {
		return lib.Clamp(1-d, 0, 1)
	}
	return lib.Clamp(1/(1+d), 0, 1)
}
