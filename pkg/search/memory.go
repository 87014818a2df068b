package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// ErrFilterUnsupported is returned by index backends that hold no article
// metadata. Callers treat it like any other index failure and fall back.
var ErrFilterUnsupported = errors.New("index backend does not support filters")

// MemoryIndex is a brute-force in-memory VectorIndex. It is the reference
// implementation of the index contract.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors map[int64][]float32
}

// NewMemoryIndex creates an index. A dim of 0 accepts the dimension of the
// first upserted vector.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{
		dim:     dim,
		vectors: make(map[int64][]float32),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, articleID int64, vec []float32) error {
	if len(vec) == 0 {
		return errors.New("empty vector")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(vec)
	}
	if len(vec) != m.dim {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vec), m.dim)
	}

	m.vectors[articleID] = slices.Clone(vec)
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, articleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, articleID)
	return nil
}

func (m *MemoryIndex) Probe(ctx context.Context) error {
	return nil
}

func (m *MemoryIndex) Metric() string {
	return MetricCosine
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Nearest scans all vectors with cosine distance. Article filters cannot be
// resolved here; a non-empty filter returns ErrFilterUnsupported so the
// caller falls back to the store.
func (m *MemoryIndex) Nearest(ctx context.Context, query []float32, k int, filter *postgres.SearchFilter) ([]postgres.VectorMatch, error) {
	if !filter.Empty() {
		return nil, ErrFilterUnsupported
	}
	if k <= 0 {
		k = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]postgres.VectorMatch, 0, len(m.vectors))
	for id, vec := range m.vectors {
		if len(vec) != len(query) {
			continue
		}
		matches = append(matches, postgres.VectorMatch{
			ArticleID: id,
			Distance:  1 - lib.CosineSimilarity(query, vec),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ArticleID < matches[j].ArticleID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
