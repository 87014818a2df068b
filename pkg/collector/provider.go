package collector

import (
	"context"
	"time"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// Item is one entry of a provider's listing. Content may be empty when the
// listing alone does not carry it; the orchestrator fetches it separately.
type Item struct {
	URL         string
	Title       string
	Content     string
	Author      string
	Category    string
	PublishedAt *time.Time
}

// Provider adapts one feed kind to the collection pipeline.
type Provider interface {
	// Kind reports which source rows this provider serves.
	Kind() string
	// List returns the source's current entries.
	List(ctx context.Context, src *postgres.Source) ([]Item, error)
	// FetchContent returns the full text for one item. Providers whose
	// listings already carry the full content return it unchanged.
	FetchContent(ctx context.Context, item *Item) (string, error)
}

// Registry resolves the provider for a source kind.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Kind()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) ForKind(kind string) (Provider, bool) {
	p, ok := r.providers[kind]
	return p, ok
}

func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	return kinds
}
