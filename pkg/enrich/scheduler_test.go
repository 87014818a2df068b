package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	failIDs map[int64]bool
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, article *postgres.Article) (*postgres.Enrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failIDs[article.ID] {
		return nil, errors.New("analysis failed")
	}
	return &postgres.Enrichment{
		Summary:    "summary",
		Importance: "medium",
	}, nil
}

type fakeArticles struct {
	mu          sync.Mutex
	articles    map[int64]*postgres.Article
	unprocessed []*postgres.Article
	total       int64
	lastSince   time.Time
	lastLimit   int
	marked      []int64
}

func (f *fakeArticles) GetByID(ctx context.Context, id int64) (*postgres.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeArticles) MarkProcessed(ctx context.Context, id int64, e *postgres.Enrichment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return false, postgres.ErrNotFound
	}
	if a.IsProcessed {
		return false, nil
	}
	a.IsProcessed = true
	a.Summary = e.Summary
	a.Importance = e.Importance
	f.marked = append(f.marked, id)
	return true, nil
}

func (f *fakeArticles) ListUnprocessedSince(ctx context.Context, since time.Time, limit int) ([]*postgres.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = since
	f.lastLimit = limit
	if len(f.unprocessed) > limit {
		return f.unprocessed[:limit], nil
	}
	return f.unprocessed, nil
}

func (f *fakeArticles) CountUnprocessed(ctx context.Context) (int64, error) {
	return f.total, nil
}

type fakeIndexer struct {
	mu    sync.Mutex
	ids   []int64
	err   error
	calls int
}

func (f *fakeIndexer) IndexArticle(ctx context.Context, a *postgres.Article) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	f.ids = append(f.ids, a.ID)
	return true, nil
}

func newTestScheduler(analyzer *fakeAnalyzer, articles *fakeArticles, indexer *fakeIndexer) *Scheduler {
	logger := zerolog.Nop()
	cfg := &Config{Concurrency: 2, MaxAgeDays: 3, RecentLimit: 50}
	if indexer == nil {
		return NewScheduler(&logger, cfg, analyzer, articles, nil)
	}
	return NewScheduler(&logger, cfg, analyzer, articles, indexer)
}

func TestAnalyzeByIDsEmpty(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	scheduler := newTestScheduler(analyzer, &fakeArticles{}, nil)

	counts, err := scheduler.AnalyzeByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Analyzed != 0 || counts.Failed != 0 || counts.Skipped != 0 {
		t.Errorf("counts = %+v, want all zero", counts)
	}
	if analyzer.calls != 0 {
		t.Errorf("expected no analysis calls, got %d", analyzer.calls)
	}
}

func TestAnalyzeByIDsCounts(t *testing.T) {
	articles := &fakeArticles{articles: map[int64]*postgres.Article{
		1: {ID: 1, Title: "fresh"},
		2: {ID: 2, Title: "already done", IsProcessed: true},
		3: {ID: 3, Title: "doomed"},
		// 4 is missing entirely
	}}
	analyzer := &fakeAnalyzer{failIDs: map[int64]bool{3: true}}
	indexer := &fakeIndexer{}
	scheduler := newTestScheduler(analyzer, articles, indexer)

	counts, err := scheduler.AnalyzeByIDs(context.Background(), []int64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counts.Analyzed != 1 {
		t.Errorf("analyzed = %d, want 1", counts.Analyzed)
	}
	if counts.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", counts.Skipped)
	}
	if counts.Failed != 2 {
		t.Errorf("failed = %d, want 2", counts.Failed)
	}

	if len(articles.marked) != 1 || articles.marked[0] != 1 {
		t.Errorf("marked = %v, want only article 1", articles.marked)
	}
	if len(indexer.ids) != 1 || indexer.ids[0] != 1 {
		t.Errorf("indexed = %v, want only article 1", indexer.ids)
	}
	// Processed and missing articles never reach the model.
	if analyzer.calls != 2 {
		t.Errorf("analysis calls = %d, want 2", analyzer.calls)
	}
}

func TestAnalyzeByIDsIndexFailureTolerated(t *testing.T) {
	articles := &fakeArticles{articles: map[int64]*postgres.Article{
		1: {ID: 1, Title: "fresh"},
	}}
	indexer := &fakeIndexer{err: errors.New("index down")}
	scheduler := newTestScheduler(&fakeAnalyzer{}, articles, indexer)

	counts, err := scheduler.AnalyzeByIDs(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Analyzed != 1 {
		t.Errorf("analyzed = %d, want 1 despite index failure", counts.Analyzed)
	}
}

func TestAnalyzeByIDsWithoutIndexer(t *testing.T) {
	articles := &fakeArticles{articles: map[int64]*postgres.Article{
		1: {ID: 1, Title: "fresh"},
	}}
	scheduler := newTestScheduler(&fakeAnalyzer{}, articles, nil)

	counts, err := scheduler.AnalyzeByIDs(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Analyzed != 1 {
		t.Errorf("analyzed = %d, want 1", counts.Analyzed)
	}
}

func TestAnalyzeRecent(t *testing.T) {
	articles := &fakeArticles{
		articles: map[int64]*postgres.Article{
			1: {ID: 1, Title: "a"},
			2: {ID: 2, Title: "b"},
			3: {ID: 3, Title: "c"},
		},
		unprocessed: []*postgres.Article{{ID: 1}, {ID: 2}, {ID: 3}},
		total:       10,
	}
	scheduler := newTestScheduler(&fakeAnalyzer{}, articles, nil)

	counts, err := scheduler.AnalyzeRecent(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counts.Analyzed != 3 {
		t.Errorf("analyzed = %d, want 3", counts.Analyzed)
	}
	// 10 unprocessed total, 3 in the window: the rest count as skipped.
	if counts.Skipped != 7 {
		t.Errorf("skipped = %d, want 7", counts.Skipped)
	}

	wantSince := time.Now().AddDate(0, 0, -3)
	if diff := articles.lastSince.Sub(wantSince); diff < -time.Minute || diff > time.Minute {
		t.Errorf("since = %v, want about 3 days ago", articles.lastSince)
	}
	if articles.lastLimit != 50 {
		t.Errorf("limit = %d, want config default 50", articles.lastLimit)
	}
}
