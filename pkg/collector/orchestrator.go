package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/enrich"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// ErrTaskRunning rejects a collection start while another run is in flight.
// At most one task runs per process.
var ErrTaskRunning = errors.New("a collection task is already running")

// Orchestrator runs the collection pipeline: list every enabled source,
// fetch new articles, backfill missing content and dispatch enrichment.
type Orchestrator struct {
	logger   *zerolog.Logger
	cfg      *Config
	registry *Registry
	articles articleStore
	sources  sourceStore
	tasks    taskStore
	enricher enricher

	mu      sync.Mutex
	running bool
}

type articleStore interface {
	Insert(ctx context.Context, a *postgres.Article) (bool, error)
	URLStates(ctx context.Context, urls []string) (map[string]postgres.URLState, error)
	UpdateContent(ctx context.Context, id int64, content string) (bool, error)
}

type sourceStore interface {
	List(ctx context.Context, enabledOnly bool) ([]*postgres.Source, error)
	RecordRun(ctx context.Context, id int64, newArticles int, lastError string) error
}

type taskStore interface {
	Create(ctx context.Context, t *postgres.Task) error
	Finish(ctx context.Context, t *postgres.Task) error
	AddLog(ctx context.Context, l *postgres.TaskLog) error
}

type enricher interface {
	AnalyzeByIDs(ctx context.Context, ids []int64) (*enrich.Counts, error)
}

// NewOrchestrator wires the pipeline. enricher may be nil when no completion
// model is configured; collection then runs without analysis.
func NewOrchestrator(
	logger *zerolog.Logger,
	cfg *Config,
	registry *Registry,
	articles articleStore,
	sources sourceStore,
	tasks taskStore,
	enricher enricher,
) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		articles: articles,
		sources:  sources,
		tasks:    tasks,
		enricher: enricher,
	}
}

type StartOptions struct {
	AIEnabled bool
}

// Start begins a collection run in the background and returns the created
// task immediately. The run outlives the caller's context.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (*postgres.Task, error) {
	if !o.tryAcquire() {
		return nil, ErrTaskRunning
	}

	task, err := o.createTask(ctx, opts)
	if err != nil {
		o.release()
		return nil, err
	}

	snapshot := *task
	go func() {
		defer o.release()
		o.run(context.Background(), task, opts)
	}()

	return &snapshot, nil
}

// RunOnce performs a full collection run synchronously.
func (o *Orchestrator) RunOnce(ctx context.Context, opts StartOptions) (*postgres.Task, error) {
	if !o.tryAcquire() {
		return nil, ErrTaskRunning
	}
	defer o.release()

	task, err := o.createTask(ctx, opts)
	if err != nil {
		return nil, err
	}

	o.run(ctx, task, opts)
	return task, nil
}

func (o *Orchestrator) tryAcquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) createTask(ctx context.Context, opts StartOptions) (*postgres.Task, error) {
	task := &postgres.Task{
		ID:        uuid.NewString(),
		Status:    postgres.TaskStatusRunning,
		AIEnabled: opts.AIEnabled,
	}
	if err := o.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create collection task: %w", err)
	}
	return task, nil
}

type sourceResult struct {
	itemsFound  int
	newArticles int
	enrichIDs   []int64
	err         error
}

func (o *Orchestrator) run(ctx context.Context, task *postgres.Task, opts StartOptions) {
	start := time.Now()

	srcs, err := o.sources.List(ctx, true)
	if err != nil {
		o.finishTask(ctx, task, start, fmt.Errorf("list sources: %w", err))
		return
	}

	task.TotalSources = len(srcs)
	o.logger.Info().
		Str("task_id", task.ID).
		Int("sources", len(srcs)).
		Bool("ai_enabled", opts.AIEnabled).
		Msg("Collection run started")

	var mu sync.Mutex
	var candidates []int64

	pool := pond.NewPool(o.cfg.SourceConcurrency)
	for _, src := range srcs {
		pool.Submit(func() {
			res := o.collectSource(ctx, task, src)

			mu.Lock()
			defer mu.Unlock()
			if res.err != nil {
				task.FailedSources++
			} else {
				task.SuccessSources++
			}
			task.NewArticles += res.newArticles
			candidates = append(candidates, res.enrichIDs...)
		})
	}
	pool.StopAndWait()

	if opts.AIEnabled && o.enricher != nil && len(candidates) > 0 {
		counts, err := o.enricher.AnalyzeByIDs(ctx, candidates)
		if err != nil {
			o.logger.Error().Err(err).Str("task_id", task.ID).Msg("Enrichment after collection failed")
		} else {
			task.AnalyzedCount = counts.Analyzed
		}
	}

	o.finishTask(ctx, task, start, nil)
}

// collectSource runs one source end to end and records its outcome. Failures
// are contained here so one source never affects the others.
func (o *Orchestrator) collectSource(ctx context.Context, task *postgres.Task, src *postgres.Source) sourceResult {
	srcLogger := o.logger.With().
		Str("task_id", task.ID).
		Str("source", src.Name).
		Str("kind", src.Kind).
		Logger()

	res := o.collectSourceItems(ctx, &srcLogger, src)
	if res.err != nil {
		srcLogger.Error().Err(res.err).Msg("Source collection failed")
	} else {
		srcLogger.Info().
			Int("items", res.itemsFound).
			Int("new_articles", res.newArticles).
			Msg("Source collected")
	}

	o.recordSourceRun(ctx, &srcLogger, task, src, res)
	return res
}

func (o *Orchestrator) collectSourceItems(ctx context.Context, logger *zerolog.Logger, src *postgres.Source) sourceResult {
	provider, ok := o.registry.ForKind(src.Kind)
	if !ok {
		return sourceResult{err: fmt.Errorf("no provider for source kind %q", src.Kind)}
	}

	items, err := provider.List(ctx, src)
	if err != nil {
		return sourceResult{err: fmt.Errorf("list items: %w", err)}
	}

	// Feeds occasionally repeat entries; keep the first per URL.
	seen := make(map[string]bool, len(items))
	urls := make([]string, 0, len(items))
	deduped := make([]Item, 0, len(items))
	for _, item := range items {
		if item.URL == "" || seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		urls = append(urls, item.URL)
		deduped = append(deduped, item)
	}

	res := sourceResult{itemsFound: len(deduped)}
	if len(deduped) == 0 {
		return res
	}

	states, err := o.articles.URLStates(ctx, urls)
	if err != nil {
		res.err = fmt.Errorf("check url states: %w", err)
		return res
	}

	var mu sync.Mutex
	pool := pond.NewPool(o.cfg.ContentConcurrency)

	for _, item := range deduped {
		state, known := states[item.URL]

		switch {
		case !known:
			pool.Submit(func() {
				id, inserted := o.insertNewItem(ctx, logger, provider, src, item)
				if !inserted {
					return
				}
				mu.Lock()
				res.newArticles++
				res.enrichIDs = append(res.enrichIDs, id)
				mu.Unlock()
			})
		case !state.HasContent:
			pool.Submit(func() {
				o.backfillContent(ctx, logger, provider, item, state.ID)
			})
		case !state.IsProcessed:
			mu.Lock()
			res.enrichIDs = append(res.enrichIDs, state.ID)
			mu.Unlock()
		}
		// Articles that already have content and analysis are left untouched.
	}

	pool.StopAndWait()
	return res
}

func (o *Orchestrator) insertNewItem(ctx context.Context, logger *zerolog.Logger, provider Provider, src *postgres.Source, item Item) (int64, bool) {
	content := o.fetchContent(ctx, logger, provider, item)

	category := item.Category
	if category == "" {
		category = src.Category
	}

	article := &postgres.Article{
		URL:         item.URL,
		Title:       item.Title,
		Content:     content,
		SourceName:  src.Name,
		Category:    category,
		Author:      item.Author,
		PublishedAt: item.PublishedAt,
	}

	inserted, err := o.articles.Insert(ctx, article)
	if err != nil {
		logger.Error().Err(err).Str("url", item.URL).Msg("Insert article failed")
		return 0, false
	}
	if !inserted {
		// Lost a race with a concurrent insert of the same URL.
		return 0, false
	}
	return article.ID, true
}

// fetchContent resolves the fullest text available for an item. A fetch
// failure falls back to whatever the listing carried.
func (o *Orchestrator) fetchContent(ctx context.Context, logger *zerolog.Logger, provider Provider, item Item) string {
	fetched, err := provider.FetchContent(ctx, &item)
	if err != nil {
		logger.Debug().Err(err).Str("url", item.URL).Msg("Full content fetch failed, keeping listing content")
		return item.Content
	}
	if len(fetched) > len(item.Content) {
		return fetched
	}
	return item.Content
}

func (o *Orchestrator) backfillContent(ctx context.Context, logger *zerolog.Logger, provider Provider, item Item, articleID int64) {
	content := o.fetchContent(ctx, logger, provider, item)
	if content == "" {
		return
	}

	updated, err := o.articles.UpdateContent(ctx, articleID, content)
	if err != nil {
		logger.Error().Err(err).Int64("article_id", articleID).Msg("Backfill content failed")
		return
	}
	if updated {
		logger.Debug().Int64("article_id", articleID).Msg("Backfilled article content")
	}
}

func (o *Orchestrator) recordSourceRun(ctx context.Context, logger *zerolog.Logger, task *postgres.Task, src *postgres.Source, res sourceResult) {
	status := "success"
	message := ""
	if res.err != nil {
		status = "error"
		message = res.err.Error()
	}

	entry := &postgres.TaskLog{
		TaskID:      task.ID,
		SourceName:  src.Name,
		Status:      status,
		ItemsFound:  res.itemsFound,
		NewArticles: res.newArticles,
		Message:     message,
	}
	if err := o.tasks.AddLog(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("Record collection log failed")
	}

	if err := o.sources.RecordRun(ctx, src.ID, res.newArticles, message); err != nil {
		logger.Error().Err(err).Msg("Record source run failed")
	}
}

func (o *Orchestrator) finishTask(ctx context.Context, task *postgres.Task, start time.Time, runErr error) {
	now := time.Now()
	task.CompletedAt = &now
	task.DurationSeconds = now.Sub(start).Seconds()

	if runErr != nil {
		task.Status = postgres.TaskStatusError
		task.ErrorMessage = runErr.Error()
	} else {
		task.Status = postgres.TaskStatusCompleted
	}

	if err := o.tasks.Finish(ctx, task); err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("Finish collection task failed")
	}

	o.logger.Info().
		Str("task_id", task.ID).
		Str("status", task.Status).
		Int("new_articles", task.NewArticles).
		Int("analyzed", task.AnalyzedCount).
		Float64("duration_seconds", task.DurationSeconds).
		Msg("Collection run finished")
}
