package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/api"
	"github.com/aifeedco/aifeed/pkg/api/auth"
	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/collector/providers/github"
	"github.com/aifeedco/aifeed/pkg/collector/providers/hackernews"
	"github.com/aifeedco/aifeed/pkg/collector/providers/mastodon"
	"github.com/aifeedco/aifeed/pkg/collector/providers/reddit"
	"github.com/aifeedco/aifeed/pkg/collector/providers/rss"
	"github.com/aifeedco/aifeed/pkg/config"
	"github.com/aifeedco/aifeed/pkg/digest"
	"github.com/aifeedco/aifeed/pkg/enrich"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/lib/log"
	"github.com/aifeedco/aifeed/pkg/llms"
	"github.com/aifeedco/aifeed/pkg/qa"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/social"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const (
	modelCacheTTL   = 2 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := log.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initApp(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer app.db.Close()

	for _, scheduler := range app.schedulers {
		scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")

	for _, scheduler := range app.schedulers {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	return <-errCh
}

type scheduler interface {
	Start()
	Stop()
}

type app struct {
	server     *api.Server
	db         *postgres.DB
	schedulers []scheduler
}

func initApp(ctx context.Context, logger *zerolog.Logger, cfg *config.Config) (*app, error) {
	db := postgres.NewDB(&cfg.DB)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, cfg.LLM.EmbeddingDimension()); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	articleRepo := postgres.NewArticleRepository(db)
	taskRepo := postgres.NewTaskRepository(db)
	sourceRepo := postgres.NewSourceRepository(db)
	socialRepo := postgres.NewSocialRepository(db)
	summaryRepo := postgres.NewSummaryRepository(db)
	embeddingRepo := postgres.NewEmbeddingRepository(db)
	vectorRepo := postgres.NewVectorRepository(db)

	tracker := lib.NewUsageTracker(logger)
	cache := lib.NewCache(modelCacheTTL)

	rawCompletion, err := llms.NewCompletionModel(&cfg.LLM, logger, tracker)
	if err != nil {
		return nil, fmt.Errorf("create completion model: %w", err)
	}
	completionModel := llms.NewCachedCompletionModel(rawCompletion, cfg.LLM.CompletionModel, cache)

	rawEmbedding, err := llms.NewEmbeddingModel(&cfg.LLM, logger, tracker)
	if err != nil {
		return nil, fmt.Errorf("create embedding model: %w", err)
	}
	embedder := llms.NewCachedEmbedderModel(rawEmbedding, cfg.LLM.EmbeddingModel, cache)

	engine := search.NewEngine(logger, &cfg.Search, embedder, vectorRepo, embeddingRepo, articleRepo)
	engine.Init(ctx)
	indexer := search.NewIndexer(logger, embedder, embeddingRepo, vectorRepo, articleRepo, engine, cfg.LLM.EmbeddingModel)

	analyzer := enrich.NewAnalyzer(completionModel, logger)
	enrichScheduler := enrich.NewScheduler(logger, &cfg.Enrich, analyzer, articleRepo, indexer)

	registry, err := buildProviderRegistry(logger, cfg)
	if err != nil {
		return nil, err
	}
	orchestrator := collector.NewOrchestrator(logger, &cfg.Collector, registry, articleRepo, sourceRepo, taskRepo, enrichScheduler)

	qaOrchestrator := qa.NewOrchestrator(logger, &cfg.QA, completionModel, engine)

	socialCollector, err := buildSocialCollector(logger, cfg, socialRepo)
	if err != nil {
		return nil, err
	}
	reporter := social.NewReportGenerator(completionModel, cfg.LLM.CompletionModel, socialRepo, socialCollector.Platforms(), logger)

	digestGenerator := digest.NewGenerator(completionModel, cfg.LLM.CompletionModel, articleRepo, summaryRepo, logger)

	apiKeys, err := cfg.Auth.ParseAPIKeys()
	if err != nil {
		return nil, fmt.Errorf("parse api keys: %w", err)
	}
	var provider auth.Provider
	if len(apiKeys) > 0 {
		provider = auth.NewKeyAuthProvider(apiKeys)
	} else {
		logger.Warn().Msg("No API keys configured, authentication disabled")
	}

	server, err := api.NewServer(logger, &cfg.API, auth.NewRouteAuthMiddleware(provider), api.Deps{
		Articles:        articleRepo,
		Search:          engine,
		Indexer:         indexer,
		QA:              qaOrchestrator,
		Collector:       orchestrator,
		Tasks:           taskRepo,
		Sources:         sourceRepo,
		Summaries:       summaryRepo,
		Digest:          digestGenerator,
		SocialCollector: socialCollector,
		SocialReporter:  reporter,
		SocialReports:   socialRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	var schedulers []scheduler
	if cfg.Collector.ScheduleEnabled {
		schedulers = append(schedulers, collector.NewScheduler(logger, &cfg.Collector, orchestrator))
	}
	if cfg.Digest.ScheduleEnabled {
		schedulers = append(schedulers, digest.NewScheduler(logger, &cfg.Digest, digestGenerator))
	}

	return &app{
		server:     server,
		db:         db,
		schedulers: schedulers,
	}, nil
}

func buildProviderRegistry(logger *zerolog.Logger, cfg *config.Config) (*collector.Registry, error) {
	redditProvider, err := reddit.New(logger, cfg.Social.RedditClientID, cfg.Social.RedditClientSecret)
	if err != nil {
		return nil, fmt.Errorf("create reddit provider: %w", err)
	}
	hnProvider, err := hackernews.New(logger)
	if err != nil {
		return nil, fmt.Errorf("create hackernews provider: %w", err)
	}

	return collector.NewRegistry(
		rss.New(logger),
		redditProvider,
		hnProvider,
		github.New(logger, cfg.Collector.GitHubToken),
		mastodon.New(logger, cfg.Collector.MastodonServer),
	), nil
}

// buildSocialCollector wires every platform whose credentials are present.
// Reddit always participates; it falls back to read-only API access when no
// app credentials are configured.
func buildSocialCollector(logger *zerolog.Logger, cfg *config.Config, socialRepo *postgres.SocialRepository) (*social.Collector, error) {
	var platforms []social.PlatformCollector

	redditCollector, err := social.NewRedditCollector(
		logger,
		cfg.Social.RedditClientID,
		cfg.Social.RedditClientSecret,
		cfg.Social.Subreddits(),
		cfg.Social.RedditMinUpvotes,
		cfg.Social.MaxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("create reddit collector: %w", err)
	}
	platforms = append(platforms, redditCollector)

	if cfg.Social.YouTubeAPIKey != "" {
		platforms = append(platforms, social.NewYouTubeCollector(logger, "", cfg.Social.YouTubeAPIKey, cfg.Social.Query, cfg.Social.MaxResults))
	}
	if cfg.Social.TikTokAPIKey != "" {
		platforms = append(platforms, social.NewTikTokCollector(logger, "", cfg.Social.TikTokAPIKey, cfg.Social.Query, cfg.Social.MaxResults))
	}
	if cfg.Social.TwitterAPIKey != "" {
		platforms = append(platforms, social.NewTwitterCollector(logger, "", cfg.Social.TwitterAPIKey, cfg.Social.Query, cfg.Social.MaxResults))
	}

	return social.NewCollector(logger, socialRepo, platforms...), nil
}
