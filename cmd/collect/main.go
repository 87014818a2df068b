package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/collector/providers/github"
	"github.com/aifeedco/aifeed/pkg/collector/providers/hackernews"
	"github.com/aifeedco/aifeed/pkg/collector/providers/mastodon"
	"github.com/aifeedco/aifeed/pkg/collector/providers/reddit"
	"github.com/aifeedco/aifeed/pkg/collector/providers/rss"
	appconfig "github.com/aifeedco/aifeed/pkg/config"
	"github.com/aifeedco/aifeed/pkg/enrich"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/lib/log"
	"github.com/aifeedco/aifeed/pkg/llms"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type Config struct {
	AIEnabled   bool
	EnvFilePath string
}

func main() {
	var config Config

	flag.BoolVar(&config.AIEnabled, "ai", true, "Analyze new articles with the completion model after collection")
	flag.StringVar(&config.EnvFilePath, "env-file", ".env", "Path to .env file")
	flag.Parse()

	ctx := context.Background()
	if err := run(ctx, config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config Config) error {
	if err := godotenv.Load(config.EnvFilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := log.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	db := postgres.NewDB(&cfg.DB)
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, cfg.LLM.EmbeddingDimension()); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	articleRepo := postgres.NewArticleRepository(db)
	taskRepo := postgres.NewTaskRepository(db)
	sourceRepo := postgres.NewSourceRepository(db)

	redditProvider, err := reddit.New(logger, cfg.Social.RedditClientID, cfg.Social.RedditClientSecret)
	if err != nil {
		return fmt.Errorf("create reddit provider: %w", err)
	}
	hnProvider, err := hackernews.New(logger)
	if err != nil {
		return fmt.Errorf("create hackernews provider: %w", err)
	}
	registry := collector.NewRegistry(
		rss.New(logger),
		redditProvider,
		hnProvider,
		github.New(logger, cfg.Collector.GitHubToken),
		mastodon.New(logger, cfg.Collector.MastodonServer),
	)

	var orchestrator *collector.Orchestrator
	if config.AIEnabled {
		enricher, err := buildEnricher(ctx, logger, cfg, db, articleRepo)
		if err != nil {
			return err
		}
		orchestrator = collector.NewOrchestrator(logger, &cfg.Collector, registry, articleRepo, sourceRepo, taskRepo, enricher)
	} else {
		orchestrator = collector.NewOrchestrator(logger, &cfg.Collector, registry, articleRepo, sourceRepo, taskRepo, nil)
	}

	task, err := orchestrator.RunOnce(ctx, collector.StartOptions{AIEnabled: config.AIEnabled})
	if err != nil {
		return fmt.Errorf("run collection: %w", err)
	}

	logger.Info().
		Str("task_id", task.ID).
		Str("status", task.Status).
		Int("total_sources", task.TotalSources).
		Int("success_sources", task.SuccessSources).
		Int("failed_sources", task.FailedSources).
		Int("new_articles", task.NewArticles).
		Int("analyzed", task.AnalyzedCount).
		Float64("duration_seconds", task.DurationSeconds).
		Msg("Collection finished")

	if task.Status == postgres.TaskStatusError {
		return fmt.Errorf("collection failed: %s", task.ErrorMessage)
	}
	return nil
}

// buildEnricher assembles the analysis pipeline. It is only called with
// -ai=true; a pure collection run constructs no model and needs no
// completion API key.
func buildEnricher(ctx context.Context, logger *zerolog.Logger, cfg *appconfig.Config, db *postgres.DB, articleRepo *postgres.ArticleRepository) (*enrich.Scheduler, error) {
	tracker := lib.NewUsageTracker(logger)

	rawCompletion, err := llms.NewCompletionModel(&cfg.LLM, logger, tracker)
	if err != nil {
		return nil, fmt.Errorf("create completion model: %w", err)
	}
	rawEmbedding, err := llms.NewEmbeddingModel(&cfg.LLM, logger, tracker)
	if err != nil {
		return nil, fmt.Errorf("create embedding model: %w", err)
	}

	embeddingRepo := postgres.NewEmbeddingRepository(db)
	vectorRepo := postgres.NewVectorRepository(db)

	engine := search.NewEngine(logger, &cfg.Search, rawEmbedding, vectorRepo, embeddingRepo, articleRepo)
	engine.Init(ctx)
	indexer := search.NewIndexer(logger, rawEmbedding, embeddingRepo, vectorRepo, articleRepo, engine, cfg.LLM.EmbeddingModel)

	analyzer := enrich.NewAnalyzer(rawCompletion, logger)
	return enrich.NewScheduler(logger, &cfg.Enrich, analyzer, articleRepo, indexer), nil
}
