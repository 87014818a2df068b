package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	appconfig "github.com/aifeedco/aifeed/pkg/config"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/lib/log"
	"github.com/aifeedco/aifeed/pkg/llms"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type Config struct {
	StatsOnly   bool
	EnvFilePath string
}

func main() {
	var config Config

	flag.BoolVar(&config.StatsOnly, "stats", false, "Print index coverage without rebuilding")
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

	articleRepo := postgres.NewArticleRepository(db)
	embeddingRepo := postgres.NewEmbeddingRepository(db)
	vectorRepo := postgres.NewVectorRepository(db)

	tracker := lib.NewUsageTracker(logger)
	embedder, err := llms.NewEmbeddingModel(&cfg.LLM, logger, tracker)
	if err != nil {
		return fmt.Errorf("create embedding model: %w", err)
	}

	engine := search.NewEngine(logger, &cfg.Search, embedder, vectorRepo, embeddingRepo, articleRepo)
	engine.Init(ctx)
	indexer := search.NewIndexer(logger, embedder, embeddingRepo, vectorRepo, articleRepo, engine, cfg.LLM.EmbeddingModel)

	if !config.StatsOnly {
		stats, err := indexer.ReindexAll(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		if stats.Failed > 0 {
			logger.Warn().Int("failed", stats.Failed).Msg("Some articles failed to index")
		}
	}

	stats, err := indexer.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}

	logger.Info().
		Int64("total_articles", stats.TotalArticles).
		Int64("indexed", stats.IndexedArticles).
		Int64("unindexed", stats.UnindexedArticles).
		Str("coverage", fmt.Sprintf("%.1f%%", stats.Coverage*100)).
		Msg("Index coverage")

	for source, count := range stats.BySource {
		logger.Info().Str("source", source).Int64("indexed", count).Msg("Source coverage")
	}

	return nil
}
