package llms

import (
	"fmt"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/openai"
)

func NewEmbeddingModel(config *Config, logger *zerolog.Logger, tracker *lib.UsageTracker) (embedderModel, error) {
	switch config.EmbeddingProvider {
	case "openai":
		limiter := lib.NewOpenAILimiterWithTracker(logger, tracker)
		opts := []openai.Option{
			openai.WithEmbeddingModel(config.EmbeddingModel),
			openai.WithHTTPClient(limiter),
		}
		if config.OpenAIAPIKey != "" {
			opts = append(opts, openai.WithToken(config.OpenAIAPIKey))
		}
		if config.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.OpenAIBaseURL))
		}

		embeddingModel, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai embedding model: %w", err)
		}
		return embeddingModel, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.EmbeddingProvider)
	}
}
