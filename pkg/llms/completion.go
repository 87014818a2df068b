package llms

import (
	"fmt"
	"net/http"

	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func NewCompletionModel(config *Config, logger *zerolog.Logger, tracker *lib.UsageTracker) (llms.Model, error) {
	switch config.CompletionProvider {
	case "openai":
		limiter := lib.NewOpenAILimiterWithTracker(logger, tracker)
		opts := []openai.Option{
			openai.WithModel(config.CompletionModel),
			openai.WithHTTPClient(limiter),
		}
		if config.OpenAIAPIKey != "" {
			opts = append(opts, openai.WithToken(config.OpenAIAPIKey))
		}
		if config.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.OpenAIBaseURL))
		}

		openaiModel, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI model: %w", err)
		}
		return openaiModel, nil
	case "ollama":
		return NewOllamaModel(config.OllamaBaseURL, config.CompletionModel, http.DefaultClient, config.OllamaContextSize), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.CompletionProvider)
	}
}
