package qa

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

//go:embed answer-question.md
var answerQuestionPrompt string

// NoResultsAnswer is returned when retrieval finds nothing to ground an
// answer on. No completion is generated in that case.
const NoResultsAnswer = "No relevant articles found for this question. Try rephrasing it or collect more content first."

// Orchestrator answers questions grounded in retrieved articles.
type Orchestrator struct {
	logger   *zerolog.Logger
	cfg      *Config
	model    llms.Model
	searcher searcher
}

type searcher interface {
	Search(ctx context.Context, query string, topK int, filter *postgres.SearchFilter) ([]search.Result, error)
}

func NewOrchestrator(logger *zerolog.Logger, cfg *Config, model llms.Model, searcher searcher) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		cfg:      cfg,
		model:    model,
		searcher: searcher,
	}
}

// Answer is a grounded answer with the articles that back it.
type Answer struct {
	Answer  string
	Sources []search.Result
}

// Ask retrieves the most relevant articles and generates one answer cited
// against them. Empty retrieval short-circuits to NoResultsAnswer without
// calling the model.
func (o *Orchestrator) Ask(ctx context.Context, question string, topK int, filter *postgres.SearchFilter) (*Answer, error) {
	if topK <= 0 {
		topK = o.cfg.TopK
	}

	results, err := o.searcher.Search(ctx, question, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve articles: %w", err)
	}
	if len(results) == 0 {
		o.logger.Info().Str("question", question).Msg("No articles retrieved for question")
		return &Answer{Answer: NoResultsAnswer}, nil
	}

	prompt, err := buildPrompt(question, results)
	if err != nil {
		return nil, err
	}

	out, err := llms.GenerateFromSinglePrompt(
		ctx,
		o.model,
		prompt,
		llms.WithTemperature(o.cfg.Temperature),
		llms.WithMaxTokens(o.cfg.MaxTokens),
	)
	if err != nil {
		logGenerateCompletionError(o.logger, prompt, err)
		return nil, fmt.Errorf("generate completion: %w", err)
	}

	return &Answer{Answer: strings.TrimSpace(out), Sources: results}, nil
}

// EventType identifies one frame of a streaming answer.
type EventType string

const (
	EventArticles EventType = "articles"
	EventContent  EventType = "content"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one frame of a streaming answer. Articles is set on EventArticles,
// Content on EventContent and Message on EventError.
type Event struct {
	Type     EventType
	Articles []search.Result
	Content  string
	Message  string
}

// AskStream answers a question as an event stream: one articles event, content
// chunks as the model produces them, then done. Failures are delivered in-band
// as an error event that ends the stream. An error returned by emit aborts
// generation and is returned to the caller.
func (o *Orchestrator) AskStream(ctx context.Context, question string, topK int, filter *postgres.SearchFilter, emit func(Event) error) error {
	if topK <= 0 {
		topK = o.cfg.TopK
	}

	results, err := o.searcher.Search(ctx, question, topK, filter)
	if err != nil {
		o.logger.Error().Err(err).Str("question", question).Msg("Retrieval for streamed question failed")
		return emit(Event{Type: EventError, Message: "article retrieval failed"})
	}

	if err := emit(Event{Type: EventArticles, Articles: results}); err != nil {
		return err
	}
	if len(results) == 0 {
		return emit(Event{Type: EventError, Message: NoResultsAnswer})
	}

	prompt, err := buildPrompt(question, results)
	if err != nil {
		return emit(Event{Type: EventError, Message: err.Error()})
	}

	var emitErr error
	_, err = llms.GenerateFromSinglePrompt(
		ctx,
		o.model,
		prompt,
		llms.WithTemperature(o.cfg.Temperature),
		llms.WithMaxTokens(o.cfg.MaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			emitErr = emit(Event{Type: EventContent, Content: string(chunk)})
			return emitErr
		}),
	)
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		logGenerateCompletionError(o.logger, prompt, err)
		return emit(Event{Type: EventError, Message: "answer generation failed"})
	}

	return emit(Event{Type: EventDone})
}

func buildPrompt(question string, results []search.Result) (string, error) {
	template := prompts.NewPromptTemplate(answerQuestionPrompt, []string{
		"articles",
		"question",
	})

	prompt, err := template.Format(map[string]any{
		"articles": formatSources(results),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return prompt, nil
}

// formatSources renders retrieved articles as the numbered context block the
// model cites from.
func formatSources(results []search.Result) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] Title: %s\n", i+1, r.Article.Title)
		if r.Article.TitleZh != "" {
			fmt.Fprintf(&b, "Translated title: %s\n", r.Article.TitleZh)
		}
		if r.Article.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", r.Article.Summary)
		}
		fmt.Fprintf(&b, "Source: %s\n", r.Article.SourceName)
		fmt.Fprintf(&b, "Relevance: %.3f", r.Similarity)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n---\n")
}

func logGenerateCompletionError(logger *zerolog.Logger, prompt string, err error) {
	logger.Error().
		Err(err).
		// Log in base64 for a more compact representation
		Str("prompt_base64", base64.StdEncoding.EncodeToString([]byte(prompt))).
		Int("prompt_bytes", len(prompt)).
		Msg("Error generating completion")
}
