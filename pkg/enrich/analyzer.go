package enrich

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

//go:embed analyze-article.md
var analyzeArticlePrompt string

// Analyzer derives article metadata with a completion model.
type Analyzer struct {
	model  llms.Model
	logger *zerolog.Logger
}

func NewAnalyzer(model llms.Model, logger *zerolog.Logger) *Analyzer {
	return &Analyzer{model: model, logger: logger}
}

type analyzeArticleOutput struct {
	// Note: fields should not be pointers, or the format instructions won't include them
	Summary        string   `json:"summary" describe:"2-4 sentence plain-text summary of the article"`
	TitleZh        string   `json:"title_zh" describe:"Natural Chinese translation of the title"`
	Topics         []string `json:"topics" describe:"2-4 broad topics covered by the article"`
	Tags           []string `json:"tags" describe:"3-6 short lowercase keyword tags"`
	Importance     string   `json:"importance" describe:"One of: high, medium, low"`
	TargetAudience string   `json:"target_audience" describe:"Who should read this, one short phrase"`
	KeyPoints      []string `json:"key_points" describe:"3-5 concrete key takeaways"`
}

type analyzeArticleInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Analyze runs one completion over the article and returns the derived
// fields. The article content is capped to keep the prompt bounded.
func (a *Analyzer) Analyze(ctx context.Context, article *postgres.Article) (*postgres.Enrichment, error) {
	template := prompts.NewPromptTemplate(analyzeArticlePrompt, []string{
		"output_format_instructions",
		"article",
	})

	parser, err := outputparser.NewDefined(analyzeArticleOutput{})
	if err != nil {
		return nil, fmt.Errorf("creating parser: %w", err)
	}

	input := analyzeArticleInput{
		Title:   article.Title,
		Content: capRunes(article.Content, 4000),
		Source:  article.SourceName,
	}
	if article.PublishedAt != nil {
		input.PublishedAt = article.PublishedAt.Format(time.RFC3339)
	}

	articleJSON, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal article input: %w", err)
	}

	prompt, err := template.Format(map[string]any{
		"output_format_instructions": parser.GetFormatInstructions(),
		"article":                    string(articleJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(
		ctx,
		a.model,
		prompt,
		llms.WithTemperature(0.3),
	)
	if err != nil {
		logGenerateCompletionError(a.logger, prompt, err)
		return nil, fmt.Errorf("generate completion: %w", err)
	}

	response, err := parseResponse(parser, out)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("prompt", prompt).
			Str("output", out).
			Msg("Error parsing article analysis response")
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &postgres.Enrichment{
		Summary:        strings.TrimSpace(response.Summary),
		TitleZh:        strings.TrimSpace(response.TitleZh),
		Topics:         response.Topics,
		Tags:           response.Tags,
		Importance:     normalizeImportance(response.Importance),
		TargetAudience: strings.TrimSpace(response.TargetAudience),
		KeyPoints:      response.KeyPoints,
	}, nil
}

// normalizeImportance maps model output onto the values the articles table
// accepts. Anything unrecognized becomes medium.
func normalizeImportance(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

func capRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

func parseResponse[T any](parser outputparser.Defined[T], response string) (*T, error) {
	// Parser expects backsticks but the output usually doesn't contain them
	wrappedRes := response
	if !strings.HasPrefix(response, "```json") {
		wrappedRes = fmt.Sprintf("```json\n%s\n```", response)
	}
	out, err := parser.Parse(wrappedRes)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	return &out, nil
}

func logGenerateCompletionError(logger *zerolog.Logger, prompt string, err error) {
	logger.Error().
		Err(err).
		// Log in base64 for a more compact representation
		Str("prompt_base64", base64.StdEncoding.EncodeToString([]byte(prompt))).
		Int("prompt_bytes", len(prompt)).
		Msg("Error generating completion")
}
