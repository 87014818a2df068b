// Package digest turns a window of processed articles into a daily or
// weekly Markdown summary and stores it keyed by (type, date bucket).
package digest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

//go:embed daily-digest.md
var dailyDigestPrompt string

//go:embed weekly-digest.md
var weeklyDigestPrompt string

// ErrNoArticles is returned when the window holds no processed articles.
var ErrNoArticles = errors.New("no processed articles in range")

const (
	keyTopicsCap   = 10
	recommendedCap = 5
)

type articleLister interface {
	ListProcessedSince(ctx context.Context, since time.Time, limit int) ([]*postgres.Article, error)
}

type summaryStore interface {
	Upsert(ctx context.Context, s *postgres.Summary) error
}

// Generator produces digests with a completion model.
type Generator struct {
	model    llms.Model
	modelID  string
	articles articleLister
	store    summaryStore
	logger   *zerolog.Logger
}

func NewGenerator(
	model llms.Model,
	modelID string,
	articles articleLister,
	store summaryStore,
	logger *zerolog.Logger,
) *Generator {
	return &Generator{
		model:    model,
		modelID:  modelID,
		articles: articles,
		store:    store,
		logger:   logger,
	}
}

// digestProfile holds the per-type knobs. The weekly digest reads a longer
// window, feeds the model more context and lets it run hotter.
type digestProfile struct {
	prompt       string
	defaultHours int
	defaultLimit int
	articleCap   int
	summaryCap   int
	temperature  float64
	maxTokens    int
}

func profileFor(summaryType string) digestProfile {
	if summaryType == postgres.SummaryTypeWeekly {
		return digestProfile{
			prompt:       weeklyDigestPrompt,
			defaultHours: 7 * 24,
			defaultLimit: 100,
			articleCap:   50,
			summaryCap:   300,
			temperature:  0.5,
			maxTokens:    4000,
		}
	}
	return digestProfile{
		prompt:       dailyDigestPrompt,
		defaultHours: 24,
		defaultLimit: 50,
		articleCap:   20,
		summaryCap:   200,
		temperature:  0.3,
		maxTokens:    2000,
	}
}

// Generate builds the digest for the given window and upserts it. Hours and
// limit fall back to per-type defaults when zero or negative. The stored row
// is keyed by (type, date bucket), so rerunning within the same bucket
// replaces the earlier digest.
func (g *Generator) Generate(ctx context.Context, summaryType string, hours, limit int) (*postgres.Summary, error) {
	switch summaryType {
	case postgres.SummaryTypeDaily, postgres.SummaryTypeWeekly:
	default:
		return nil, fmt.Errorf("unknown summary type %q", summaryType)
	}

	profile := profileFor(summaryType)
	if hours <= 0 {
		hours = profile.defaultHours
	}
	if limit <= 0 {
		limit = profile.defaultLimit
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	articles, err := g.articles.ListProcessedSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed articles: %w", err)
	}
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}

	ranked := rankByImportance(articles)

	content, err := g.summarize(ctx, profile, hours, ranked)
	if err != nil {
		return nil, err
	}

	high, medium := importanceCounts(articles)
	summary := &postgres.Summary{
		SummaryType:           summaryType,
		DateBucket:            bucketFor(summaryType, now),
		RangeStart:            since,
		RangeEnd:              now,
		Content:               content,
		TotalArticles:         len(articles),
		HighImportanceCount:   high,
		MediumImportanceCount: medium,
		KeyTopics:             keyTopics(ranked),
		Recommended:           recommend(ranked),
		ModelUsed:             g.modelID,
	}
	if err := g.store.Upsert(ctx, summary); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}

	g.logger.Info().
		Str("type", summaryType).
		Int("articles", summary.TotalArticles).
		Time("bucket", summary.DateBucket).
		Msg("Generated digest")
	return summary, nil
}

func (g *Generator) summarize(ctx context.Context, profile digestProfile, hours int, ranked []*postgres.Article) (string, error) {
	template := prompts.NewPromptTemplate(profile.prompt, []string{
		"window",
		"count",
		"articles",
	})
	prompt, err := template.Format(map[string]any{
		"window":   rangeLabel(hours),
		"count":    len(ranked),
		"articles": renderArticleList(ranked, profile.articleCap, profile.summaryCap),
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(
		ctx,
		g.model,
		prompt,
		llms.WithTemperature(profile.temperature),
		llms.WithMaxTokens(profile.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate digest: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// rankByImportance orders high before medium before low. The lister returns
// newest-first, and the stable sort keeps that order within each band.
func rankByImportance(articles []*postgres.Article) []*postgres.Article {
	ranked := make([]*postgres.Article, len(articles))
	copy(ranked, articles)
	sort.SliceStable(ranked, func(i, j int) bool {
		return importanceRank(ranked[i].Importance) < importanceRank(ranked[j].Importance)
	})
	return ranked
}

func importanceRank(importance string) int {
	switch importance {
	case "high":
		return 0
	case "medium":
		return 1
	default:
		return 2
	}
}

func importanceCounts(articles []*postgres.Article) (high, medium int) {
	for _, a := range articles {
		switch a.Importance {
		case "high":
			high++
		case "medium":
			medium++
		}
	}
	return high, medium
}

func importanceEmoji(importance string) string {
	switch importance {
	case "high":
		return "🔴"
	case "medium":
		return "🟡"
	default:
		return "⚪"
	}
}

func renderArticleList(ranked []*postgres.Article, articleCap, summaryCap int) string {
	if len(ranked) > articleCap {
		ranked = ranked[:articleCap]
	}

	var b strings.Builder
	for i, a := range ranked {
		fmt.Fprintf(&b, "%d. %s [%s] %s\n", i+1, importanceEmoji(a.Importance), a.SourceName, displayTitle(a))
		if a.PublishedAt != nil {
			fmt.Fprintf(&b, "   Published: %s\n", a.PublishedAt.UTC().Format("2006-01-02 15:04"))
		}
		if summary := strings.TrimSpace(a.Summary); summary != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", capRunes(summary, summaryCap))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayTitle(a *postgres.Article) string {
	if a.TitleZh != "" {
		return a.TitleZh
	}
	if a.Title != "" {
		return a.Title
	}
	return "Untitled"
}

// keyTopics collects distinct tags in ranked order, so the most important
// articles name the digest's topics first.
func keyTopics(ranked []*postgres.Article) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, a := range ranked {
		for _, tag := range a.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			topics = append(topics, tag)
			if len(topics) == keyTopicsCap {
				return topics
			}
		}
	}
	return topics
}

func recommend(ranked []*postgres.Article) []postgres.RecommendedArticle {
	var picks []postgres.RecommendedArticle
	for _, a := range ranked {
		var reason string
		switch a.Importance {
		case "high":
			reason = "High importance"
		case "medium":
			reason = "Medium importance"
		default:
			continue
		}
		picks = append(picks, postgres.RecommendedArticle{
			ArticleID: a.ID,
			Title:     displayTitle(a),
			Reason:    reason,
		})
		if len(picks) == recommendedCap {
			break
		}
	}
	return picks
}

// bucketFor keys daily digests on the UTC day and weekly digests on the ISO
// week's Monday.
func bucketFor(summaryType string, now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if summaryType != postgres.SummaryTypeWeekly {
		return day
	}
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}

func rangeLabel(hours int) string {
	if hours > 24 && hours%24 == 0 {
		return fmt.Sprintf("the last %d days", hours/24)
	}
	return fmt.Sprintf("the last %d hours", hours)
}

func capRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
