package social

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

// ErrNoPosts is returned when a report is requested with nothing to report.
var ErrNoPosts = errors.New("no social posts to report on")

// reportSectionCap bounds how many posts one platform gets in the rendered
// report. Stored per-platform counts stay uncapped.
const reportSectionCap = 20

const translateTitlePrompt = `You are a news editor preparing headlines for a Chinese-language digest.

Title: {{.title}}

Translate the title into concise, accurate Chinese. When the title runs longer than three sentences, instead write a 60-80 character Chinese summary covering who did what, what it achieves, and why it matters.

Return only the Chinese text, with no quotes and no explanation.`

const judgeTweetPrompt = `You are an editor for an AI news digest deciding whether a tweet belongs in it.

Tweet: {{.tweet}}
Author: {{.author}}
Published: {{.published}}
Link: {{.url}}

Include the tweet when it reports on AI products, models, research, trends, informed opinion, policy, or societal impact. Exclude pure memes, emotional reactions, unrelated entertainment, and idle chatter.

{{.output_format_instructions}}`

type tweetValueOutput struct {
	// Note: fields should not be pointers, or the format instructions won't include them
	Valuable bool   `json:"valuable" describe:"true when the tweet carries AI-related information value"`
	Reason   string `json:"reason" describe:"one short sentence explaining the verdict"`
}

type reportStore interface {
	SetTranslation(ctx context.Context, id int64, titleZh string) error
	SetValueJudgment(ctx context.Context, id int64, hasValue bool, reason string) error
	InsertReport(ctx context.Context, rep *postgres.SocialReport) error
}

// ReportGenerator renders the daily trending report. Titles are translated
// to Chinese and tweets are screened for information value with the
// completion model; both verdicts persist on the post row and are never
// recomputed once set.
type ReportGenerator struct {
	model     llms.Model
	modelID   string
	store     reportStore
	platforms []string
	logger    *zerolog.Logger
}

// NewReportGenerator builds a generator. A nil model disables translation
// and tweet screening; the report then carries original titles only.
func NewReportGenerator(model llms.Model, modelID string, store reportStore, platforms []string, logger *zerolog.Logger) *ReportGenerator {
	if len(platforms) == 0 {
		platforms = []string{
			postgres.PlatformYouTube,
			postgres.PlatformTikTok,
			postgres.PlatformTwitter,
			postgres.PlatformReddit,
		}
	}

	return &ReportGenerator{
		model:     model,
		modelID:   modelID,
		store:     store,
		platforms: platforms,
		logger:    logger,
	}
}

// GenerateDaily builds and stores a report over the given posts, typically
// the output of one CollectAll run.
func (g *ReportGenerator) GenerateDaily(ctx context.Context, posts []*postgres.SocialPost) (*postgres.SocialReport, error) {
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	started := time.Now()
	now := started.UTC()
	reportDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	byPlatform := splitByPlatform(posts)
	for _, group := range byPlatform {
		sortByViralScore(group)
	}

	youtube := byPlatform[postgres.PlatformYouTube]
	tiktok := byPlatform[postgres.PlatformTikTok]
	twitter := byPlatform[postgres.PlatformTwitter]
	reddit := byPlatform[postgres.PlatformReddit]

	if g.model != nil {
		g.translatePosts(ctx, youtube)
		g.translatePosts(ctx, tiktok)
		g.translatePosts(ctx, reddit)
		g.translatePosts(ctx, twitter)
		twitter = g.filterValuableTweets(ctx, twitter)
	}

	content := renderReport(reportDate, youtube, twitter, reddit, tiktok)

	enabled := make(map[string]bool, len(g.platforms))
	for _, platform := range g.platforms {
		enabled[platform] = true
	}

	report := &postgres.SocialReport{
		ReportDate:        reportDate,
		YouTubeCount:      len(youtube),
		TikTokCount:       len(tiktok),
		TwitterCount:      len(twitter),
		RedditCount:       len(reddit),
		Content:           content,
		Platforms:         enabled,
		ModelUsed:         g.modelID,
		GenerationSeconds: time.Since(started).Seconds(),
	}
	if err := g.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	g.logger.Info().
		Int("youtube", len(youtube)).
		Int("tiktok", len(tiktok)).
		Int("twitter", len(twitter)).
		Int("reddit", len(reddit)).
		Msg("Generated social report")

	return report, nil
}

// splitByPlatform groups posts per platform, dropping repeated post ids.
// Re-collections repeat posts; the first occurrence wins.
func splitByPlatform(posts []*postgres.SocialPost) map[string][]*postgres.SocialPost {
	seen := make(map[string]map[string]bool)
	out := make(map[string][]*postgres.SocialPost)
	for _, p := range posts {
		ids := seen[p.Platform]
		if ids == nil {
			ids = make(map[string]bool)
			seen[p.Platform] = ids
		}
		if ids[p.PostID] {
			continue
		}
		ids[p.PostID] = true
		out[p.Platform] = append(out[p.Platform], p)
	}
	return out
}

func sortByViralScore(posts []*postgres.SocialPost) {
	score := func(p *postgres.SocialPost) float64 {
		if p.ViralScore == nil {
			return 0
		}
		return *p.ViralScore
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return score(posts[i]) > score(posts[j])
	})
}

func (g *ReportGenerator) translatePosts(ctx context.Context, posts []*postgres.SocialPost) {
	for _, post := range posts {
		if post.TitleZh != nil && *post.TitleZh != "" {
			continue
		}
		if post.Title == "" {
			continue
		}

		titleZh, err := g.translateTitle(ctx, post.Title)
		if err != nil {
			g.logger.Warn().
				Err(err).
				Str("post_id", post.PostID).
				Msg("Failed to translate title")
			continue
		}
		if titleZh == "" {
			continue
		}

		post.TitleZh = &titleZh
		if post.ID == 0 {
			continue
		}
		if err := g.store.SetTranslation(ctx, post.ID, titleZh); err != nil {
			g.logger.Warn().
				Err(err).
				Int64("id", post.ID).
				Msg("Failed to save translation")
		}
	}
}

func (g *ReportGenerator) translateTitle(ctx context.Context, title string) (string, error) {
	template := prompts.NewPromptTemplate(translateTitlePrompt, []string{"title"})
	prompt, err := template.Format(map[string]any{"title": title})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(
		ctx,
		g.model,
		prompt,
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}

	return strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"'`)), nil
}

// filterValuableTweets keeps tweets the model judges informative. Judgment
// failures keep the tweet; filtering on failure would drop real news.
func (g *ReportGenerator) filterValuableTweets(ctx context.Context, posts []*postgres.SocialPost) []*postgres.SocialPost {
	kept := make([]*postgres.SocialPost, 0, len(posts))
	for _, post := range posts {
		if post.HasValue != nil {
			if *post.HasValue {
				kept = append(kept, post)
			}
			continue
		}

		verdict, err := g.judgeTweet(ctx, post)
		if err != nil {
			g.logger.Warn().
				Err(err).
				Str("post_id", post.PostID).
				Msg("Failed to judge tweet value")
			kept = append(kept, post)
			continue
		}

		hasValue := verdict.Valuable
		reason := strings.TrimSpace(verdict.Reason)
		post.HasValue = &hasValue
		if reason != "" {
			post.ValueReason = &reason
		}
		if post.ID != 0 {
			if err := g.store.SetValueJudgment(ctx, post.ID, hasValue, reason); err != nil {
				g.logger.Warn().
					Err(err).
					Int64("id", post.ID).
					Msg("Failed to save value judgment")
			}
		}

		if hasValue {
			kept = append(kept, post)
		}
	}
	return kept
}

func (g *ReportGenerator) judgeTweet(ctx context.Context, post *postgres.SocialPost) (*tweetValueOutput, error) {
	parser, err := outputparser.NewDefined(tweetValueOutput{})
	if err != nil {
		return nil, fmt.Errorf("creating parser: %w", err)
	}

	published := ""
	if post.PublishedAt != nil {
		published = post.PublishedAt.Format("2006-01-02")
	}

	template := prompts.NewPromptTemplate(judgeTweetPrompt, []string{
		"tweet",
		"author",
		"published",
		"url",
		"output_format_instructions",
	})
	prompt, err := template.Format(map[string]any{
		"tweet":                      post.Title,
		"author":                     post.AuthorName,
		"published":                  published,
		"url":                        post.PostURL,
		"output_format_instructions": parser.GetFormatInstructions(),
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(
		ctx,
		g.model,
		prompt,
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return nil, fmt.Errorf("generate completion: %w", err)
	}

	// Parser expects backsticks but the output usually doesn't contain them
	wrapped := out
	if !strings.HasPrefix(out, "```json") {
		wrapped = fmt.Sprintf("```json\n%s\n```", out)
	}
	verdict, err := parser.Parse(wrapped)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &verdict, nil
}

func renderReport(reportDate time.Time, youtube, twitter, reddit, tiktok []*postgres.SocialPost) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s AI Trending Report\n", reportDate.Format("2006-01-02"))

	if len(youtube) > 0 {
		b.WriteString("\n🔥 **YouTube**\n")
		order, groups := groupPosts(capPosts(youtube), func(p *postgres.SocialPost) string {
			if p.AuthorName == "" {
				return "Shorts"
			}
			return p.AuthorName
		})
		for _, channel := range order {
			fmt.Fprintf(&b, "\n**%s**\n", channel)
			writeItems(&b, groups[channel])
		}
		b.WriteString("\n---\n\n")
	}

	if len(twitter) > 0 {
		b.WriteString("\n🔥 **Twitter**\n")
		writeItems(&b, capPosts(twitter))
		b.WriteString("\n---\n\n")
	}

	if len(reddit) > 0 {
		b.WriteString("\n💬 **Reddit**\n")
		order, groups := groupPosts(capPosts(reddit), func(p *postgres.SocialPost) string {
			if sub := subredditFromURL(p.PostURL); sub != "" {
				return "r/" + sub
			}
			return "Reddit"
		})
		for _, sub := range order {
			fmt.Fprintf(&b, "\n**%s**\n", sub)
			writeItems(&b, groups[sub])
		}
		b.WriteString("\n---\n\n")
	}

	if len(tiktok) > 0 {
		b.WriteString("\n🎵 **TikTok**\n")
		writeItems(&b, capPosts(tiktok))
		b.WriteString("\n---\n")
	}

	return b.String()
}

// groupPosts buckets posts by key, preserving the order keys first appear in
// the score-sorted input.
func groupPosts(posts []*postgres.SocialPost, key func(*postgres.SocialPost) string) ([]string, map[string][]*postgres.SocialPost) {
	var order []string
	groups := make(map[string][]*postgres.SocialPost)
	for _, p := range posts {
		k := key(p)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	return order, groups
}

func writeItems(b *strings.Builder, posts []*postgres.SocialPost) {
	for _, p := range posts {
		title := p.Title
		if p.TitleZh != nil && *p.TitleZh != "" {
			title = *p.TitleZh
		}
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(b, "- %s\n%s\n", title, p.PostURL)
	}
}

func capPosts(posts []*postgres.SocialPost) []*postgres.SocialPost {
	if len(posts) > reportSectionCap {
		return posts[:reportSectionCap]
	}
	return posts
}

func subredditFromURL(postURL string) string {
	u, err := neturl.Parse(postURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "r" {
		return parts[1]
	}
	return ""
}
