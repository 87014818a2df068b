package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type fakeModel struct {
	respond func(prompt string) (string, error)
	calls   int
	prompts []string
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	var prompt string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt = text.Text
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	out, err := m.respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{
		{Content: out},
	}}, nil
}

func scoreOf(v float64) *float64 { return &v }

func TestGenerateDailyEmpty(t *testing.T) {
	logger := zerolog.Nop()
	g := NewReportGenerator(nil, "", newFakeSocialStore(), nil, &logger)

	if _, err := g.GenerateDaily(context.Background(), nil); !errors.Is(err, ErrNoPosts) {
		t.Fatalf("err = %v, want ErrNoPosts", err)
	}
}

func TestGenerateDailyReport(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Tweet:") {
			if strings.Contains(prompt, "gm everyone") {
				return `{"valuable": false, "reason": "chitchat"}`, nil
			}
			return `{"valuable": true, "reason": "model launch news"}`, nil
		}
		return `"译文"`, nil
	}}
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(model, "test-model", store, nil, &logger)

	youtube := socialPost(postgres.PlatformYouTube, "y1")
	youtube.ID = 1
	youtube.AuthorName = "TechChannel"

	redditPost := socialPost(postgres.PlatformReddit, "r1")
	redditPost.ID = 2
	redditPost.PostURL = "https://www.reddit.com/r/artificial/comments/r1/thread/"
	redditPost.ViralScore = scoreOf(6)

	valuable := socialPost(postgres.PlatformTwitter, "t1")
	valuable.ID = 3
	valuable.Title = "OpenAI launches agent mode"
	valuable.ViralScore = scoreOf(3250)

	chatter := socialPost(postgres.PlatformTwitter, "t2")
	chatter.ID = 4
	chatter.Title = "gm everyone"
	chatter.ViralScore = scoreOf(1200)

	tiktok := socialPost(postgres.PlatformTikTok, "k1")
	tiktok.ID = 5
	tiktok.ViralScore = scoreOf(12)

	report, err := g.GenerateDaily(context.Background(), []*postgres.SocialPost{
		youtube, redditPost, valuable, chatter, tiktok,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.YouTubeCount != 1 || report.RedditCount != 1 || report.TikTokCount != 1 {
		t.Errorf("counts = %d/%d/%d", report.YouTubeCount, report.RedditCount, report.TikTokCount)
	}
	if report.TwitterCount != 1 {
		t.Errorf("twitter count = %d, want 1 after value filter", report.TwitterCount)
	}
	if report.ModelUsed != "test-model" {
		t.Errorf("model used = %q", report.ModelUsed)
	}
	for _, platform := range []string{postgres.PlatformYouTube, postgres.PlatformTikTok, postgres.PlatformTwitter, postgres.PlatformReddit} {
		if !report.Platforms[platform] {
			t.Errorf("platform %s not marked enabled", platform)
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	if !strings.Contains(report.Content, "# "+today+" AI Trending Report") {
		t.Errorf("missing report header:\n%s", report.Content)
	}
	for _, want := range []string{"🔥 **YouTube**", "**TechChannel**", "🔥 **Twitter**", "💬 **Reddit**", "**r/artificial**", "🎵 **TikTok**", "译文"} {
		if !strings.Contains(report.Content, want) {
			t.Errorf("report missing %q:\n%s", want, report.Content)
		}
	}
	if strings.Contains(report.Content, "gm everyone") {
		t.Error("valueless tweet should not appear in the report")
	}

	// Five translations plus two judgments.
	if model.calls != 7 {
		t.Errorf("model calls = %d, want 7", model.calls)
	}
	if len(store.translations) != 5 {
		t.Errorf("persisted translations = %d, want 5", len(store.translations))
	}
	if store.translations[3] != "译文" {
		t.Errorf("translation for id 3 = %q", store.translations[3])
	}
	if v, ok := store.judgments[3]; !ok || !v {
		t.Errorf("judgment for t1 = %v/%v, want true", v, ok)
	}
	if v, ok := store.judgments[4]; !ok || v {
		t.Errorf("judgment for t2 = %v/%v, want false", v, ok)
	}
	if store.reasons[4] != "chitchat" {
		t.Errorf("reason for t2 = %q", store.reasons[4])
	}
	if len(store.reports) != 1 {
		t.Fatalf("stored reports = %d, want 1", len(store.reports))
	}
}

func TestGenerateDailyMemoized(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (string, error) {
		return "", errors.New("should not be called")
	}}
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(model, "test-model", store, nil, &logger)

	cached := "已有标题"
	yes, no := true, false

	youtube := socialPost(postgres.PlatformYouTube, "y1")
	youtube.ID = 1
	youtube.TitleZh = &cached

	kept := socialPost(postgres.PlatformTwitter, "t1")
	kept.ID = 2
	kept.TitleZh = &cached
	kept.HasValue = &yes

	dropped := socialPost(postgres.PlatformTwitter, "t2")
	dropped.ID = 3
	dropped.TitleZh = &cached
	dropped.HasValue = &no

	report, err := g.GenerateDaily(context.Background(), []*postgres.SocialPost{youtube, kept, dropped})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0 for fully cached posts", model.calls)
	}
	if report.TwitterCount != 1 {
		t.Errorf("twitter count = %d, want 1", report.TwitterCount)
	}
	if !strings.Contains(report.Content, cached) {
		t.Error("cached translation missing from report")
	}
	if len(store.translations) != 0 || len(store.judgments) != 0 {
		t.Error("cached verdicts must not be re-persisted")
	}
}

func TestGenerateDailyJudgeErrorKeepsTweet(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Tweet:") {
			return "", errors.New("rate limited")
		}
		return "译文", nil
	}}
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(model, "test-model", store, nil, &logger)

	tweet := socialPost(postgres.PlatformTwitter, "t1")
	tweet.ID = 1

	report, err := g.GenerateDaily(context.Background(), []*postgres.SocialPost{tweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.TwitterCount != 1 {
		t.Errorf("twitter count = %d, want 1 (kept on judgment failure)", report.TwitterCount)
	}
	if tweet.HasValue != nil {
		t.Error("failed judgment must not set has_value")
	}
	if len(store.judgments) != 0 {
		t.Error("failed judgment must not persist")
	}
}

func TestGenerateDailyNilModel(t *testing.T) {
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(nil, "", store, []string{postgres.PlatformReddit}, &logger)

	post := socialPost(postgres.PlatformReddit, "r1")
	post.ID = 1
	post.PostURL = "https://www.reddit.com/r/artificial/comments/r1/thread/"

	report, err := g.GenerateDaily(context.Background(), []*postgres.SocialPost{post})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(report.Content, "post r1") {
		t.Error("expected original title without a model")
	}
	if !report.Platforms[postgres.PlatformReddit] || len(report.Platforms) != 1 {
		t.Errorf("platforms = %v", report.Platforms)
	}
}

func TestGenerateDailyDedupesAndCaps(t *testing.T) {
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(nil, "", store, nil, &logger)

	var posts []*postgres.SocialPost
	for i := 0; i < 25; i++ {
		p := socialPost(postgres.PlatformReddit, fmt.Sprintf("r%d", i))
		p.PostURL = fmt.Sprintf("https://www.reddit.com/r/artificial/comments/r%d/thread/", i)
		p.ViralScore = scoreOf(float64(i % 10))
		posts = append(posts, p)
	}
	posts = append(posts, socialPost(postgres.PlatformReddit, "r0"))

	report, err := g.GenerateDaily(context.Background(), posts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.RedditCount != 25 {
		t.Errorf("reddit count = %d, want 25 (duplicate dropped, count uncapped)", report.RedditCount)
	}
	if items := strings.Count(report.Content, "\n- "); items != reportSectionCap {
		t.Errorf("rendered %d items, want %d", items, reportSectionCap)
	}
}

func TestGenerateDailyOrdersByScore(t *testing.T) {
	store := newFakeSocialStore()
	logger := zerolog.Nop()
	g := NewReportGenerator(nil, "", store, nil, &logger)

	low := socialPost(postgres.PlatformTikTok, "low")
	low.ViralScore = scoreOf(3)
	high := socialPost(postgres.PlatformTikTok, "high")
	high.ViralScore = scoreOf(9)
	mid := socialPost(postgres.PlatformTikTok, "mid")
	mid.ViralScore = scoreOf(6)

	report, err := g.GenerateDaily(context.Background(), []*postgres.SocialPost{low, high, mid})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hi := strings.Index(report.Content, "post high")
	mi := strings.Index(report.Content, "post mid")
	lo := strings.Index(report.Content, "post low")
	if hi == -1 || mi == -1 || lo == -1 || !(hi < mi && mi < lo) {
		t.Errorf("items out of score order (high=%d mid=%d low=%d)", hi, mi, lo)
	}
}

func TestSubredditFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://www.reddit.com/r/artificial/comments/abc/thread/", want: "artificial"},
		{url: "https://www.reddit.com/r/MachineLearning/", want: "MachineLearning"},
		{url: "https://example.com/post/1", want: ""},
		{url: "https://www.reddit.com/", want: ""},
		{url: "", want: ""},
	}
	for _, tt := range tests {
		if got := subredditFromURL(tt.url); got != tt.want {
			t.Errorf("subredditFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
