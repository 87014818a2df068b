package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type fakeSearcher struct {
	results  []search.Result
	err      error
	lastTopK int
	calls    int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int, filter *postgres.SearchFilter) ([]search.Result, error) {
	f.calls++
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeModel struct {
	response string
	chunks   []string
	err      error
	calls    int
	prompts  []string
	opts     llms.CallOptions
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

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	m.opts = opts

	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}

	if m.err != nil {
		return nil, m.err
	}

	if opts.StreamingFunc != nil {
		for _, chunk := range m.chunks {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{
			{Content: strings.Join(m.chunks, "")},
		}}, nil
	}

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{
		{Content: m.response},
	}}, nil
}

func newTestOrchestrator(model *fakeModel, s *fakeSearcher) *Orchestrator {
	logger := zerolog.Nop()
	cfg := &Config{TopK: 5, Temperature: 0.3, MaxTokens: 2000}
	return NewOrchestrator(&logger, cfg, model, s)
}

func testResults() []search.Result {
	return []search.Result{
		{
			Article: &postgres.Article{
				ID:         1,
				Title:      "Scaling Laws Revisited",
				TitleZh:    "再谈扩展定律",
				Summary:    "Compute-optimal training budgets.",
				SourceName: "arxiv",
			},
			Similarity: 0.8734,
		},
		{
			Article: &postgres.Article{
				ID:         2,
				Title:      "Inference Cost Trends",
				SourceName: "hackernews",
			},
			Similarity: 0.6219,
		},
	}
}

func TestAskNoResults(t *testing.T) {
	model := &fakeModel{response: "should never be generated"}
	orch := newTestOrchestrator(model, &fakeSearcher{})

	answer, err := orch.Ask(context.Background(), "what is new in robotics?", 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != NoResultsAnswer {
		t.Errorf("answer = %q, want NoResultsAnswer", answer.Answer)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(answer.Sources))
	}
	if model.calls != 0 {
		t.Errorf("expected no model calls, got %d", model.calls)
	}
}

func TestAskGeneratesGroundedAnswer(t *testing.T) {
	model := &fakeModel{response: "Budgets shifted toward data [1]."}
	searcher := &fakeSearcher{results: testResults()}
	orch := newTestOrchestrator(model, searcher)

	answer, err := orch.Ask(context.Background(), "what changed in training budgets?", 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer.Answer != "Budgets shifted toward data [1]." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(answer.Sources))
	}

	if model.calls != 1 {
		t.Fatalf("expected 1 model call, got %d", model.calls)
	}
	prompt := model.prompts[0]
	for _, want := range []string{
		"[1] Title: Scaling Laws Revisited",
		"Translated title: 再谈扩展定律",
		"Summary: Compute-optimal training budgets.",
		"Relevance: 0.873",
		"[2] Title: Inference Cost Trends",
		"\n---\n",
		"what changed in training budgets?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if model.opts.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", model.opts.Temperature)
	}
	if model.opts.MaxTokens != 2000 {
		t.Errorf("max tokens = %d, want 2000", model.opts.MaxTokens)
	}
}

func TestAskSearchError(t *testing.T) {
	model := &fakeModel{}
	orch := newTestOrchestrator(model, &fakeSearcher{err: errors.New("store down")})

	_, err := orch.Ask(context.Background(), "anything", 5, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if model.calls != 0 {
		t.Errorf("expected no model calls, got %d", model.calls)
	}
}

func TestAskDefaultTopK(t *testing.T) {
	searcher := &fakeSearcher{results: testResults()}
	orch := newTestOrchestrator(&fakeModel{response: "ok"}, searcher)

	if _, err := orch.Ask(context.Background(), "question", 0, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastTopK != 5 {
		t.Errorf("topK = %d, want config default 5", searcher.lastTopK)
	}
}

func collectEvents(t *testing.T, orch *Orchestrator, question string) []Event {
	t.Helper()
	var events []Event
	err := orch.AskStream(context.Background(), question, 5, nil, func(e Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return events
}

func TestAskStreamEventOrder(t *testing.T) {
	model := &fakeModel{chunks: []string{"Bud", "gets", " shifted."}}
	orch := newTestOrchestrator(model, &fakeSearcher{results: testResults()})

	events := collectEvents(t, orch, "what changed?")

	wantTypes := []EventType{EventArticles, EventContent, EventContent, EventContent, EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, e := range events {
		if e.Type != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, e.Type, wantTypes[i])
		}
	}

	if len(events[0].Articles) != 2 {
		t.Errorf("articles event carries %d articles, want 2", len(events[0].Articles))
	}

	var content strings.Builder
	for _, e := range events {
		if e.Type == EventContent {
			content.WriteString(e.Content)
		}
	}
	if content.String() != "Budgets shifted." {
		t.Errorf("streamed content = %q", content.String())
	}
}

func TestAskStreamNoResults(t *testing.T) {
	model := &fakeModel{chunks: []string{"never"}}
	orch := newTestOrchestrator(model, &fakeSearcher{})

	events := collectEvents(t, orch, "unanswerable")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventArticles || len(events[0].Articles) != 0 {
		t.Errorf("first event = %+v, want empty articles event", events[0])
	}
	if events[1].Type != EventError || events[1].Message != NoResultsAnswer {
		t.Errorf("second event = %+v, want error with NoResultsAnswer", events[1])
	}
	if model.calls != 0 {
		t.Errorf("expected no model calls, got %d", model.calls)
	}
}

func TestAskStreamGenerationError(t *testing.T) {
	model := &fakeModel{err: errors.New("model offline")}
	orch := newTestOrchestrator(model, &fakeSearcher{results: testResults()})

	events := collectEvents(t, orch, "what changed?")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventArticles {
		t.Errorf("first event type = %q, want articles", events[0].Type)
	}
	if events[1].Type != EventError {
		t.Errorf("second event type = %q, want error", events[1].Type)
	}
}

func TestAskStreamEmitAbort(t *testing.T) {
	model := &fakeModel{chunks: []string{"a", "b", "c"}}
	orch := newTestOrchestrator(model, &fakeSearcher{results: testResults()})

	clientGone := errors.New("client gone")
	var events []Event
	err := orch.AskStream(context.Background(), "question", 5, nil, func(e Event) error {
		if e.Type == EventContent {
			return clientGone
		}
		events = append(events, e)
		return nil
	})

	if !errors.Is(err, clientGone) {
		t.Fatalf("error = %v, want emit error", err)
	}
	// Only the articles event landed; no done or error frame after the abort.
	if len(events) != 1 || events[0].Type != EventArticles {
		t.Errorf("events after abort = %+v", events)
	}
}

func TestFormatSources(t *testing.T) {
	tests := []struct {
		name    string
		results []search.Result
		want    string
	}{
		{
			name: "full article",
			results: []search.Result{{
				Article: &postgres.Article{
					Title:      "T",
					TitleZh:    "译",
					Summary:    "S",
					SourceName: "arxiv",
				},
				Similarity: 0.5,
			}},
			want: "[1] Title: T\nTranslated title: 译\nSummary: S\nSource: arxiv\nRelevance: 0.500",
		},
		{
			name: "optional fields omitted",
			results: []search.Result{{
				Article:    &postgres.Article{Title: "T", SourceName: "reddit"},
				Similarity: 0.1234,
			}},
			want: "[1] Title: T\nSource: reddit\nRelevance: 0.123",
		},
		{
			name: "blocks joined with separator",
			results: []search.Result{
				{Article: &postgres.Article{Title: "A", SourceName: "x"}, Similarity: 1},
				{Article: &postgres.Article{Title: "B", SourceName: "y"}, Similarity: 0},
			},
			want: "[1] Title: A\nSource: x\nRelevance: 1.000\n---\n[2] Title: B\nSource: y\nRelevance: 0.000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSources(tt.results); got != tt.want {
				t.Errorf("formatSources() = %q, want %q", got, tt.want)
			}
		})
	}
}
