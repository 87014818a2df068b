package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestListParsesFeed(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>AI Blog</title>
<link>https://blog.example</link>
<item>
  <title>Scaling &amp; Serving</title>
  <link>https://blog.example/posts/scaling</link>
  <description>Short teaser</description>
  <pubDate>Mon, 04 Aug 2025 10:00:00 GMT</pubDate>
  <category>infrastructure</category>
</item>
<item>
  <title>Relative Link</title>
  <link>/posts/relative</link>
</item>
<item>
  <title></title>
  <link>https://blog.example/untitled</link>
</item>
</channel>
</rss>`

	server := serveFeed(t, feed)
	logger := zerolog.Nop()
	provider := New(&logger)

	src := &postgres.Source{Name: "ai blog", Kind: "rss", URL: server.URL}
	items, err := provider.List(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (untitled entry skipped)", len(items))
	}

	first := items[0]
	if first.URL != "https://blog.example/posts/scaling" {
		t.Errorf("url = %q", first.URL)
	}
	if first.Title != "Scaling & Serving" {
		t.Errorf("title = %q, want unescaped ampersand", first.Title)
	}
	if first.Content != "Short teaser" {
		t.Errorf("content = %q, want description fallback", first.Content)
	}
	if first.Category != "infrastructure" {
		t.Errorf("category = %q", first.Category)
	}
	want := time.Date(2025, 8, 4, 10, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", first.PublishedAt, want)
	}

	second := items[1]
	if !strings.HasPrefix(second.URL, server.URL) || !strings.HasSuffix(second.URL, "/posts/relative") {
		t.Errorf("relative link not resolved against feed host: %q", second.URL)
	}
	if second.PublishedAt != nil {
		t.Errorf("published = %v, want nil for undated entry", second.PublishedAt)
	}
}

func TestListCapsEntries(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Busy Feed</title>`)
	for i := 0; i < listLimit+5; i++ {
		fmt.Fprintf(&b, `<item><title>Post %d</title><link>https://busy.example/%d</link></item>`, i, i)
	}
	b.WriteString(`</channel></rss>`)

	server := serveFeed(t, b.String())
	logger := zerolog.Nop()
	provider := New(&logger)

	items, err := provider.List(context.Background(), &postgres.Source{URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != listLimit {
		t.Errorf("items = %d, want %d", len(items), listLimit)
	}
}

func TestListFeedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger := zerolog.Nop()
	provider := New(&logger)

	if _, err := provider.List(context.Background(), &postgres.Source{URL: server.URL}); err == nil {
		t.Fatal("expected error for failing feed")
	}
}

func TestListSendsHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Gated</title>
<item><title>Entry</title><link>https://gated.example/1</link></item></channel></rss>`)
	}))
	defer server.Close()

	logger := zerolog.Nop()
	provider := NewWithHeaders(&logger, map[string]string{"Authorization": "Bearer feed-token"})

	if _, err := provider.List(context.Background(), &postgres.Source{URL: server.URL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer feed-token" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

func TestFetchContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><article>
<p>transformer inference costs dropped after the kernel rewrite</p>
<p>the team published traces for three production workloads</p>
</article></body></html>`)
	}))
	defer server.Close()

	logger := zerolog.Nop()
	provider := New(&logger)

	item := &collector.Item{URL: server.URL}
	text, err := provider.FetchContent(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "kernel rewrite") {
		t.Errorf("text = %q, want article body", text)
	}
}
