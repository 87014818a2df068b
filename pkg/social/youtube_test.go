package social

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

func TestYouTubeCollectorCollect(t *testing.T) {
	var searchQuery, videosQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			searchQuery = r.URL.Query()
			w.Write([]byte(`{"items":[
				{"id":{"videoId":"vid1"},"snippet":{"title":"AI breakthrough explained","channelTitle":"TechChannel","publishedAt":"2025-08-09T10:00:00Z"}},
				{"id":{"videoId":"vid2"},"snippet":{"title":"Barely watched","channelTitle":"SmallChannel","publishedAt":"2025-08-09T11:00:00Z"}}
			]}`))
		case "/videos":
			videosQuery = r.URL.Query()
			w.Write([]byte(`{"items":[
				{"id":"vid1","statistics":{"viewCount":"350000","likeCount":"12000","commentCount":"800"}},
				{"id":"vid2","statistics":{"viewCount":"1500","likeCount":"10","commentCount":"2"}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewYouTubeCollector(&logger, server.URL, "test-key", "AI", 10)

	posts, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1 (low-view video filtered)", len(posts))
	}
	post := posts[0]
	if post.PostID != "vid1" {
		t.Errorf("post id = %q", post.PostID)
	}
	if post.Title != "AI breakthrough explained" {
		t.Errorf("title = %q", post.Title)
	}
	if post.AuthorName != "TechChannel" {
		t.Errorf("author = %q", post.AuthorName)
	}
	if post.ViewCount != 350000 || post.LikeCount != 12000 || post.CommentCount != 800 {
		t.Errorf("counts = %d/%d/%d", post.ViewCount, post.LikeCount, post.CommentCount)
	}
	if post.PostURL != "https://www.youtube.com/watch?v=vid1" {
		t.Errorf("post url = %q", post.PostURL)
	}
	if post.PublishedAt == nil {
		t.Error("expected published time")
	}
	if post.ViralScore != nil {
		t.Error("youtube posts carry no viral score")
	}

	if got := searchQuery.Get("key"); got != "test-key" {
		t.Errorf("search key = %q", got)
	}
	if got := searchQuery.Get("q"); got != "AI" {
		t.Errorf("search q = %q", got)
	}
	if got := searchQuery.Get("type"); got != "video" {
		t.Errorf("search type = %q", got)
	}
	if searchQuery.Get("publishedAfter") == "" {
		t.Error("expected publishedAfter to be set")
	}
	if got := videosQuery.Get("id"); got != "vid1,vid2" {
		t.Errorf("videos id = %q", got)
	}
	if got := videosQuery.Get("part"); got != "statistics" {
		t.Errorf("videos part = %q", got)
	}
}

func TestYouTubeCollectorEmptySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" {
			t.Error("statistics should not be fetched when search is empty")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewYouTubeCollector(&logger, server.URL, "test-key", "AI", 10)

	posts, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("got %d posts, want 0", len(posts))
	}
}

func TestYouTubeCollectorAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quotaExceeded"}}`, http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewYouTubeCollector(&logger, server.URL, "test-key", "AI", 10)

	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected error from quota response")
	}
}

func TestParseCount(t *testing.T) {
	if got := parseCount("350000"); got != 350000 {
		t.Errorf("parseCount(350000) = %d", got)
	}
	if got := parseCount(""); got != 0 {
		t.Errorf("parseCount(empty) = %d", got)
	}
	if got := parseCount("n/a"); got != 0 {
		t.Errorf("parseCount(garbage) = %d", got)
	}
}
