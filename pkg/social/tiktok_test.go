package social

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func tiktokItemJSON(id, author string, createTime int64, views, followers, likes, comments, shares int64) string {
	return fmt.Sprintf(`{"item":{
		"id":%q,"desc":"video %s","createTime":%d,
		"author":{"id":"a-%s","uniqueId":%q},
		"authorStats":{"followerCount":%d},
		"stats":{"playCount":%d,"diggCount":%d,"commentCount":%d,"shareCount":%d,"collectCount":0}
	}}`, id, id, createTime, id, author, followers, views, likes, comments, shares)
}

func TestTikTokCollectorCollect(t *testing.T) {
	fresh := time.Now().Add(-24 * time.Hour).Unix()
	stale := time.Now().Add(-30 * 24 * time.Hour).Unix()

	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-rapidapi-key"); got != "tk-key" {
			t.Errorf("x-rapidapi-key = %q", got)
		}
		if r.URL.Path != "/api/search/general" {
			http.NotFound(w, r)
			return
		}

		pages++
		w.Header().Set("Content-Type", "application/json")
		switch pages {
		case 1:
			if got := r.URL.Query().Get("cursor"); got != "0" {
				t.Errorf("first page cursor = %q", got)
			}
			// Viral video plus one that passes the floors but scores low.
			fmt.Fprintf(w, `{"data":[%s,%s],"cursor":12,"has_more":true,"log_pb":{"impr_id":"sess-9"}}`,
				tiktokItemJSON("v1", "creator1", fresh, 500000, 125, 50000, 4000, 2000),
				tiktokItemJSON("v2", "creator2", fresh, 150000, 60000, 1500, 150, 15),
			)
		case 2:
			if got := r.URL.Query().Get("cursor"); got != "12" {
				t.Errorf("second page cursor = %q", got)
			}
			if got := r.URL.Query().Get("search_id"); got != "sess-9" {
				t.Errorf("second page search_id = %q", got)
			}
			// Month-old video falls outside the collection window.
			fmt.Fprintf(w, `{"data":[%s],"cursor":24,"has_more":false}`,
				tiktokItemJSON("v3", "creator3", stale, 900000, 100, 90000, 9000, 9000),
			)
		default:
			t.Error("unexpected extra page request")
			fmt.Fprint(w, `{"data":[],"has_more":false}`)
		}
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewTikTokCollector(&logger, server.URL, "tk-key", "AI", 50)

	posts, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pages != 2 {
		t.Fatalf("fetched %d pages, want 2", pages)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}

	post := posts[0]
	if post.PostID != "v1" {
		t.Errorf("post id = %q", post.PostID)
	}
	if post.AuthorName != "creator1" {
		t.Errorf("author = %q", post.AuthorName)
	}
	if post.PostURL != "https://www.tiktok.com/@creator1/video/v1" {
		t.Errorf("post url = %q", post.PostURL)
	}
	if post.AuthorFollowers != 125 || post.ViewCount != 500000 {
		t.Errorf("followers/views = %d/%d", post.AuthorFollowers, post.ViewCount)
	}
	if post.ViralScore == nil {
		t.Fatal("expected viral score")
	}
	// 500000/125*3 + 50000/500000 + 4000/500000*5 + 2000/500000*10
	if math.Abs(*post.ViralScore-12000.18) > 1e-9 {
		t.Errorf("viral score = %v, want 12000.18", *post.ViralScore)
	}
	if post.PublishedAt == nil {
		t.Error("expected published time")
	}
}

func TestTikTokCollectorStopsWithoutHasMore(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[],"cursor":12,"has_more":false}`)
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewTikTokCollector(&logger, server.URL, "tk-key", "AI", 50)

	posts, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pages != 1 {
		t.Errorf("fetched %d pages, want 1", pages)
	}
	if len(posts) != 0 {
		t.Errorf("got %d posts, want 0", len(posts))
	}
}

func TestJSONToken(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `12`, want: "12"},
		{raw: `"12"`, want: "12"},
		{raw: `"sess-9"`, want: "sess-9"},
		{raw: `null`, want: ""},
		{raw: ``, want: ""},
	}
	for _, tt := range tests {
		if got := jsonToken([]byte(tt.raw)); got != tt.want {
			t.Errorf("jsonToken(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
