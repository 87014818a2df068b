package social

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTwitterCollectorCollect(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "tw-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		if r.URL.Path != "/advanced_search" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("queryType"); got != "Top" {
			t.Errorf("queryType = %q", got)
		}

		pages++
		w.Header().Set("Content-Type", "application/json")
		switch pages {
		case 1:
			if got := r.URL.Query().Get("cursor"); got != "" {
				t.Errorf("first page cursor = %q", got)
			}
			fmt.Fprint(w, `{"tweets":[
				{"id":"t1","text":"GPT-5 rumors are heating up","author":{"id":"u1","userName":"mlnews"},
				 "likeCount":2000,"retweetCount":500,"replyCount":100,"quoteCount":50,"viewCount":50000,
				 "createdAt":"Sat Jan 17 08:00:01 +0000 2026","twitterUrl":"https://x.com/mlnews/status/t1"},
				{"id":"t2","text":"gm","author":{"id":"u2","userName":"smalltalk"},
				 "likeCount":10,"retweetCount":1,"replyCount":0,"quoteCount":0,"viewCount":200000,
				 "createdAt":"Sat Jan 17 09:00:01 +0000 2026"}
			],"hasMore":true,"cursor":"next1"}`)
		case 2:
			if got := r.URL.Query().Get("cursor"); got != "next1" {
				t.Errorf("second page cursor = %q", got)
			}
			// High engagement but too few views.
			fmt.Fprint(w, `{"tweets":[
				{"id":"t3","text":"niche thread","author":{"id":"u3","userName":"deepdive"},
				 "likeCount":5000,"retweetCount":100,"replyCount":40,"quoteCount":5,"viewCount":5000,
				 "createdAt":"Sat Jan 17 10:00:01 +0000 2026"}
			],"hasMore":false,"cursor":""}`)
		default:
			t.Error("unexpected extra page request")
			fmt.Fprint(w, `{"tweets":[],"hasMore":false}`)
		}
	}))
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	c := NewTwitterCollector(&logger, server.URL, "tw-key", "AI", 50)

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
	if post.PostID != "t1" {
		t.Errorf("post id = %q", post.PostID)
	}
	if post.AuthorName != "mlnews" {
		t.Errorf("author = %q", post.AuthorName)
	}
	if post.PostURL != "https://x.com/mlnews/status/t1" {
		t.Errorf("post url = %q", post.PostURL)
	}
	if post.CommentCount != 100 || post.ShareCount != 500 {
		t.Errorf("replies/retweets = %d/%d", post.CommentCount, post.ShareCount)
	}
	if post.ViralScore == nil {
		t.Fatal("expected engagement score")
	}
	// 2000 + 2*500 + 1.5*100 + 2*50
	if *post.ViralScore != 3250 {
		t.Errorf("engagement = %v, want 3250", *post.ViralScore)
	}
	if post.PublishedAt == nil {
		t.Fatal("expected published time")
	}
	want := time.Date(2026, 1, 17, 8, 0, 1, 0, time.UTC)
	if !post.PublishedAt.Equal(want) {
		t.Errorf("published at = %v, want %v", post.PublishedAt, want)
	}
}

func TestTwitterCollectorFallbackURL(t *testing.T) {
	c := &TwitterCollector{}
	post, ok := c.toPost(twitterTweet{ID: "t9", Text: "hello"})
	if !ok {
		t.Fatal("expected post")
	}
	if post.PostURL != "https://twitter.com/i/status/t9" {
		t.Errorf("post url = %q", post.PostURL)
	}
	if post.PublishedAt != nil {
		t.Error("unparseable timestamp should leave published time unset")
	}

	if _, ok := c.toPost(twitterTweet{Text: "no id"}); ok {
		t.Error("tweet without id should be dropped")
	}
}
