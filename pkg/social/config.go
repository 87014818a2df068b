package social

import "strings"

// Config holds credentials and tuning for social media collection. A
// platform participates in collection only when its credentials are set.
type Config struct {
	// Query is the search term used on keyword-driven platforms.
	Query string `env:"SOCIAL_QUERY,default=AI"`
	// MaxResults caps how many posts one platform contributes per run.
	MaxResults int `env:"SOCIAL_MAX_RESULTS,default=50"`

	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`
	TikTokAPIKey  string `env:"TIKTOK_API_KEY"`
	TwitterAPIKey string `env:"TWITTER_API_KEY"`

	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	// RedditSubreddits is a comma-separated list of subreddits to scan.
	// envdecode treats commas in defaults as tag separators, so the
	// fallback list lives in Subreddits instead of the tag.
	RedditSubreddits string `env:"SOCIAL_REDDIT_SUBREDDITS"`
	// RedditMinUpvotes drops posts at or below this score.
	RedditMinUpvotes int `env:"SOCIAL_REDDIT_MIN_UPVOTES,default=50"`
}

// Subreddits returns the configured subreddit list, defaulting to the two
// main AI communities. The first one really is spelled with one l.
func (c Config) Subreddits() []string {
	if strings.TrimSpace(c.RedditSubreddits) == "" {
		return []string{"ArtificialInteligence", "artificial"}
	}

	var out []string
	for _, s := range strings.Split(c.RedditSubreddits, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
