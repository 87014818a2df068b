package collector

import "time"

// Config tunes the collection pipeline.
type Config struct {
	// SourceConcurrency bounds how many sources are collected in parallel.
	SourceConcurrency int `env:"COLLECTOR_SOURCE_CONCURRENCY,default=5"`
	// ContentConcurrency bounds parallel full-content fetches per source.
	ContentConcurrency int `env:"COLLECTOR_CONTENT_CONCURRENCY,default=3"`
	// AIEnabled enriches newly collected articles when true.
	AIEnabled bool `env:"COLLECTOR_AI_ENABLED,default=true"`
	// ScheduleEnabled runs collection periodically in the server process.
	ScheduleEnabled bool `env:"COLLECTOR_SCHEDULE_ENABLED,default=false"`
	// Interval is the period between scheduled runs.
	Interval time.Duration `env:"COLLECTOR_INTERVAL,default=2h"`

	// GitHubToken raises the GitHub API rate limit. Anonymous access
	// serves public repositories without it.
	GitHubToken string `env:"GITHUB_TOKEN"`
	// MastodonServer is the instance whose hashtag timelines are read.
	MastodonServer string `env:"MASTODON_SERVER,default=https://mastodon.social"`
}
