package enrich

// Config tunes article analysis.
type Config struct {
	// Concurrency bounds parallel analysis calls.
	Concurrency int `env:"ENRICH_CONCURRENCY,default=3"`
	// MaxAgeDays bounds how far back AnalyzeRecent reaches.
	MaxAgeDays int `env:"ENRICH_MAX_AGE_DAYS,default=3"`
	// RecentLimit caps the number of articles in one AnalyzeRecent batch.
	RecentLimit int `env:"ENRICH_RECENT_LIMIT,default=50"`
}
