package search

type Config struct {
	// FavoriteBoost is added to the similarity of favorited articles before
	// ranking. The boosted score is clamped to 1.
	FavoriteBoost float64 `env:"SEARCH_FAVORITE_BOOST,default=0.2"`
	// MinCandidates floors the fast-path over-fetch so deduplication still
	// has enough rows to work with for small topK values.
	MinCandidates int `env:"SEARCH_MIN_CANDIDATES,default=20"`
}
