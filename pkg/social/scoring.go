package social

import (
	"time"

	"github.com/aifeedco/aifeed/pkg/lib"
)

// TikTokViralScore rates a TikTok video by how far it spread relative to its
// author's reach. Videos under 100k views or from accounts under 100
// followers score zero; there is not enough signal to call those viral.
func TikTokViralScore(views, followers, likes, comments, shares int64) float64 {
	if views < 100_000 || followers < 100 {
		return 0
	}

	v := float64(views)
	score := float64(views)/float64(followers)*3 +
		float64(likes)/v*1 +
		float64(comments)/v*5 +
		float64(shares)/v*10

	return lib.RoundTo(score, 2)
}

// TwitterEngagementScore weights tweet interactions by effort: retweets and
// quotes amplify reach, replies cost more than likes.
func TwitterEngagementScore(likes, retweets, replies, quotes int64) float64 {
	return float64(likes) + 2*float64(retweets) + 1.5*float64(replies) + 2*float64(quotes)
}

// RedditViralScore maps a post's upvotes to a 0-10 tier, with bonuses for
// heavy discussion and for being fresh relative to now.
func RedditViralScore(ups, comments int64, published, now time.Time) float64 {
	var score float64
	switch {
	case ups <= 0:
		score = 0
	case ups < 100:
		score = 3
	case ups < 500:
		score = 5
	case ups < 1000:
		score = 7
	case ups < 5000:
		score = 8
	default:
		score = 9
	}

	if comments > 500 {
		score += 1.0
	} else if comments > 100 {
		score += 0.5
	}

	age := now.Sub(published)
	if age < 6*time.Hour {
		score += 0.5
	} else if age < 24*time.Hour {
		score += 0.3
	}

	return lib.Clamp(score, 0, 10)
}
