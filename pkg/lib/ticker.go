package lib

import (
	"math/rand"
	"time"
)

// NewJitteredTicker returns a ticker whose period is the given duration
// plus a random jitter of up to 10%.
//
// Periodic collection runs use this so that restarts don't line up
// all sources on the same instant.
func NewJitteredTicker(d time.Duration) *time.Ticker {
	jitter := time.Duration(rand.Int63n(int64(d / 10)))
	return time.NewTicker(d + jitter)
}
