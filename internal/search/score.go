package search

import (
	"math"
	"time"
)

// Scoring constants.
const (
	// maxStars normalizes repository stars into [0,1].
	maxStars = 500000
	// maxAgeDays is the horizon beyond which recency contributes nothing.
	maxAgeDays = 365
)

// Combined-score weights. Popularity is currently excluded from the default
// ranking; the term stays in the formula because the weight is a tunable,
// not dead code.
const (
	wSimilarity = 0.70
	wRecency    = 0.30
	wStars      = 0.00
)

// CombinedScore blends the index's semantic similarity with recency and
// popularity into the default ranking key. Pure and deterministic; the
// result is rounded to 4 decimal places and lies in [0,1] for valid inputs.
//
// An unparseable updatedAt yields a neutral recency of 0.5 rather than an
// error: the candidate is still scored, never dropped.
func CombinedScore(similarity float64, stars int, updatedAt string, now time.Time) float64 {
	starsScore := math.Min(float64(stars)/maxStars, 1.0)

	recencyScore := 0.5
	if updated, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		ageDays := int(now.Sub(updated).Hours() / 24)
		recencyScore = math.Max(0, 1-float64(ageDays)/maxAgeDays)
	}

	combined := wSimilarity*similarity + wRecency*recencyScore + wStars*starsScore
	return math.Round(combined*10000) / 10000
}
