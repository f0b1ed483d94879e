package domain

import "math"

// SummarizeRatings computes the aggregate for a set of overall scores: the
// mean rounded to one decimal place plus the count. An empty slice yields the
// zero summary, which callers persist as-is to reset stale aggregates.
func SummarizeRatings(scores []int) RatingSummary {
	if len(scores) == 0 {
		return RatingSummary{}
	}
	var sum int
	for _, score := range scores {
		sum += score
	}
	mean := float64(sum) / float64(len(scores))
	return RatingSummary{
		Average: math.Round(mean*10) / 10,
		Count:   len(scores),
	}
}
