package domain

import "time"

// ReputationRecord aggregates every vouch a user has received.
type ReputationRecord struct {
	UserID     string
	TotalStars int
	Count      int
	Comments   []string
	UpdatedAt  time.Time
}

// Average returns total_stars/count; ok is false when the user was never rated.
func (r ReputationRecord) Average() (avg float64, ok bool) {
	if r.Count <= 0 {
		return 0, false
	}
	return float64(r.TotalStars) / float64(r.Count), true
}
