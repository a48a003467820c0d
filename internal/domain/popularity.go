package domain

import "math"

// Popularity weights are policy, shared by the document builder, the
// statistics updater and the server-side procedure so every path produces
// the same score.
const (
	WeightRating   = 0.35
	WeightReviews  = 0.25
	WeightBookings = 0.30
	WeightViews    = 0.10
)

// PopularityScore combines rating (0..5 scale) and log-damped engagement
// counts into one ranking metric.
func PopularityScore(rating float64, reviews, bookings, views int64) float64 {
	return WeightRating*rating*20 +
		WeightReviews*damp(reviews) +
		WeightBookings*damp(bookings) +
		WeightViews*damp(views)
}

func damp(n int64) float64 {
	if n <= 0 {
		return 0
	}
	return 10 * math.Log1p(float64(n))
}
