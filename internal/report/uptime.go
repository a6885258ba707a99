package report

// EstimateDowntimeMinutes converts failed health checks into downtime minutes
// as failedChecks × (1440 / totalChecks).
//
// Known approximation: the formula assumes checks are evenly spaced across the
// day. With irregular check intervals it misestimates downtime, sometimes
// systematically. It is kept as the documented reporting basis rather than
// silently replaced.
func EstimateDowntimeMinutes(totalChecks, failedChecks int64) float64 {
	if totalChecks <= 0 {
		return 0
	}
	minutesPerCheck := 1440.0 / float64(totalChecks)
	return float64(failedChecks) * minutesPerCheck
}

// AvailabilityPercent derives the availability figure from check counts.
func AvailabilityPercent(totalChecks, failedChecks int64) float64 {
	if totalChecks <= 0 {
		return 100
	}
	return 100 * float64(totalChecks-failedChecks) / float64(totalChecks)
}
