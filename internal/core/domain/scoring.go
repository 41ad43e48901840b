package domain

// CalculateConfidenceScore calculates a confidence score for an indicator from the
// number of advisory sightings it has in the index.
// This is a pure domain function with no I/O dependencies.
//
// Indicators published by several advisories (or by both artifacts of one advisory)
// score higher than single sightings.
func CalculateConfidenceScore(sightings int) int {
	if sightings <= 0 {
		return 0
	}

	if sightings >= 3 {
		return 90
	} else if sightings >= 2 {
		return 85
	}

	return 80
}
