package heuristics

import "math"

// meanStdDev returns the mean and population standard deviation of values
func meanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	varianceSum := 0.0
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}
	stddev = math.Sqrt(varianceSum / float64(len(values)))
	return mean, stddev
}

// coefficientOfVariation returns σ/μ, and false when μ is not positive
func coefficientOfVariation(values []float64) (float64, bool) {
	mean, stddev := meanStdDev(values)
	if mean <= 0 {
		return 0, false
	}
	return stddev / mean, true
}

// clamp01 bounds v to [0, 1]
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
