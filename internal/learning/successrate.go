package learning

import "math"

// NextSuccessRate recomputes a success rate after one more scored outcome.
//
// usage is the current usage count, which already includes the use being
// scored. The previous rate is converted back to a success count over the
// first usage-1 uses, the new outcome is added, and the rate is recomputed:
//
//	prior     = round(rate * (usage-1) / 100)
//	successes = prior + 1 if success, else prior
//	rate      = round(successes / usage * 100)
func NextSuccessRate(rate, usage int, success bool) int {
	if usage < 1 {
		usage = 1
	}
	rate = min(max(rate, 0), 100)

	prior := int(math.Round(float64(rate) * float64(usage-1) / 100))
	successes := prior
	if success {
		successes++
	}
	successes = min(successes, usage)

	next := int(math.Round(float64(successes) / float64(usage) * 100))
	return min(max(next, 0), 100)
}
