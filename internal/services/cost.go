package services

import "math"

// MinimumCharge is billed when the composed duration is zero or unusable.
// Submissions are also refused (advisory only) below this balance.
const MinimumCharge = 100

// CreditCost returns ceil(durationSeconds/60*100). Zero, negative, NaN, and
// infinite durations cost MinimumCharge and report anomalous=true.
func CreditCost(durationSeconds float64) (cost int, anomalous bool) {
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds <= 0 {
		return MinimumCharge, true
	}
	// Multiply first: 36*100/60 is exact where 36/60*100 is not.
	c := math.Ceil(durationSeconds * 100 / 60)
	if c <= 0 || c > math.MaxInt32 {
		return MinimumCharge, true
	}
	return int(c), false
}
