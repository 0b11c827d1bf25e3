package oddsmath

import (
	"fmt"
	"math"
)

// AmericanToDecimal converts American odds to decimal odds
// American +150 → Decimal 2.50
// American -150 → Decimal 1.67
func AmericanToDecimal(american int) (float64, error) {
	if american > -100 && american < 100 {
		return 0, fmt.Errorf("invalid American odds %d: magnitude must be at least 100", american)
	}

	if american > 0 {
		return (float64(american) / 100.0) + 1.0, nil
	}

	return (100.0 / float64(-american)) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to American odds
func DecimalToAmerican(decimal float64) (int, error) {
	if decimal <= 1.0 {
		return 0, fmt.Errorf("invalid decimal odds: must be > 1.0")
	}

	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}

	return int(math.Round(-100.0 / (decimal - 1.0))), nil
}

// ImpliedProbabilityPercent returns the break-even win probability of an
// American price on a 0-100 scale.
// -110 → 52.38, +150 → 40.00
func ImpliedProbabilityPercent(american int) (float64, error) {
	decimal, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return 100.0 / decimal, nil
}

// FairAmericanOdds converts a 0-100 win probability into the no-vig American price.
// 50 → +100, 60 → -150
func FairAmericanOdds(probabilityPercent float64) (int, error) {
	if probabilityPercent <= 0 || probabilityPercent >= 100 {
		return 0, fmt.Errorf("invalid probability %.2f: must be between 0 and 100", probabilityPercent)
	}
	return DecimalToAmerican(100.0 / probabilityPercent)
}

// DistanceFromEven measures how far a price sits from even money (±100).
// -110 and +110 are both 10 away; -300 is 200 away.
func DistanceFromEven(american int) int {
	if american < 0 {
		american = -american
	}
	return int(math.Abs(float64(american - 100)))
}

// Round2 rounds to two decimal places for storage and display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
