package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultImpliedProbability replaces a missing implied probability. An
// unknown probability should not bias value calculations toward zero.
const DefaultImpliedProbability = 50.0

// CoerceFloat reads a number from a decoded JSON value: numbers pass
// through, strings may carry a trailing "%" or a leading "+".
func CoerceFloat(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		s = strings.TrimPrefix(s, "+")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CoercePercent turns "8.5%", "8.5" or 8.5 into 8.5. Missing or
// unparseable values become 0. Applying it to its own output is a no-op.
func CoercePercent(v interface{}) float64 {
	f, _ := CoerceFloat(v)
	return f
}

// coercePercentOr is CoercePercent with a caller-chosen default.
func coercePercentOr(v interface{}, fallback float64) float64 {
	if f, ok := CoerceFloat(v); ok {
		return f
	}
	return fallback
}

// CoerceOdds reads an American price. "EVEN"/"EV" mean +100; anything with
// magnitude under 100 is not an American price.
func CoerceOdds(v interface{}) (int, bool) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "even", "ev", "evs":
			return 100, true
		}
	}
	f, ok := CoerceFloat(v)
	if !ok {
		return 0, false
	}
	odds := int(math.Round(f))
	if odds > -100 && odds < 100 {
		return 0, false
	}
	return odds, true
}

// CoerceLine reads a nullable line. nil and "" mean no line (moneyline);
// the second result is false only when a value was present but unreadable.
func CoerceLine(v interface{}) (*float64, bool) {
	if v == nil {
		return nil, true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, true
	}
	f, ok := CoerceFloat(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

// NormalizeConfidence maps a confidence onto 0-100. Values strictly between
// 0 and 1 are read as fractions.
func NormalizeConfidence(v interface{}) float64 {
	f, ok := CoerceFloat(v)
	if !ok {
		return 0
	}
	if f > 0 && f < 1 {
		f *= 100
	}
	return math.Max(0, math.Min(100, f))
}
