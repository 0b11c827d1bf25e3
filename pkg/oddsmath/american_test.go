package oddsmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		american int
		expected float64
		wantErr  bool
	}{
		{name: "plus 150", american: 150, expected: 2.5},
		{name: "minus 150", american: -150, expected: 1.6667},
		{name: "even money", american: 100, expected: 2.0},
		{name: "minus 100", american: -100, expected: 2.0},
		{name: "zero is invalid", american: 0, wantErr: true},
		{name: "inside dead zone", american: -50, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmericanToDecimal(tt.american)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestImpliedProbabilityPercent(t *testing.T) {
	p, err := ImpliedProbabilityPercent(-110)
	require.NoError(t, err)
	assert.InDelta(t, 52.38, p, 0.01)

	p, err = ImpliedProbabilityPercent(150)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, p, 0.01)
}

func TestFairAmericanOdds(t *testing.T) {
	tests := []struct {
		prob     float64
		expected int
		wantErr  bool
	}{
		{prob: 50, expected: 100},
		{prob: 60, expected: -150},
		{prob: 40, expected: 150},
		{prob: 0, wantErr: true},
		{prob: 100, wantErr: true},
	}

	for _, tt := range tests {
		got, err := FairAmericanOdds(tt.prob)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestDistanceFromEven(t *testing.T) {
	assert.Equal(t, 10, DistanceFromEven(-110))
	assert.Equal(t, 10, DistanceFromEven(110))
	assert.Equal(t, 0, DistanceFromEven(100))
	assert.Equal(t, 200, DistanceFromEven(-300))
}
