package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGlobalDegradation_Staircase(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		expected int
	}{
		{0, 0},
		{Day - time.Microsecond, 0},
		{Day, 5},
		{Week - time.Second, 5},
		{Week, 10},
		{Month - time.Second, 10},
		{Month, 25},
		{Year - time.Second, 25},
		{Year, 50},
		{10 * Year, 50},
	}

	for _, tc := range tests {
		got := GlobalDegradation(t0.Add(tc.elapsed), t0)
		assert.Equal(t, tc.expected, got, "elapsed %s", tc.elapsed)
	}
}

func TestGlobalDegradation_MonotonicAndBounded(t *testing.T) {
	allowed := map[int]bool{0: true, 5: true, 10: true, 25: true, 50: true}
	prev := -1
	for h := 0; h < 24*400*2; h += 7 {
		got := GlobalDegradation(t0.Add(time.Duration(h)*time.Hour), t0)
		assert.True(t, allowed[got], "unexpected degradation %d", got)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestConfidence_Range(t *testing.T) {
	deltas := []time.Duration{0, time.Hour, 2 * Day, 2 * Week, 2 * Month, 2 * Year}
	for base := -50; base <= 250; base += 25 {
		for _, d := range deltas {
			for _, g := range []int{0, 5, 10, 25, 50} {
				c := Confidence(base, t0.Add(-d), t0, g)
				assert.GreaterOrEqual(t, c, 0)
				assert.LessOrEqual(t, c, 100)
			}
		}
	}
}

func TestConfidence_Ceilings(t *testing.T) {
	// hit on the last load: full range
	assert.Equal(t, 100, Confidence(150, t0, t0, 0))
	assert.Equal(t, 100, Confidence(100, t0.Add(time.Second), t0, 0))

	// missed the last load: capped below preconnect
	assert.Equal(t, 89, Confidence(150, t0.Add(-time.Minute), t0, 0))
	assert.Equal(t, 89, Confidence(100, t0.Add(-time.Hour), t0, 10))
}

func TestConfidence_StalenessPenalty(t *testing.T) {
	tests := []struct {
		name     string
		delta    time.Duration
		expected int
	}{
		{"under a day", time.Hour, 79},
		{"under a week", 2 * Day, 70},
		{"under a month", 2 * Week, 55},
		{"under a year", 2 * Month, 30},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Confidence(80, t0.Add(-tc.delta), t0, 0))
		})
	}

	// a year or more forces zero regardless of base
	assert.Equal(t, 0, Confidence(1000, t0.Add(-Year), t0, 0))
}

func TestConfidence_SubresourceHitOnLastLoad(t *testing.T) {
	base, ok := BaseConfidence(9, 10)
	assert.True(t, ok)
	assert.Equal(t, 90, base)

	c := Confidence(base, t0, t0, GlobalDegradation(t0, t0))
	assert.Equal(t, 90, c)
	assert.Equal(t, Preconnect, Classify(c))
}

func TestConfidence_SubresourceMissedLastLoad(t *testing.T) {
	base, ok := BaseConfidence(5, 10)
	assert.True(t, ok)
	assert.Equal(t, 50, base)

	c := Confidence(base, t0.Add(-2*Day), t0, GlobalDegradation(t0, t0))
	assert.Equal(t, 40, c)
	assert.Equal(t, None, Classify(c))
}

func TestBaseConfidence_ZeroTotal(t *testing.T) {
	_, ok := BaseConfidence(3, 0)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Preconnect, Classify(100))
	assert.Equal(t, Preconnect, Classify(90))
	assert.Equal(t, Preresolve, Classify(89))
	assert.Equal(t, Preresolve, Classify(60))
	assert.Equal(t, None, Classify(59))
	assert.Equal(t, None, Classify(0))
	assert.Equal(t, "preconnect", Preconnect.String())
	assert.Equal(t, "none", None.String())
}
