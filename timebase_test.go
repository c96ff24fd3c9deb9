package clipper

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		name     string
		v        int64
		from, to Rational
		want     int64
	}{
		{"ms to 90k", 1000, MillisecondTimeBase, Rational{1, 90000}, 90000},
		{"90k to ms rounds to nearest", 135, Rational{1, 90000}, MillisecondTimeBase, 2},
		{"half rounds away from zero", 1, Rational{1, 2}, Rational{1, 1}, 1},
		{"negative half rounds away from zero", -1, Rational{1, 2}, Rational{1, 1}, -1},
		{"frame ticks to 48k", 3, Rational{1, 30}, Rational{1, 48000}, 4800},
		{"no pts passes through", NoPTS, MillisecondTimeBase, Rational{1, 90000}, NoPTS},
		{"overflow clamps", math.MaxInt64 / 2, Rational{1, 1}, Rational{1, 1000}, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rescale(tt.v, tt.from, tt.to))
		})
	}
}

func TestDurationToPTS(t *testing.T) {
	tb := Rational{1, 30}
	assert.Equal(t, int64(60), DurationToPTS(2*time.Second, tb))
	assert.Equal(t, 2*time.Second, PTSToDuration(60, tb))

	// Monotone non-decreasing in the duration.
	prev := DurationToPTS(0, tb)
	for d := time.Duration(0); d < time.Second; d += 7 * time.Millisecond {
		cur := DurationToPTS(d, tb)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestRationalFromFloat(t *testing.T) {
	assert.Equal(t, Rational{30, 1}, RationalFromFloat(30))
	assert.Equal(t, Rational{30000, 1001}, RationalFromFloat(29.97002997))
	assert.Equal(t, Rational{}, RationalFromFloat(0))
	assert.True(t, Rational{60, 2}.Equal(Rational{30, 1}))
}
