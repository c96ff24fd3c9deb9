package clipper

import (
	"fmt"
	"math"
	"math/bits"
	"time"
)

// NoPTS marks a packet or frame without a presentation timestamp.
const NoPTS int64 = math.MinInt64

// Rational is a fraction used for time bases and frame rates.
type Rational struct {
	Num int64
	Den int64
}

// Common time bases.
var (
	NanosecondTimeBase  = Rational{1, int64(time.Second)}
	MillisecondTimeBase = Rational{1, 1000}
)

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Float64 returns the fraction as a float, 0 for an invalid rational.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert swaps numerator and denominator (frame rate <-> frame duration).
func (r Rational) Invert() Rational { return Rational{r.Den, r.Num} }

// Equal compares the reduced values.
func (r Rational) Equal(o Rational) bool {
	return r.Num*o.Den == o.Num*r.Den
}

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// RationalFromFloat approximates f with a denominator of 1001 or 1 when exact.
func RationalFromFloat(f float64) Rational {
	if f <= 0 {
		return Rational{}
	}
	if f == math.Trunc(f) {
		return Rational{int64(f), 1}
	}
	// 29.97, 59.94 and friends
	if n := f * 1001; math.Abs(n-math.Round(n)) < 1e-3 {
		return Rational{int64(math.Round(n)), 1001}
	}
	return Rational{int64(math.Round(f * 1000)), 1000}
}

// Rescale converts v from one time base to another, rounding to nearest with
// halves away from zero. NoPTS is passed through unchanged.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoPTS {
		return NoPTS
	}
	return mulDivRound(v, from.Num*to.Den, from.Den*to.Num)
}

// DurationToPTS converts a wall-clock offset to ticks of tb.
func DurationToPTS(d time.Duration, tb Rational) int64 {
	return Rescale(int64(d), NanosecondTimeBase, tb)
}

// PTSToDuration converts ticks of tb to a wall-clock offset.
func PTSToDuration(pts int64, tb Rational) time.Duration {
	if pts == NoPTS {
		return 0
	}
	return time.Duration(Rescale(pts, tb, NanosecondTimeBase))
}

// mulDivRound computes a*b/c with a 128-bit intermediate. Results that do not
// fit in an int64 are clamped.
func mulDivRound(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	neg := false
	if a < 0 {
		neg = !neg
	}
	if b < 0 {
		neg = !neg
	}
	if c < 0 {
		neg = !neg
	}
	ua, ub, uc := absU64(a), absU64(b), absU64(c)

	hi, lo := bits.Mul64(ua, ub)
	var carry uint64
	lo, carry = bits.Add64(lo, uc/2, 0)
	hi += carry
	if hi >= uc {
		if neg {
			return math.MinInt64 + 1
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		if neg {
			return math.MinInt64 + 1
		}
		return math.MaxInt64
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}
