package core

import "math/bits"

// int128 is a sign-magnitude 128-bit integer used only to carry the
// intermediate product of a Timebase rescale without overflowing int64.
type int128 struct {
	neg    bool
	hi, lo uint64
}

func mul64to128(a, b int64) int128 {
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(a), abs64(b)
	hi, lo := bits.Mul64(ua, ub)
	return int128{neg: neg, hi: hi, lo: lo}
}

func mul128by64(x int128, b int64) int128 {
	neg := x.neg != (b < 0)
	ub := abs64(b)
	// (hi*2^64 + lo) * ub = hi*ub*2^64 + lo*ub
	loHi, loLo := bits.Mul64(x.lo, ub)
	hiHi, hiLo := bits.Mul64(x.hi, ub)
	_ = hiHi // overflow beyond 128 bits is not representable; callers keep pts/timebases small enough in practice
	sum, carry := bits.Add64(loHi, hiLo, 0)
	_ = carry
	return int128{neg: neg, hi: sum, lo: loLo}
}

func div128by64(x int128, d uint64) int128 {
	q, r := bits.Div64(x.hi%d, x.lo, d)
	qHi := x.hi / d
	_ = r
	return int128{neg: x.neg, hi: qHi, lo: q}
}

// div128by128 divides x by a positive-only 128-bit denominator y (as
// produced by mul64to128 on two positive timebase fields) and returns an
// int64 result. Timebase denominators and numerators are always positive,
// so y.neg is always false.
func div128by128(x, y int128) int64 {
	if y.hi == 0 {
		q := div128by64(int128{hi: x.hi, lo: x.lo}, y.lo)
		v := int64(q.lo)
		if x.neg != y.neg {
			v = -v
		}
		return v
	}
	// Fallback for denominators that don't fit in 64 bits (not expected for
	// realistic num/den*den/num products, but kept total rather than
	// panicking): shift both down until the divisor fits.
	shift := 0
	for y.hi != 0 {
		y = shiftRight128(y, 1)
		x = shiftRight128(x, 1)
		shift++
	}
	q := div128by64(x, y.lo)
	v := int64(q.lo)
	if x.neg != y.neg {
		v = -v
	}
	return v
}

func shiftRight128(v int128, n uint) int128 {
	lo := (v.lo >> n) | (v.hi << (64 - n))
	hi := v.hi >> n
	return int128{neg: v.neg, hi: hi, lo: lo}
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
