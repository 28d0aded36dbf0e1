package mathhelp

import "math"

func BetweenInc(f, p, q int64) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

// WithinGrid reports whether 0 <= i < size.
func WithinGrid(i int64, size uint) bool {
	return size > 0 && BetweenInc(i, 0, int64(size)-1)
}

// AlmostEqual compares a and b with a tolerance relative to the largest magnitude.
// Near zero relTol also serves as an absolute tolerance.
func AlmostEqual(a, b, relTol float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	if diff <= relTol {
		return true
	}
	largest := math.Max(math.Abs(a), math.Abs(b))
	return diff <= largest*relTol
}
