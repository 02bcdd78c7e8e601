package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// DivCeil divides rounding up. Used to turn pixel extents into workgroup counts.
func DivCeil[T constraints.Integer](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
