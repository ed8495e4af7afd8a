package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// DiffAbs returns |a-b| without underflow for unsigned operands.
func DiffAbs[T constraints.Integer](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}

// Permille returns part/whole in 0.1% units, rounding down. whole==0 yields 0.
func Permille[T constraints.Integer](part, whole T) T {
	if whole == 0 {
		return 0
	}
	return part * 1000 / whole
}
