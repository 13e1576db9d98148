package util

import "math"

// Mean returns the arithmetic mean of xs, or def when xs is empty.
func Mean(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopVariance returns the population variance of xs. Fewer than two values
// yield 0.
func PopVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs, 0)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

// PopStdDev returns the population standard deviation of xs.
func PopStdDev(xs []float64) float64 {
	return math.Sqrt(PopVariance(xs))
}

// Slope fits y = a + b*i by ordinary least squares, where i is the sequential
// index of each value, and returns b. Irregular sampling cadence does not
// affect the result. Fewer than two values yield 0.
func Slope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := Mean(ys, 0)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Volatility returns the mean absolute change between consecutive values.
func Volatility(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(xs); i++ {
		sum += math.Abs(xs[i] - xs[i-1])
	}
	return sum / float64(len(xs)-1)
}

// LongestRun returns the length of the longest run of consecutive values
// satisfying pred.
func LongestRun(xs []float64, pred func(float64) bool) int {
	best, cur := 0, 0
	for _, x := range xs {
		if pred(x) {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

// MinMax returns the smallest and largest value, or (def, def) when empty.
func MinMax(xs []float64, def float64) (float64, float64) {
	if len(xs) == 0 {
		return def, def
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// Tail returns the last n elements of xs (all of them when shorter).
func Tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Ratio returns num/den, or 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Finite replaces NaN and infinities with 0 so a feature value is always usable.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
