package util

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMeanAndVariance(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(xs, 0); got != 5 {
		t.Errorf("Mean = %v, want 5", got)
	}
	if got := PopVariance(xs); got != 4 {
		t.Errorf("PopVariance = %v, want 4", got)
	}
	if got := PopStdDev(xs); got != 2 {
		t.Errorf("PopStdDev = %v, want 2", got)
	}
	if got := Mean(nil, 5); got != 5 {
		t.Errorf("Mean default = %v, want 5", got)
	}
	if got := PopVariance([]float64{3}); got != 0 {
		t.Errorf("single value variance = %v, want 0", got)
	}
}

func TestSlope(t *testing.T) {
	tests := []struct {
		name string
		ys   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{4}, 0},
		{"rising line", []float64{1, 2, 3, 4}, 1},
		{"flat", []float64{5, 5, 5}, 0},
		{"declining", []float64{7, 6, 5, 3, 2, 2, 1}, -1.0357142857142858},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slope(tt.ys); !almostEqual(got, tt.want) {
				t.Errorf("Slope(%v) = %v, want %v", tt.ys, got, tt.want)
			}
		})
	}
}

func TestVolatilityAndRuns(t *testing.T) {
	xs := []float64{7, 6, 5, 3, 2, 2, 1}
	if got := Volatility(xs); !almostEqual(got, 1) {
		t.Errorf("Volatility = %v, want 1", got)
	}
	low := LongestRun(xs, func(v float64) bool { return v <= 4 })
	if low != 4 {
		t.Errorf("LongestRun low = %d, want 4", low)
	}
	high := LongestRun(xs, func(v float64) bool { return v >= 7 })
	if high != 1 {
		t.Errorf("LongestRun high = %d, want 1", high)
	}
}

func TestMinMaxTailClamp(t *testing.T) {
	lo, hi := MinMax([]float64{3, 9, 1}, 5)
	if lo != 1 || hi != 9 {
		t.Errorf("MinMax = %v,%v", lo, hi)
	}
	lo, hi = MinMax(nil, 5)
	if lo != 5 || hi != 5 {
		t.Errorf("MinMax default = %v,%v", lo, hi)
	}
	if got := Tail([]int{1, 2, 3, 4}, 2); len(got) != 2 || got[0] != 3 {
		t.Errorf("Tail = %v", got)
	}
	if got := Tail([]int{1}, 7); len(got) != 1 {
		t.Errorf("Tail short = %v", got)
	}
	if Clamp(1.4, 0, 1) != 1 || Clamp(-2, 0, 1) != 0 {
		t.Error("Clamp out of bounds")
	}
	if Ratio(1, 0) != 0 || Finite(math.NaN()) != 0 {
		t.Error("Ratio/Finite should guard zero and NaN")
	}
}
