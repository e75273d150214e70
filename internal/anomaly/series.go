package anomaly

import (
	"math"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
)

// present drops missing values, keeping each value's cycle number
func present(values []float64, cycles []int) ([]float64, []int) {
	vs := make([]float64, 0, len(values))
	cs := make([]int, 0, len(values))
	for i, v := range values {
		if cycling.IsMissing(v) {
			continue
		}
		vs = append(vs, v)
		if i < len(cycles) {
			cs = append(cs, cycles[i])
		} else {
			cs = append(cs, i+1)
		}
	}
	return vs, cs
}

// argmax returns the index of the largest value, -1 for an empty slice
func argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if cycling.IsMissing(v) {
			continue
		}
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

func argmin(values []float64) int {
	best := -1
	for i, v := range values {
		if cycling.IsMissing(v) {
			continue
		}
		if best < 0 || v < values[best] {
			best = i
		}
	}
	return best
}

// initialCapacity is the largest of the first three capacities
func initialCapacity(values []float64) float64 {
	n := len(values)
	if n > 3 {
		n = 3
	}
	best := math.Inf(-1)
	for _, v := range values[:n] {
		best = math.Max(best, v)
	}
	return best
}

func missingFraction(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if cycling.IsMissing(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func one(f flags.Flag) []flags.Flag {
	return []flags.Flag{f}
}
