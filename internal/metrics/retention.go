package metrics

import (
	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
)

// Early-cycle window averaged for the retention reference capacity
const (
	RetentionWindowStart = 5
	RetentionWindowEnd   = 10
)

// MinFadeRatePoints is the number of valid points the fade-rate regression needs
const MinFadeRatePoints = 10

// ComputeRetention returns current capacity as a percentage of an early-cycle
// reference, rounded to two decimals. The reference is the mean positive
// capacity over cycles 5-10, or the first positive capacity when that window
// is empty or cycle numbers are unavailable (nil). Needs two positive points.
func ComputeRetention(capacities []float64, cycles []int) *float64 {
	var valid []float64
	var window []float64
	for i, c := range capacities {
		if cycling.IsMissing(c) || c <= 0 {
			continue
		}
		valid = append(valid, c)
		if i < len(cycles) && cycles[i] >= RetentionWindowStart && cycles[i] <= RetentionWindowEnd {
			window = append(window, c)
		}
	}
	if len(valid) < 2 {
		return nil
	}

	initial := valid[0]
	if len(window) > 0 {
		mean, err := stats.Mean(window)
		if err == nil {
			initial = mean
		}
	}
	current := valid[len(valid)-1]
	return cycling.Float(round(current/initial*100.0, 2))
}

// ComputeFadeRate returns capacity fade in percent of initial capacity lost per
// 100 cycles, rounded to three decimals. Capacity is normalised to the first
// positive point and regressed against cycle number over points with positive
// capacity and cycle. When the regression is undefined a two-point estimate
// over the first and last valid points is used.
func ComputeFadeRate(capacities []float64, cycles []int) *float64 {
	if len(cycles) == 0 {
		return nil
	}

	var xs, caps []float64
	for i, c := range capacities {
		if i >= len(cycles) {
			break
		}
		if cycling.IsMissing(c) || c <= 0 || cycles[i] <= 0 {
			continue
		}
		xs = append(xs, float64(cycles[i]))
		caps = append(caps, c)
	}
	if len(caps) < MinFadeRatePoints {
		return nil
	}

	initial := caps[0]
	retention := make([]float64, len(caps))
	for i, c := range caps {
		retention[i] = c / initial * 100.0
	}

	if slope, ok := LinearSlope(xs, retention); ok {
		return cycling.Float(round(-slope*100.0, 3))
	}

	span := xs[len(xs)-1] - xs[0]
	if span <= 0 {
		return nil
	}
	return cycling.Float(round((retention[0]-retention[len(retention)-1])/span*100.0, 3))
}
