package metrics

import "cellscope/domain/cycling"

// CycleLifeThreshold is the retained fraction of reference capacity that marks end of life
const CycleLifeThreshold = 0.8

// ComputeCycleLife returns the cycle number at which discharge capacity first
// falls to 80% of the reference capacity.
//
// Missing capacities are dropped first. The reference is the larger of the
// third and fourth points (the fourth on ties), or the last point when fewer
// than four exist. Only points after both the reference point and the
// formation window are scanned, so formation-stage scatter cannot end a cell's
// life. A cell that never crosses the threshold reports its last cycle.
func ComputeCycleLife(capacities []float64, cycles []int, formationCycles int) *int {
	n := len(capacities)
	if len(cycles) < n {
		n = len(cycles)
	}

	caps := make([]float64, 0, n)
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if cycling.IsMissing(capacities[i]) {
			continue
		}
		caps = append(caps, capacities[i])
		idx = append(idx, cycles[i])
	}
	if len(caps) == 0 {
		return nil
	}

	ref := len(caps) - 1
	if len(caps) >= 4 {
		ref = 2
		if caps[3] >= caps[2] {
			ref = 3
		}
	}
	threshold := CycleLifeThreshold * caps[ref]

	start := ref + 1
	if formationCycles > start {
		start = formationCycles
	}
	for i := start; i < len(caps); i++ {
		if caps[i] <= threshold {
			return cycling.Int(idx[i])
		}
	}
	return cycling.Int(idx[len(idx)-1])
}
