package metrics

import (
	"math"

	"cellscope/domain/cycling"
)

// Areal-capacity confidence limits
const (
	ArealMaxDeviationPct  = 20.0
	ArealMinEfficiencyPct = 80.0
)

// ArealCapacity is the areal capacity estimate plus the evidence behind it.
// ReferenceCycle is the 1-based position of the row the reference came from.
type ArealCapacity struct {
	Value                 float64  `json:"areal_capacity"`
	ReferenceCycle        int      `json:"reference_cycle"`
	DeviationFromFirstPct *float64 `json:"deviation_from_first_pct,omitempty"`
	ReferenceEfficiency   *float64 `json:"reference_efficiency,omitempty"`
	LowConfidence         bool     `json:"low_confidence"`
}

// ComputeArealCapacity divides a reference discharge capacity (mA·h) by the
// disc area (cm²). Rows 3 and 4 are preferred, taking the larger; then
// whichever of them exists; then the last row. The result is marked low
// confidence when the reference differs from row 1 by more than 20% or the
// reference row's efficiency is below 80%. efficiencyPct may be nil.
func ComputeArealCapacity(discharge []float64, efficiencyPct []float64, discAreaCm2 float64) (ArealCapacity, bool) {
	n := len(discharge)
	if n == 0 || !(discAreaCm2 > 0) {
		return ArealCapacity{}, false
	}

	at := func(i int) (float64, bool) {
		if i >= n || cycling.IsMissing(discharge[i]) {
			return 0, false
		}
		return math.Abs(discharge[i]), true
	}
	v1, has1 := at(0)
	v3, has3 := at(2)
	v4, has4 := at(3)

	var ref float64
	var refCycle int
	switch {
	case has3 && has4:
		ref, refCycle = v3, 3
		if v4 >= v3 {
			ref, refCycle = v4, 4
		}
	case has3:
		ref, refCycle = v3, 3
	case has4:
		ref, refCycle = v4, 4
	default:
		last, ok := at(n - 1)
		if !ok {
			return ArealCapacity{}, false
		}
		ref, refCycle = last, n
	}

	out := ArealCapacity{Value: ref / discAreaCm2, ReferenceCycle: refCycle}

	if has1 && refCycle != 1 && v1 != 0 {
		dev := math.Abs(ref-v1) / v1 * 100.0
		out.DeviationFromFirstPct = cycling.Float(dev)
		if dev > ArealMaxDeviationPct {
			out.LowConfidence = true
		}
	}
	if refCycle-1 < len(efficiencyPct) {
		if eff := efficiencyPct[refCycle-1]; !cycling.IsMissing(eff) {
			out.ReferenceEfficiency = cycling.Float(eff)
			if eff < ArealMinEfficiencyPct {
				out.LowConfidence = true
			}
		}
	}
	return out, true
}
