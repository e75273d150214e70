package cycling

import (
	"math"
	"sort"

	"cellscope/domain/core"
)

// NormalizeSeries orders records by cycle index and drops repeated indices,
// keeping the first occurrence. It fails only for structurally unusable input:
// an empty series, a non-positive cycle index, or a series without a single
// capacity measurement.
func NormalizeSeries(records []CycleRecord) ([]CycleRecord, error) {
	if len(records) == 0 {
		return nil, core.ErrEmptySeries
	}

	out := make([]CycleRecord, len(records))
	copy(out, records)

	hasCapacity := false
	for i, r := range out {
		if r.CycleIndex <= 0 {
			return nil, core.NewMalformedSeriesError(i, "cycle index must be positive")
		}
		if !IsMissing(r.ChargeCapacity) || !IsMissing(r.DischargeCapacity) {
			hasCapacity = true
		}
	}
	if !hasCapacity {
		return nil, core.NewMalformedSeriesError(0, "no capacity values")
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CycleIndex < out[j].CycleIndex })

	deduped := out[:1]
	for _, r := range out[1:] {
		if r.CycleIndex == deduped[len(deduped)-1].CycleIndex {
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped, nil
}

// CycleIndices extracts the cycle index column
func CycleIndices(records []CycleRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.CycleIndex
	}
	return out
}

// DischargeSeries extracts raw discharge capacities in mA·h
func DischargeSeries(records []CycleRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.DischargeCapacity
	}
	return out
}

// SpecificDischargeSeries converts discharge capacity to mAh/g of active
// material. Every entry is NaN when the active mass is unknown.
func SpecificDischargeSeries(records []CycleRecord, meta CellMetadata) []float64 {
	return specific(records, meta, func(r CycleRecord) float64 { return r.DischargeCapacity })
}

// SpecificChargeSeries converts charge capacity to mAh/g of active material
func SpecificChargeSeries(records []CycleRecord, meta CellMetadata) []float64 {
	return specific(records, meta, func(r CycleRecord) float64 { return r.ChargeCapacity })
}

func specific(records []CycleRecord, meta CellMetadata, pick func(CycleRecord) float64) []float64 {
	mass := meta.ActiveMassGrams()
	out := make([]float64, len(records))
	for i, r := range records {
		if mass <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pick(r) / mass
	}
	return out
}

// BundleKey digests everything that determines a cell's metric bundle: the
// raw series, the formation window and the project type, plus the identity and
// mass/geometry fields that scale the raw series.
func BundleKey(data CellData) core.Hash {
	m := data.Metadata
	h := core.NewSeriesHasher()
	h.AddInt(m.FormationCyclesOrDefault())
	h.AddString(string(m.ProjectType))
	h.AddString(string(m.CellID))
	h.AddString(m.CellName)
	h.AddString(string(m.ExperimentID))
	h.AddString(m.ExperimentName)
	h.AddFloat(m.LoadingMg)
	h.AddFloat(m.ActiveMaterialPct)
	h.AddOptional(m.DiscMassMg)
	h.AddOptional(m.DiscDiameterMm)
	h.AddOptional(m.PressedThicknessUm)
	for _, c := range m.Formulation {
		h.AddString(c.Component)
		h.AddFloat(c.DryMassFractionPct)
	}
	h.AddInt(len(data.Cycles))
	for _, r := range data.Cycles {
		h.AddInt(r.CycleIndex)
		h.AddFloat(r.ChargeCapacity)
		h.AddFloat(r.DischargeCapacity)
		h.AddOptional(r.Efficiency)
	}
	return h.Sum()
}
