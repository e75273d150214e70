// Package metrics turns a cell's cycle series into the scalar metrics of a
// CellMetricBundle. Every function is pure: the same input always produces a
// bit-identical result.
package metrics

import (
	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
	"cellscope/internal/porosity"
)

// DefaultKneeThreshold ends coulombic-efficiency averaging once capacity or
// efficiency falls below this fraction of the previous cycle
const DefaultKneeThreshold = 0.95

// FirstDischargeWindow is the number of leading cycles searched for first discharge
const FirstDischargeWindow = 3

// Calculator computes metric bundles. The zero value is not usable; call
// NewCalculator.
type Calculator struct {
	KneeThreshold float64
	Porosity      *porosity.Calculator
}

// NewCalculator returns a calculator with the default knee threshold and density table
func NewCalculator() *Calculator {
	return &Calculator{
		KneeThreshold: DefaultKneeThreshold,
		Porosity:      porosity.NewCalculator(nil),
	}
}

var defaultCalculator = NewCalculator()

// ComputeCellMetrics uses the default calculator
func ComputeCellMetrics(cycles []cycling.CycleRecord, meta cycling.CellMetadata) (cycling.CellMetricBundle, error) {
	return defaultCalculator.Compute(cycles, meta)
}

// Compute builds a bundle. Only a structurally unusable series is an error;
// any metric the data cannot support is left nil.
func (c *Calculator) Compute(cycles []cycling.CycleRecord, meta cycling.CellMetadata) (cycling.CellMetricBundle, error) {
	records, err := cycling.NormalizeSeries(cycles)
	if err != nil {
		return cycling.CellMetricBundle{}, err
	}

	fc := meta.FormationCyclesOrDefault()
	pt := meta.ProjectType
	indices := cycling.CycleIndices(records)
	discharge := cycling.DischargeSeries(records)
	specific := cycling.SpecificDischargeSeries(records, meta)
	efficiency := cycling.EfficiencySeries(records, pt)

	b := cycling.CellMetricBundle{
		CellID:            meta.CellID,
		CellName:          meta.CellName,
		ExperimentID:      meta.ExperimentID,
		ExperimentName:    meta.ExperimentName,
		ProjectType:       pt,
		LoadingMg:         meta.LoadingMg,
		ActiveMaterialPct: meta.ActiveMaterialPct,
		FormationCycles:   fc,
	}

	b.FirstDischarge = FirstDischarge(specific)
	b.FirstEfficiency = cycling.Float(efficiency[0])
	if fc < len(specific) {
		b.ReversibleCapacity = cycling.Float(specific[fc])
	}
	b.CycleLife80 = ComputeCycleLife(discharge, indices, fc)
	b.CoulombicEfficiency = PostFormationCoulombicEfficiency(discharge, efficiency, fc, c.knee())
	b.RetentionPct = ComputeRetention(discharge, indices)
	b.FadeRatePer100 = ComputeFadeRate(discharge, indices)

	if area, ok := meta.DiscAreaCm2(); ok {
		if areal, ok := ComputeArealCapacity(discharge, efficiency, area); ok {
			b.ArealCapacity = cycling.Float(areal.Value)
			b.ArealCapacityLowConfidence = areal.LowConfidence
		}
	}

	if meta.DiscDiameterMm != nil && meta.PressedThicknessUm != nil && len(meta.Formulation) > 0 {
		calc := c.Porosity
		if calc == nil {
			calc = porosity.NewCalculator(nil)
		}
		res := calc.Compute(meta.DiscMass(), *meta.DiscDiameterMm, *meta.PressedThicknessUm, meta.Formulation)
		b.Porosity = cycling.Float(res.Porosity)
	}

	return b, nil
}

func (c *Calculator) knee() float64 {
	if c.KneeThreshold <= 0 {
		return DefaultKneeThreshold
	}
	return c.KneeThreshold
}

// FirstDischarge is the largest capacity among the first three cycles
func FirstDischarge(specific []float64) *float64 {
	var best *float64
	for i := 0; i < len(specific) && i < FirstDischargeWindow; i++ {
		v := specific[i]
		if cycling.IsMissing(v) {
			continue
		}
		if best == nil || v > *best {
			best = cycling.Float(v)
		}
	}
	return best
}

// PostFormationCoulombicEfficiency averages per-cycle efficiency (percent)
// after the formation window. Walking forward from the first post-formation
// cycle, accumulation stops at the first cycle whose discharge capacity or
// efficiency drops below knee × the previous cycle's value; that marks the
// end of steady state. Cycles with a missing value are skipped. Needs at least
// formationCycles+2 cycles.
func PostFormationCoulombicEfficiency(discharge, efficiencyPct []float64, formationCycles int, knee float64) *float64 {
	n := len(discharge)
	if len(efficiencyPct) < n {
		n = len(efficiencyPct)
	}
	if formationCycles < 0 || n < formationCycles+2 {
		return nil
	}

	prevQ := discharge[formationCycles]
	prevE := efficiencyPct[formationCycles]
	var values []float64
	for i := formationCycles + 1; i < n; i++ {
		q, e := discharge[i], efficiencyPct[i]
		if cycling.IsMissing(q) || cycling.IsMissing(e) {
			continue
		}
		if prevQ > 0 && (q < knee*prevQ || e < knee*prevE) {
			break
		}
		values = append(values, e)
		prevQ, prevE = q, e
	}
	if len(values) == 0 {
		return nil
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	return cycling.Float(mean)
}
