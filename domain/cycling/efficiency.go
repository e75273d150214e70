package cycling

import "math"

// StandardEfficiencyPct is discharge/charge as a percentage, NaN when not derivable
func StandardEfficiencyPct(charge, discharge float64) float64 {
	if IsMissing(charge) || IsMissing(discharge) || charge <= 0 {
		return math.NaN()
	}
	return discharge / charge * 100.0
}

// EfficiencyPct returns the cycle efficiency in percent under the project's
// convention. Anode projects invert the standard ratio. The value derived from
// raw capacities always wins over the cycler-reported field, which is only used
// when the raw capacities cannot produce a value.
func (r CycleRecord) EfficiencyPct(pt ProjectType) float64 {
	std := StandardEfficiencyPct(r.ChargeCapacity, r.DischargeCapacity)
	if IsMissing(std) && r.Efficiency != nil && !math.IsNaN(*r.Efficiency) {
		std = *r.Efficiency * 100.0
	}
	if IsMissing(std) {
		return math.NaN()
	}
	if pt == ProjectAnode {
		if std <= 0 {
			return math.NaN()
		}
		return 100.0 / std * 100.0
	}
	return std
}

// EfficiencySeries returns per-cycle efficiency percentages
func EfficiencySeries(records []CycleRecord, pt ProjectType) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.EfficiencyPct(pt)
	}
	return out
}
