package anomaly

import (
	"fmt"
	"sort"
	"strings"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
)

// DefaultCapacityCeiling applies when no formulation component has a known
// theoretical capacity (mAh/g)
const DefaultCapacityCeiling = 450.0

// CapacityCeiling is the theoretical specific capacity of a material family.
// Match is compared case-insensitively as a substring of the component name.
type CapacityCeiling struct {
	Match   string  `yaml:"match" json:"match"`
	Ceiling float64 `yaml:"ceiling" json:"ceiling"`
}

// DefaultCapacityCeilings lists common active materials, most specific first
func DefaultCapacityCeilings() []CapacityCeiling {
	return []CapacityCeiling{
		{Match: "li4ti5o12", Ceiling: 175},
		{Match: "lto", Ceiling: 175},
		{Match: "lifepo4", Ceiling: 170},
		{Match: "lfp", Ceiling: 170},
		{Match: "limn2o4", Ceiling: 148},
		{Match: "lmo", Ceiling: 148},
		{Match: "licoo2", Ceiling: 274},
		{Match: "lco", Ceiling: 274},
		{Match: "nca", Ceiling: 279},
		{Match: "nmc", Ceiling: 275},
		{Match: "ncm", Ceiling: 275},
		{Match: "graphite", Ceiling: 372},
		{Match: "silicon", Ceiling: 4200},
	}
}

// ElectrochemistryFamily detects physically impossible measurements. It does
// not depend on any cohort.
func ElectrochemistryFamily() Family {
	return Family{
		Name: "electrochemistry",
		Detectors: []Detector{
			{Name: "impossible_efficiency", Detect: detectImpossibleEfficiency},
			{Name: "theoretical_capacity_violation", Detect: detectCapacityViolation},
		},
	}
}

func detectImpossibleEfficiency(in *Input) ([]flags.Flag, error) {
	limit := 100.0 + in.Settings.EfficiencyTolerancePct
	i := argmax(in.Efficiency)
	if i < 0 || in.Efficiency[i] <= limit {
		return nil, nil
	}

	peak := in.Efficiency[i]
	cycle := in.Cycles[i]
	return one(flags.Flag{
		ID:              "impossible_efficiency",
		Type:            "Impossible Efficiency",
		Severity:        flags.SeverityCritical,
		Category:        flags.CategoryElectrochemistry,
		Description:     fmt.Sprintf("Physically impossible efficiency detected: %.1f%% at cycle %d", peak, cycle),
		Confidence:      0.99,
		SourceAlgorithm: "physics_conservation_laws",
		Cycle:           cycling.Int(cycle),
		Metric:          "efficiency_pct",
		MetricValue:     cycling.Float(peak),
		Threshold:       cycling.Float(limit),
		Recommendation:  "Efficiency above 100% violates charge conservation. Check data processing, loading values and active material percentage.",
	}), nil
}

// CeilingFor picks the ceiling of the highest-fraction formulation component
// with a known material family
func CeilingFor(formulation []cycling.FormulationComponent, table []CapacityCeiling, fallback float64) (float64, string) {
	ordered := make([]cycling.FormulationComponent, len(formulation))
	copy(ordered, formulation)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DryMassFractionPct > ordered[j].DryMassFractionPct
	})

	for _, c := range ordered {
		name := strings.ToLower(c.Component)
		for _, entry := range table {
			if entry.Match != "" && strings.Contains(name, strings.ToLower(entry.Match)) {
				return entry.Ceiling, c.Component
			}
		}
	}
	return fallback, ""
}

func detectCapacityViolation(in *Input) ([]flags.Flag, error) {
	i := argmax(in.Specific)
	if i < 0 {
		return nil, nil
	}

	table := in.Settings.CapacityCeilings
	if len(table) == 0 {
		table = DefaultCapacityCeilings()
	}
	fallback := in.Settings.DefaultCeiling
	if fallback <= 0 {
		fallback = DefaultCapacityCeiling
	}
	ceiling, material := CeilingFor(in.Meta.Formulation, table, fallback)

	peak := in.Specific[i]
	if peak <= ceiling {
		return nil, nil
	}

	cycle := in.Cycles[i]
	desc := fmt.Sprintf("Capacity exceeds typical limits: %.1f mAh/g at cycle %d", peak, cycle)
	if material != "" {
		desc += fmt.Sprintf(" (%s ceiling %.0f mAh/g)", material, ceiling)
	}
	return one(flags.Flag{
		ID:              "theoretical_capacity_violation",
		Type:            "Exceeds Theoretical Capacity",
		Severity:        flags.SeverityWarning,
		Category:        flags.CategoryElectrochemistry,
		Description:     desc,
		Confidence:      0.80,
		SourceAlgorithm: "physics_theoretical_limit",
		Cycle:           cycling.Int(cycle),
		Metric:          "specific_discharge_capacity",
		MetricValue:     cycling.Float(peak),
		Threshold:       cycling.Float(ceiling),
		Recommendation:  "Verify loading measurement and active material percentage. For specialised materials this may be normal.",
	}), nil
}
