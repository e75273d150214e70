package cycling

import "cellscope/domain/core"

// Metric names a scalar field of a CellMetricBundle
type Metric string

const (
	MetricFirstDischarge      Metric = "first_discharge"
	MetricFirstEfficiency     Metric = "first_efficiency"
	MetricReversibleCapacity  Metric = "reversible_capacity"
	MetricCoulombicEfficiency Metric = "coulombic_efficiency"
	MetricArealCapacity       Metric = "areal_capacity"
	MetricCycleLife80         Metric = "cycle_life_80"
	MetricPorosity            Metric = "porosity"
)

// OutlierMetrics are the bundle fields checked by outlier filtering, in report order
var OutlierMetrics = []Metric{
	MetricFirstDischarge,
	MetricFirstEfficiency,
	MetricReversibleCapacity,
	MetricCoulombicEfficiency,
	MetricArealCapacity,
	MetricCycleLife80,
}

// CellMetricBundle is a per-cell snapshot of derived metrics. A new analysis
// produces a new value; nothing mutates a bundle after it is built. Nil fields
// mean the data was insufficient for that metric.
type CellMetricBundle struct {
	CellID            core.CellID       `json:"cell_id"`
	CellName          string            `json:"cell_name"`
	ExperimentID      core.ExperimentID `json:"experiment_id"`
	ExperimentName    string            `json:"experiment_name"`
	ProjectType       ProjectType       `json:"project_type"`
	LoadingMg         float64           `json:"loading"`
	ActiveMaterialPct float64           `json:"active_material"`
	FormationCycles   int               `json:"formation_cycles"`

	FirstDischarge             *float64 `json:"first_discharge"`
	FirstEfficiency            *float64 `json:"first_efficiency"`
	ReversibleCapacity         *float64 `json:"reversible_capacity"`
	CycleLife80                *int     `json:"cycle_life_80"`
	CoulombicEfficiency        *float64 `json:"coulombic_efficiency"`
	ArealCapacity              *float64 `json:"areal_capacity"`
	ArealCapacityLowConfidence bool     `json:"areal_capacity_low_confidence"`
	Porosity                   *float64 `json:"porosity"`
	RetentionPct               *float64 `json:"retention_pct"`
	FadeRatePer100             *float64 `json:"fade_rate_per_100"`
}

// Value returns a metric as float64 and whether it is present
func (b CellMetricBundle) Value(m Metric) (float64, bool) {
	switch m {
	case MetricFirstDischarge:
		return deref(b.FirstDischarge)
	case MetricFirstEfficiency:
		return deref(b.FirstEfficiency)
	case MetricReversibleCapacity:
		return deref(b.ReversibleCapacity)
	case MetricCoulombicEfficiency:
		return deref(b.CoulombicEfficiency)
	case MetricArealCapacity:
		return deref(b.ArealCapacity)
	case MetricPorosity:
		return deref(b.Porosity)
	case MetricCycleLife80:
		if b.CycleLife80 == nil {
			return 0, false
		}
		return float64(*b.CycleLife80), true
	}
	return 0, false
}

// DisplayName returns the label used in reports
func (b CellMetricBundle) DisplayName() string {
	if b.CellName != "" {
		return b.CellName
	}
	if b.CellID != "" {
		return b.CellID.String()
	}
	return "Unknown"
}

func deref(v *float64) (float64, bool) {
	if v == nil || IsMissing(*v) {
		return 0, false
	}
	return *v, true
}
