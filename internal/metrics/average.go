package metrics

import (
	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
)

// ExperimentAverage summarises an experiment by averaging each metric over
// the cells that have it
type ExperimentAverage struct {
	Name              string                      `json:"cell_name"`
	ExperimentName    string                      `json:"experiment_name"`
	CellCount         int                         `json:"cell_count"`
	LoadingMg         float64                     `json:"loading"`
	ActiveMaterialPct *float64                    `json:"active_material"`
	FormationCycles   int                         `json:"formation_cycles"`
	Metrics           map[cycling.Metric]*float64 `json:"metrics"`
}

var averagedMetrics = []cycling.Metric{
	cycling.MetricFirstDischarge,
	cycling.MetricFirstEfficiency,
	cycling.MetricCycleLife80,
	cycling.MetricArealCapacity,
	cycling.MetricReversibleCapacity,
	cycling.MetricCoulombicEfficiency,
	cycling.MetricPorosity,
}

// AverageExperiment returns nil for an empty experiment
func AverageExperiment(experimentName string, bundles []cycling.CellMetricBundle) *ExperimentAverage {
	if len(bundles) == 0 {
		return nil
	}

	cohort := cycling.NewCohortContext(experimentName, bundles)
	avg := &ExperimentAverage{
		Name:           experimentName + " (Avg)",
		ExperimentName: experimentName,
		CellCount:      len(bundles),
		Metrics:        make(map[cycling.Metric]*float64, len(averagedMetrics)),
	}
	for _, m := range averagedMetrics {
		avg.Metrics[m] = meanOrNil(cohort.Values(m))
	}

	var loading, active []float64
	formation := 0
	for _, b := range bundles {
		loading = append(loading, b.LoadingMg)
		if b.ActiveMaterialPct > 0 {
			active = append(active, b.ActiveMaterialPct)
		}
		formation += b.FormationCycles
	}
	if v := meanOrNil(loading); v != nil {
		avg.LoadingMg = *v
	}
	avg.ActiveMaterialPct = meanOrNil(active)
	avg.FormationCycles = formation / len(bundles)
	return avg
}

func meanOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	return cycling.Float(m)
}
