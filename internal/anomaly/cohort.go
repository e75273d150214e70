package anomaly

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal/outlier"
)

// CohortMetrics are compared against the cohort distribution
var CohortMetrics = []cycling.Metric{
	cycling.MetricFirstDischarge,
	cycling.MetricReversibleCapacity,
	cycling.MetricCoulombicEfficiency,
}

// CohortFamily flags metric values far from the cohort distribution. It uses
// the same statistical test as the outlier filter and is advisory only.
func CohortFamily() Family {
	return Family{
		Name:        "cohort",
		NeedsCohort: true,
		Detectors: []Detector{
			{Name: "cohort_statistical_outlier", Detect: detectCohortOutliers},
		},
	}
}

func detectCohortOutliers(in *Input) ([]flags.Flag, error) {
	if in.Cohort == nil {
		return nil, nil
	}
	method := in.Settings.CohortMethod
	if method == "" {
		method = outlier.MethodIQR
	}

	var out []flags.Flag
	for _, m := range CohortMetrics {
		own, ok := in.Bundle.Value(m)
		if !ok {
			continue
		}

		values, self := cohortSample(in.Cohort.Cells, in.Bundle, m, own)
		for _, d := range outlier.Detect(values, method, in.Settings.CohortThreshold) {
			if d.Index != self {
				continue
			}
			mean, err := stats.Mean(values)
			if err != nil {
				return nil, err
			}
			direction := "high"
			if own < mean {
				direction = "low"
			}
			out = append(out, flags.Flag{
				ID:              "cohort_statistical_outlier",
				Type:            "Cohort Statistical Outlier",
				Severity:        flags.SeverityWarning,
				Category:        flags.CategoryQuality,
				Description:     fmt.Sprintf("%s is anomalous for %s: %.2f (%s; cohort range [%.2f, %.2f])", m, in.Cohort.Scope, own, direction, d.Lower, d.Upper),
				Confidence:      0.90,
				SourceAlgorithm: "statistical_" + string(method),
				Metric:          string(m),
				MetricValue:     cycling.Float(own),
				Threshold:       cycling.Float(mean),
				Recommendation:  "Verify loading and active material measurements. May indicate cell preparation variability.",
			})
		}
	}
	return out, nil
}

// cohortSample collects a metric across the cohort with the analysed cell's
// own value at index self. The cell is matched by ID, or by name when it has
// no ID, and appended only when the cohort does not already hold it.
func cohortSample(cells []cycling.CellMetricBundle, bundle cycling.CellMetricBundle, m cycling.Metric, own float64) ([]float64, int) {
	self := -1
	values := make([]float64, 0, len(cells)+1)
	for _, cell := range cells {
		v, ok := cell.Value(m)
		if !ok {
			continue
		}
		if self < 0 && sameCell(cell, bundle) {
			self = len(values)
			v = own
		}
		values = append(values, v)
	}
	if self < 0 {
		self = len(values)
		values = append(values, own)
	}
	return values, self
}

func sameCell(a, b cycling.CellMetricBundle) bool {
	if a.CellID != "" || b.CellID != "" {
		return a.CellID == b.CellID
	}
	return a.CellName != "" && a.CellName == b.CellName
}
