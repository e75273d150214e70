// Package outlier separates implausible or statistically unusual cells from a
// cohort before cohort-level summaries are built.
package outlier

import (
	"fmt"
	"strings"

	"cellscope/domain/cycling"
)

// CriticalMetrics are the metrics whose outliers remove a cell from the cohort
var CriticalMetrics = []cycling.Metric{
	cycling.MetricFirstDischarge,
	cycling.MetricReversibleCapacity,
	cycling.MetricCycleLife80,
}

// Pass names the check that produced an outlier record
type Pass string

const (
	PassHardBounds  Pass = "hard_bounds"
	PassStatistical Pass = "statistical"
)

// Settings control FilterOutliers
type Settings struct {
	HardBounds  bool         `json:"enable_hard_bounds" yaml:"enable_hard_bounds"`
	Bounds      BoundsTable  `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Boundary    BoundaryMode `json:"boundary" yaml:"boundary"`
	Statistical bool         `json:"enable_statistical" yaml:"enable_statistical"`
	Method      Method       `json:"statistical_method" yaml:"statistical_method"`
	Threshold   float64      `json:"statistical_threshold" yaml:"statistical_threshold"`

	// ManualExclusions holds cell IDs or cell names removed before any check
	ManualExclusions []string `json:"manual_exclusions,omitempty" yaml:"manual_exclusions,omitempty"`
}

// DefaultSettings enables hard bounds only, inclusive at the boundary
func DefaultSettings() Settings {
	return Settings{
		HardBounds: true,
		Bounds:     DefaultBounds(),
		Boundary:   BoundaryInclusive,
		Method:     MethodIQR,
		Threshold:  DefaultIQRMultiplier,
	}
}

// Outlier is one flagged metric value
type Outlier struct {
	CellID         string         `json:"cell_id"`
	CellName       string         `json:"cell_name"`
	ExperimentName string         `json:"experiment_name"`
	Metric         cycling.Metric `json:"field"`
	Value          float64        `json:"value"`
	Pass           Pass           `json:"pass"`
	Reason         string         `json:"reason"`
	Lower          *float64       `json:"lower_bound,omitempty"`
	Upper          *float64       `json:"upper_bound,omitempty"`
	ZScore         *float64       `json:"zscore,omitempty"`
	Critical       bool           `json:"critical"`
}

// Exclusion records why a cell left the cohort
type Exclusion struct {
	CellID   string   `json:"cell_id"`
	CellName string   `json:"cell_name"`
	Manual   bool     `json:"manual"`
	Reasons  []string `json:"reasons"`
}

// Report summarises a filtering run. Outliers are grouped by metric in cohort
// order; non-critical outliers appear here without excluding their cell.
type Report struct {
	Outliers      map[cycling.Metric][]Outlier `json:"outliers"`
	Excluded      []Exclusion                  `json:"excluded"`
	TotalCells    int                          `json:"total_cells"`
	RetainedCells int                          `json:"retained_cells"`
}

// Count returns the number of outlier records
func (r Report) Count() int {
	n := 0
	for _, list := range r.Outliers {
		n += len(list)
	}
	return n
}

// IsExcluded reports whether the cell with the given ID or name was excluded
func (r Report) IsExcluded(cell string) bool {
	for _, e := range r.Excluded {
		if e.CellID == cell || e.CellName == cell {
			return true
		}
	}
	return false
}

func isCritical(m cycling.Metric) bool {
	for _, c := range CriticalMetrics {
		if c == m {
			return true
		}
	}
	return false
}

func manuallyExcluded(b cycling.CellMetricBundle, names []string) bool {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == b.CellID.String() || n == b.CellName {
			return true
		}
	}
	return false
}

// FilterOutliers applies manual exclusions, then the hard-bounds pass and the
// statistical pass over every outlier metric. Statistics are computed over the
// cells left after manual exclusion. The returned cohort keeps input order.
func FilterOutliers(cohort cycling.CohortContext, settings Settings) (cycling.CohortContext, Report) {
	report := Report{
		Outliers:   make(map[cycling.Metric][]Outlier),
		TotalCells: cohort.Len(),
	}

	bounds := settings.Bounds
	if bounds == nil {
		bounds = DefaultBounds()
	}

	var candidates []cycling.CellMetricBundle
	for _, b := range cohort.Cells {
		if manuallyExcluded(b, settings.ManualExclusions) {
			report.Excluded = append(report.Excluded, Exclusion{
				CellID:   b.CellID.String(),
				CellName: b.DisplayName(),
				Manual:   true,
				Reasons:  []string{"Manually excluded"},
			})
			continue
		}
		candidates = append(candidates, b)
	}

	// per-cell statistical detections, keyed by candidate index then metric
	statistical := make([]map[cycling.Metric]Detection, len(candidates))
	if settings.Statistical {
		for _, m := range cycling.OutlierMetrics {
			var values []float64
			var owners []int
			for i, b := range candidates {
				if v, ok := b.Value(m); ok {
					values = append(values, v)
					owners = append(owners, i)
				}
			}
			for _, d := range Detect(values, settings.Method, settings.Threshold) {
				i := owners[d.Index]
				if statistical[i] == nil {
					statistical[i] = make(map[cycling.Metric]Detection)
				}
				statistical[i][m] = d
			}
		}
	}

	var kept []cycling.CellMetricBundle
	for i, b := range candidates {
		var reasons []string
		for _, m := range cycling.OutlierMetrics {
			v, ok := b.Value(m)
			if !ok {
				continue
			}
			critical := isCritical(m)
			var found []Outlier

			if settings.HardBounds {
				if bound, ok := bounds[m]; ok {
					if out, why := bound.Check(v, settings.Boundary); out {
						found = append(found, Outlier{
							Pass:   PassHardBounds,
							Reason: "Hard bounds: " + why,
							Lower:  cycling.Float(bound.Min),
							Upper:  cycling.Float(bound.Max),
						})
					}
				}
			}
			if d, ok := statistical[i][m]; ok {
				o := Outlier{
					Pass:   PassStatistical,
					Reason: d.Reason,
					Lower:  cycling.Float(d.Lower),
					Upper:  cycling.Float(d.Upper),
				}
				if settings.Method == MethodZScore {
					o.ZScore = cycling.Float(d.Score)
				}
				found = append(found, o)
			}

			for _, o := range found {
				o.CellID = b.CellID.String()
				o.CellName = b.DisplayName()
				o.ExperimentName = b.ExperimentName
				o.Metric = m
				o.Value = v
				o.Critical = critical
				report.Outliers[m] = append(report.Outliers[m], o)
				if critical {
					reasons = append(reasons, fmt.Sprintf("%s: %s", m, o.Reason))
				}
			}
		}

		if len(reasons) > 0 {
			report.Excluded = append(report.Excluded, Exclusion{
				CellID:   b.CellID.String(),
				CellName: b.DisplayName(),
				Reasons:  reasons,
			})
			continue
		}
		kept = append(kept, b)
	}

	report.RetainedCells = len(kept)
	return cycling.NewCohortContext(cohort.Scope, kept), report
}
