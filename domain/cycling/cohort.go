package cycling

// MinCohortSamples is the smallest number of valid values a statistical
// cohort method will work with
const MinCohortSamples = 4

// CohortContext is the set of bundles considered comparable (same project or
// experiment). Statistical checks need the whole context, so it is only built
// once every per-cell bundle exists.
type CohortContext struct {
	Scope string             `json:"scope"`
	Cells []CellMetricBundle `json:"cells"`
}

// NewCohortContext copies the bundles so later changes to the caller's slice
// do not leak into the context
func NewCohortContext(scope string, cells []CellMetricBundle) CohortContext {
	copied := make([]CellMetricBundle, len(cells))
	copy(copied, cells)
	return CohortContext{Scope: scope, Cells: copied}
}

// Len returns the number of cells in the cohort
func (c CohortContext) Len() int {
	return len(c.Cells)
}

// Values returns the present values of a metric in cohort order
func (c CohortContext) Values(m Metric) []float64 {
	out := make([]float64, 0, len(c.Cells))
	for _, cell := range c.Cells {
		if v, ok := cell.Value(m); ok {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether a bundle for the given cell is part of the cohort
func (c CohortContext) Contains(b CellMetricBundle) bool {
	for _, cell := range c.Cells {
		if cell.CellID == b.CellID && cell.CellID != "" {
			return true
		}
	}
	return false
}
