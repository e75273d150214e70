package flags

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks how urgently a flag needs attention
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities, critical first
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Category groups flags by the kind of problem they describe
type Category string

const (
	CategoryPerformance      Category = "Performance"
	CategoryQuality          Category = "Quality Assurance"
	CategoryDataIntegrity    Category = "Data Integrity"
	CategoryElectrochemistry Category = "Electrochemistry"
)

// Flag is a single detected anomaly. Flags are values; detectors build them
// once and nothing edits them afterwards.
type Flag struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Severity        Severity `json:"severity"`
	Category        Category `json:"category"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	SourceAlgorithm string   `json:"source_algorithm"`
	Cycle           *int     `json:"cycle,omitempty"`
	Metric          string   `json:"metric,omitempty"`
	MetricValue     *float64 `json:"metric_value,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	Recommendation  string   `json:"recommendation"`
}

// Sort orders flags by severity then by descending confidence. The sort is
// stable so equal flags keep detector order.
func Sort(fs []Flag) {
	sort.SliceStable(fs, func(i, j int) bool {
		ri, rj := fs[i].Severity.Rank(), fs[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return fs[i].Confidence > fs[j].Confidence
	})
}

// Summary aggregates flags across many cells
type Summary struct {
	Total          int              `json:"total_flags"`
	Critical       int              `json:"critical_count"`
	Warning        int              `json:"warning_count"`
	Info           int              `json:"info_count"`
	ByType         map[string]int   `json:"flag_type_counts"`
	ByCategory     map[Category]int `json:"category_counts"`
	CellsWithFlags int              `json:"cells_with_flags"`
}

// Summarize counts flags keyed by cell
func Summarize(byCell map[string][]Flag) Summary {
	s := Summary{
		ByType:     make(map[string]int),
		ByCategory: make(map[Category]int),
	}
	for _, fs := range byCell {
		if len(fs) > 0 {
			s.CellsWithFlags++
		}
		for _, f := range fs {
			s.Total++
			switch f.Severity {
			case SeverityCritical:
				s.Critical++
			case SeverityWarning:
				s.Warning++
			default:
				s.Info++
			}
			s.ByType[f.Type]++
			s.ByCategory[f.Category]++
		}
	}
	return s
}

// FormatCompact renders per-severity counts, e.g. "critical:1 warning:2".
// Severities with no flags are omitted; an empty list renders as "".
func FormatCompact(fs []Flag) string {
	counts := map[Severity]int{}
	for _, f := range fs {
		counts[f.Severity]++
	}
	var parts []string
	for _, sev := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", sev, n))
		}
	}
	return strings.Join(parts, " ")
}
