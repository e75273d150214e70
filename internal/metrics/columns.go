package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cellscope/domain/cycling"
)

// Table is a column-oriented numeric table, keyed by header
type Table map[string][]float64

// ColumnMapping lists accepted header spellings per logical column, in
// priority order. Header matching ignores case and surrounding whitespace.
type ColumnMapping struct {
	Cycle      []string `yaml:"cycle" json:"cycle"`
	Charge     []string `yaml:"charge" json:"charge"`
	Discharge  []string `yaml:"discharge" json:"discharge"`
	Efficiency []string `yaml:"efficiency" json:"efficiency"`
}

// DefaultColumnMapping covers the header spellings seen in exported cycler data
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Cycle:      []string{"cycle_index", "Cycle", "Cycle number", "Cycle Index"},
		Charge:     []string{"charge_capacity", "Q charge (mA.h)", "Qchg", "Q Chg (mA.h)"},
		Discharge:  []string{"discharge_capacity", "Q discharge (mA.h)", "Qdis", "Q Dis (mA.h)"},
		Efficiency: []string{"efficiency", "Efficiency (-)", "Efficiency"},
	}
}

// Find returns the first column matching any candidate. An exact header wins;
// otherwise headers are compared case-insensitively in sorted order, so the
// choice between headers differing only in case is stable.
func (t Table) Find(candidates []string) ([]float64, string, bool) {
	headers := make([]string, 0, len(t))
	for header := range t {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	for _, want := range candidates {
		if col, ok := t[want]; ok {
			return col, want, true
		}
		w := strings.ToLower(strings.TrimSpace(want))
		for _, header := range headers {
			if strings.ToLower(strings.TrimSpace(header)) == w {
				return t[header], header, true
			}
		}
	}
	return nil, "", false
}

// Records converts a table into cycle records. Rows without a cycle number
// take their 1-based row position.
func (m ColumnMapping) Records(t Table) ([]cycling.CycleRecord, error) {
	discharge, _, ok := t.Find(m.Discharge)
	if !ok {
		return nil, fmt.Errorf("no discharge capacity column (tried %s)", strings.Join(m.Discharge, ", "))
	}
	charge, _, hasCharge := t.Find(m.Charge)
	cycleCol, _, hasCycle := t.Find(m.Cycle)
	effCol, _, hasEff := t.Find(m.Efficiency)

	records := make([]cycling.CycleRecord, len(discharge))
	for i := range discharge {
		rec := cycling.CycleRecord{
			CycleIndex:        i + 1,
			ChargeCapacity:    math.NaN(),
			DischargeCapacity: discharge[i],
		}
		if hasCycle && i < len(cycleCol) && !math.IsNaN(cycleCol[i]) {
			rec.CycleIndex = int(math.Round(cycleCol[i]))
		}
		if hasCharge && i < len(charge) {
			rec.ChargeCapacity = charge[i]
		}
		if hasEff && i < len(effCol) && !math.IsNaN(effCol[i]) {
			rec.Efficiency = cycling.Float(effCol[i])
		}
		records[i] = rec
	}
	return records, nil
}
