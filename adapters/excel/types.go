package excel

import (
	"math"
	"strconv"
	"strings"

	"cellscope/internal/metrics"
)

// RawRowData represents a row of raw sheet data as header → cell text
type RawRowData map[string]string

// ExcelData represents one sheet or CSV file
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Table converts every column to numbers. Blank or non-numeric cells become NaN.
func (d *ExcelData) Table() metrics.Table {
	t := make(metrics.Table, len(d.Headers))
	for _, h := range d.Headers {
		col := make([]float64, len(d.Rows))
		for i, row := range d.Rows {
			col[i] = parseNumber(row[h])
		}
		t[h] = col
	}
	return t
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
