package main

import (
	"bytes"
	"testing"

	"cellscope/app"
	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal/testkit"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintCell_RendersMissingAsNA(t *testing.T) {
	svc := app.NewAnalysisService(nil, nil, nil, app.DefaultServiceConfig())
	cfg := testkit.DefaultCycleConfig()
	cfg.Cycles = 3
	res, err := svc.AnalyzeData(cycling.CellData{
		Metadata: testkit.CellMetadata("S1"),
		Cycles:   testkit.NewCycleGenerator(cfg).Generate(),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	printCell(&out, res)
	assert.Contains(t, out.String(), "S1")
	assert.Contains(t, out.String(), "N/A", "a three-cycle series has no fade rate")
}

func TestPrintCohort(t *testing.T) {
	res := &app.CohortResult{
		Scope: "experiment:e",
		Cells: []app.CellResult{
			{Bundle: cycling.CellMetricBundle{CellName: "A1", FirstDischarge: cycling.Float(150)}, Excluded: true},
		},
	}
	var out bytes.Buffer
	printCohort(&out, res)
	assert.Contains(t, out.String(), "A1 *")
	assert.Contains(t, out.String(), "150.0")
}

func TestPrintFlags(t *testing.T) {
	color.NoColor = true
	cycle := 42
	var out bytes.Buffer
	printFlags(&out, []flags.Flag{{
		Type:        "sudden_capacity_drop",
		Severity:    flags.SeverityCritical,
		Confidence:  0.9,
		Cycle:       &cycle,
		Description: "capacity fell 35%",
	}})
	assert.Contains(t, out.String(), "CRITICAL")
	assert.Contains(t, out.String(), "sudden_capacity_drop")
	assert.Contains(t, out.String(), "42")
	assert.Contains(t, out.String(), "0.90")

	out.Reset()
	printFlags(&out, nil)
	assert.Contains(t, out.String(), "No anomalies detected")
}
