package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/internal/testkit"
	"cellscope/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeCohort(t *testing.T, cells []cycling.CellData) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cells.xlsx")
	require.NoError(t, WriteWorkbook(path, cells))
	return path
}

func TestWorkbookRepository_RoundTrip(t *testing.T) {
	cfg := testkit.DefaultCycleConfig()
	cfg.Cycles = 20
	cfg.MissingEvery = 7
	cells := testkit.Cohort(2, cfg)
	cells[0].Metadata.FormationCycles = cycling.Int(3)

	repo := NewWorkbookRepository(DefaultWorkbookConfig(writeCohort(t, cells)))
	got, err := repo.LoadCell(context.Background(), cells[0].Metadata.CellID)
	require.NoError(t, err)

	assert.Equal(t, cells[0].Metadata.CellName, got.Metadata.CellName)
	assert.Equal(t, cells[0].Metadata.ExperimentID, got.Metadata.ExperimentID)
	assert.Equal(t, cycling.ProjectFullCell, got.Metadata.ProjectType)
	assert.Equal(t, 12.0, got.Metadata.LoadingMg)
	require.NotNil(t, got.Metadata.FormationCycles)
	assert.Equal(t, 3, *got.Metadata.FormationCycles)
	require.NotNil(t, got.Metadata.DiscDiameterMm)
	assert.Equal(t, 15.0, *got.Metadata.DiscDiameterMm)
	assert.Nil(t, got.Metadata.DiscMassMg)
	assert.Equal(t, cells[0].Metadata.Formulation, got.Metadata.Formulation)

	require.Len(t, got.Cycles, 20)
	for i, rec := range got.Cycles {
		want := cells[0].Cycles[i]
		assert.Equal(t, want.CycleIndex, rec.CycleIndex)
		if math.IsNaN(want.DischargeCapacity) {
			assert.True(t, math.IsNaN(rec.DischargeCapacity), "cycle %d", rec.CycleIndex)
			assert.Nil(t, rec.Efficiency)
			continue
		}
		assert.InDelta(t, want.DischargeCapacity, rec.DischargeCapacity, 1e-12)
		assert.InDelta(t, want.ChargeCapacity, rec.ChargeCapacity, 1e-12)
	}

	second, err := repo.LoadCell(context.Background(), core.CellID("C02"))
	require.NoError(t, err, "lookup by name")
	assert.Equal(t, cells[1].Metadata.CellID, second.Metadata.CellID)
	assert.Nil(t, second.Metadata.FormationCycles)
}

func TestWorkbookRepository_CohortCells(t *testing.T) {
	cells := testkit.Cohort(3, testkit.DefaultCycleConfig())
	cells[2].Metadata.ExperimentID = "exp-other"
	cells[2].Metadata.ProjectID = "proj-other"
	// written out of name order
	cells[0], cells[1] = cells[1], cells[0]

	repo := NewWorkbookRepository(DefaultWorkbookConfig(writeCohort(t, cells)))
	ctx := context.Background()

	all, err := repo.CohortCells(ctx, ports.CohortScope{})
	require.NoError(t, err)
	assert.Equal(t, []core.CellID{"cell-C01", "cell-C02", "cell-C03"}, all)

	exp, err := repo.CohortCells(ctx, ports.CohortScope{ExperimentID: "exp-synthetic"})
	require.NoError(t, err)
	assert.Equal(t, []core.CellID{"cell-C01", "cell-C02"}, exp)

	proj, err := repo.CohortCells(ctx, ports.CohortScope{ProjectID: "proj-other"})
	require.NoError(t, err)
	assert.Equal(t, []core.CellID{"cell-C03"}, proj)

	listed, err := repo.ListCells(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	names := make([]string, len(listed))
	for i, c := range listed {
		names[i] = c.Metadata.CellName
		assert.NotEmpty(t, c.Cycles, c.Metadata.CellName)
	}
	assert.Equal(t, []string{"C02", "C01", "C03"}, names, "cells sheet row order")
}

func TestWorkbookRepository_Errors(t *testing.T) {
	ctx := context.Background()

	missing := NewWorkbookRepository(DefaultWorkbookConfig(filepath.Join(t.TempDir(), "nope.xlsx")))
	_, err := missing.LoadCell(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, errors.CodeWorkbookError, errors.GetCode(err))

	repo := NewWorkbookRepository(DefaultWorkbookConfig(writeCohort(t, testkit.Cohort(1, testkit.DefaultCycleConfig()))))
	_, err = repo.LoadCell(ctx, "cell-unknown")
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestWorkbookRepository_HandWrittenSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Cells"))
	require.NoError(t, f.SetSheetRow("Cells", "A1", &[]interface{}{"Cell_Name", "Project_Type", "Loading", "Active_Material", "Sheet"}))
	require.NoError(t, f.SetSheetRow("Cells", "A2", &[]interface{}{"A1", "Anode", 10.5, 90, "raw A1"}))
	_, err := f.NewSheet("raw A1")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("raw A1", "A1", &[]interface{}{"Cycle", "Q charge (mA.h)", "Q discharge (mA.h)"}))
	require.NoError(t, f.SetSheetRow("raw A1", "A2", &[]interface{}{1, 2.0, 2.2}))
	require.NoError(t, f.SetSheetRow("raw A1", "A3", &[]interface{}{2, 1.98, 2.0}))
	path := filepath.Join(t.TempDir(), "hand.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	repo := NewWorkbookRepository(WorkbookConfig{FilePath: path})
	got, err := repo.LoadCell(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, core.CellID("A1"), got.Metadata.CellID)
	assert.Equal(t, cycling.ProjectAnode, got.Metadata.ProjectType)
	assert.Equal(t, 10.5, got.Metadata.LoadingMg)
	require.Len(t, got.Cycles, 2)
	assert.Equal(t, 2.2, got.Cycles[0].DischargeCapacity)
	assert.Nil(t, got.Cycles[0].Efficiency)
}

func TestWorkbookRepository_BadMetadataRow(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Cells"))
	require.NoError(t, f.SetSheetRow("Cells", "A1", &[]interface{}{"cell_name", "loading"}))
	require.NoError(t, f.SetSheetRow("Cells", "A2", &[]interface{}{"A1", "heavy"}))
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := NewWorkbookRepository(WorkbookConfig{FilePath: path}).CohortCells(context.Background(), ports.CohortScope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cells row 2")
}

func TestDataReader_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cell.csv")
	content := "Cycle,Q charge (mA.h),Q discharge (mA.h)\n1,2.0,2.2\n\n2,1.98,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	data, err := NewDataReader(path).ReadData()
	require.NoError(t, err)
	assert.Len(t, data.Rows, 2, "blank row skipped")

	table := data.Table()
	records, err := DefaultWorkbookConfig("").Columns.Records(table)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[1].CycleIndex)
	assert.True(t, math.IsNaN(records[1].DischargeCapacity))
}
