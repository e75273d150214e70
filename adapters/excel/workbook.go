package excel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/ports"

	"github.com/xuri/excelize/v2"
)

// Metadata sheet headers. Only cell_name is required.
var cellsHeaders = []string{
	"cell_id", "cell_name", "experiment_id", "experiment_name", "project_id", "project_type",
	"loading", "active_material", "formation_cycles", "formulation",
	"disc_mass_mg", "disc_diameter_mm", "pressed_thickness_um", "sheet",
}

// WorkbookRepository serves cells from an .xlsx workbook: one metadata row
// per cell on the cells sheet, and one cycle sheet per cell.
type WorkbookRepository struct {
	config WorkbookConfig
}

var (
	_ ports.ExperimentRepository = (*WorkbookRepository)(nil)
	_ ports.CohortLookup         = (*WorkbookRepository)(nil)
)

// NewWorkbookRepository creates a workbook-backed repository
func NewWorkbookRepository(config WorkbookConfig) *WorkbookRepository {
	if config.CellsSheet == "" {
		config.CellsSheet = DefaultCellsSheet
	}
	if len(config.Columns.Discharge) == 0 {
		config.Columns = DefaultWorkbookConfig(config.FilePath).Columns
	}
	return &WorkbookRepository{config: config}
}

type cellEntry struct {
	meta  cycling.CellMetadata
	sheet string
}

func (r *WorkbookRepository) open() (*excelize.File, error) {
	if _, err := os.Stat(r.config.FilePath); err != nil {
		return nil, errors.WorkbookError(r.config.FilePath, err)
	}
	f, err := excelize.OpenFile(r.config.FilePath)
	if err != nil {
		return nil, errors.WorkbookError(r.config.FilePath, err)
	}
	return f, nil
}

// index reads the cells sheet
func (r *WorkbookRepository) index(f *excelize.File) ([]cellEntry, error) {
	data, err := readSheet(f, r.config.CellsSheet)
	if err != nil {
		return nil, errors.WorkbookError(r.config.FilePath, err)
	}
	entries := make([]cellEntry, 0, len(data.Rows))
	for i, row := range data.Rows {
		e, err := parseCellRow(lowerKeys(row))
		if err != nil {
			return nil, errors.WorkbookError(r.config.FilePath, fmt.Errorf("%s row %d: %w", r.config.CellsSheet, i+2, err))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadCell reads a cell's metadata row and its cycle sheet
func (r *WorkbookRepository) LoadCell(ctx context.Context, id core.CellID) (cycling.CellData, error) {
	f, err := r.open()
	if err != nil {
		return cycling.CellData{}, err
	}
	defer f.Close()

	entries, err := r.index(f)
	if err != nil {
		return cycling.CellData{}, err
	}
	for _, e := range entries {
		if e.meta.CellID != id && e.meta.CellName != id.String() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return cycling.CellData{}, err
		}
		return r.readCell(f, e)
	}
	return cycling.CellData{}, core.NewNotFoundError("cell", id.String())
}

// CohortCells lists the cells in scope ordered by name then ID
func (r *WorkbookRepository) CohortCells(ctx context.Context, scope ports.CohortScope) ([]core.CellID, error) {
	f, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := r.index(f)
	if err != nil {
		return nil, err
	}
	var picked []cycling.CellMetadata
	for _, e := range entries {
		switch {
		case scope.ExperimentID != "" && e.meta.ExperimentID != scope.ExperimentID:
			continue
		case scope.ExperimentID == "" && scope.ProjectID != "" && e.meta.ProjectID != scope.ProjectID:
			continue
		}
		picked = append(picked, e.meta)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].CellName != picked[j].CellName {
			return picked[i].CellName < picked[j].CellName
		}
		return picked[i].CellID < picked[j].CellID
	})
	ids := make([]core.CellID, len(picked))
	for i, m := range picked {
		ids[i] = m.CellID
	}
	return ids, nil
}

// ListCells returns every cell in the workbook in the row order of the cells
// sheet. The workbook is opened and indexed once.
func (r *WorkbookRepository) ListCells(ctx context.Context) ([]cycling.CellData, error) {
	f, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := r.index(f)
	if err != nil {
		return nil, err
	}
	cells := make([]cycling.CellData, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := r.readCell(f, e)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// readCell reads one cell's cycle sheet from an open workbook
func (r *WorkbookRepository) readCell(f *excelize.File, e cellEntry) (cycling.CellData, error) {
	data, err := readSheet(f, e.sheet)
	if err != nil {
		return cycling.CellData{}, errors.WorkbookError(r.config.FilePath, err)
	}
	records, err := r.config.Columns.Records(data.Table())
	if err != nil {
		return cycling.CellData{}, errors.WorkbookError(r.config.FilePath, fmt.Errorf("sheet %q: %w", e.sheet, err))
	}
	return cycling.CellData{Metadata: e.meta, Cycles: records}, nil
}

func parseCellRow(row RawRowData) (cellEntry, error) {
	name := row["cell_name"]
	if name == "" {
		return cellEntry{}, fmt.Errorf("cell_name is required")
	}
	pt, err := cycling.ParseProjectType(row["project_type"])
	if err != nil {
		return cellEntry{}, err
	}
	meta := cycling.CellMetadata{
		CellID:         core.CellID(firstNonEmpty(row["cell_id"], name)),
		CellName:       name,
		ExperimentName: row["experiment_name"],
		ExperimentID:   core.ExperimentID(firstNonEmpty(row["experiment_id"], row["experiment_name"])),
		ProjectID:      core.ProjectID(row["project_id"]),
		ProjectType:    pt,
	}
	if meta.LoadingMg, err = requiredNumber(row, "loading"); err != nil {
		return cellEntry{}, err
	}
	if meta.ActiveMaterialPct, err = requiredNumber(row, "active_material"); err != nil {
		return cellEntry{}, err
	}
	if s := row["formation_cycles"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return cellEntry{}, fmt.Errorf("formation_cycles: %w", err)
		}
		meta.FormationCycles = cycling.Int(n)
	}
	if s := row["formulation"]; s != "" {
		if meta.Formulation, err = cycling.ParseFormulationJSON([]byte(s)); err != nil {
			return cellEntry{}, fmt.Errorf("formulation: %w", err)
		}
	}
	meta.DiscMassMg = cycling.Float(parseNumber(row["disc_mass_mg"]))
	meta.DiscDiameterMm = cycling.Float(parseNumber(row["disc_diameter_mm"]))
	meta.PressedThicknessUm = cycling.Float(parseNumber(row["pressed_thickness_um"]))

	return cellEntry{meta: meta, sheet: firstNonEmpty(row["sheet"], name)}, nil
}

func requiredNumber(row RawRowData, key string) (float64, error) {
	s := row[key]
	if s == "" {
		return 0, nil
	}
	v := parseNumber(s)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%s: %q is not a number", key, s)
	}
	return v, nil
}

func lowerKeys(row RawRowData) RawRowData {
	out := make(RawRowData, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// WriteWorkbook writes cells in the layout WorkbookRepository reads. Each
// cell's cycle sheet is named after the cell.
func WriteWorkbook(path string, cells []cycling.CellData) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DefaultCellsSheet); err != nil {
		return errors.WorkbookError(path, err)
	}
	if err := f.SetSheetRow(DefaultCellsSheet, "A1", &cellsHeaders); err != nil {
		return errors.WorkbookError(path, err)
	}

	for i, c := range cells {
		m := c.Metadata
		formulation := ""
		if len(m.Formulation) > 0 {
			b, err := json.Marshal(m.Formulation)
			if err != nil {
				return errors.WorkbookError(path, err)
			}
			formulation = string(b)
		}
		var fc interface{}
		if m.FormationCycles != nil {
			fc = *m.FormationCycles
		}
		row := []interface{}{
			m.CellID.String(), m.CellName, m.ExperimentID.String(), m.ExperimentName, m.ProjectID.String(), string(m.ProjectType),
			m.LoadingMg, m.ActiveMaterialPct, fc, formulation,
			optional(m.DiscMassMg), optional(m.DiscDiameterMm), optional(m.PressedThicknessUm), m.CellName,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(DefaultCellsSheet, cell, &row); err != nil {
			return errors.WorkbookError(path, err)
		}
		if err := writeCycleSheet(f, m.CellName, c.Cycles); err != nil {
			return errors.WorkbookError(path, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.WorkbookError(path, err)
	}
	return nil
}

func writeCycleSheet(f *excelize.File, sheet string, cycles []cycling.CycleRecord) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	header := []interface{}{"cycle_index", "charge_capacity", "discharge_capacity", "efficiency"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, rec := range cycles {
		row := []interface{}{rec.CycleIndex, finite(rec.ChargeCapacity), finite(rec.DischargeCapacity), optional(rec.Efficiency)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// blank cells for missing values
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return finite(*v)
}
