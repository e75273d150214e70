package excel

import "cellscope/internal/metrics"

// DefaultCellsSheet is the workbook sheet holding one metadata row per cell
const DefaultCellsSheet = "Cells"

// WorkbookConfig holds configuration for a workbook data source
type WorkbookConfig struct {
	FilePath   string                `json:"file_path"`
	CellsSheet string                `json:"cells_sheet"`
	Columns    metrics.ColumnMapping `json:"columns"`
}

// DefaultWorkbookConfig returns defaults for the given workbook path
func DefaultWorkbookConfig(path string) WorkbookConfig {
	return WorkbookConfig{
		FilePath:   path,
		CellsSheet: DefaultCellsSheet,
		Columns:    metrics.DefaultColumnMapping(),
	}
}
