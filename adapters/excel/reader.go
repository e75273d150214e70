package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cellscope/internal"

	"github.com/xuri/excelize/v2"
)

var logger = internal.DefaultLogger.WithComponent("excel")

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadData reads the first sheet of a workbook, or the whole CSV file
func (r *DataReader) ReadData() (*ExcelData, error) {
	return r.ReadSheet("")
}

// ReadSheet reads one named sheet. CSV files ignore the sheet name; an
// empty name selects the first sheet of a workbook.
func (r *DataReader) ReadSheet(sheet string) (*ExcelData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		f, err := excelize.OpenFile(r.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open Excel file: %w", err)
		}
		defer f.Close()
		return readSheet(f, sheet)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func readSheet(f *excelize.File, sheet string) (*ExcelData, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	start := time.Now()
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	logger.Debug("sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}
	return processRows(rows), nil
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	start := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	logger.Debug("CSV file read in %.2fms (%d rows)", float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, fmt.Errorf("CSV file has no header row")
	}
	return processRows(rows), nil
}

// processRows converts raw string rows into ExcelData format. Fully blank
// rows are skipped.
func processRows(rows [][]string) *ExcelData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		rowData := make(RawRowData)
		blank := true
		for j, cell := range rows[i] {
			if j < len(headers) {
				v := strings.TrimSpace(cell)
				rowData[headers[j]] = v
				if v != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}
		dataRows = append(dataRows, rowData)
	}

	return &ExcelData{
		Headers: headers,
		Rows:    dataRows,
	}
}
