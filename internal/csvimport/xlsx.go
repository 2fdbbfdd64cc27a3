package csvimport

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ProductsSheet is preferred over the first sheet when a workbook has it.
const ProductsSheet = "Products"

// ReadXLSX reads the product sheet of a workbook into rows with the same
// header rules as Parse. Entirely blank sheet rows are dropped.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, ProductsSheet) {
			sheetName = name
			break
		}
	}

	cells, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}

	records := make([]Record, 0, len(cells))
	for i, cols := range cells {
		if blankCells(cols) {
			continue
		}
		records = append(records, Record{Line: i + 1, Fields: cols})
	}
	return rowsFromRecords(records), nil
}

func blankCells(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
