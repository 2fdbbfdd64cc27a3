package csvimport

import (
	"bytes"
	"fmt"

	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// Decode turns an uploaded file body into rows according to its format.
// CSV never fails; XLSX fails only when the workbook cannot be opened.
func Decode(format enums.FileFormat, data []byte) ([]Row, error) {
	switch format {
	case enums.FileFormatCSV:
		return Parse(string(data)), nil
	case enums.FileFormatXLSX:
		return ReadXLSX(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("unsupported import format %q", format)
}
