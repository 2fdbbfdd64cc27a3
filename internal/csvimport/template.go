package csvimport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateColumn documents one header of the import file.
type TemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// Template describes the import file layout.
type Template struct {
	Entity     string              `json:"entity"`
	Version    string              `json:"version"`
	Columns    []TemplateColumn    `json:"columns"`
	SampleData []map[string]string `json:"sampleData,omitempty"`
}

// ProductTemplate returns the template definition for product imports.
func ProductTemplate() Template {
	return Template{
		Entity:  "products",
		Version: "1.0",
		Columns: []TemplateColumn{
			{Name: string(ColProductCode), Description: "Groups rows into one product; each row becomes a variant", Required: true, Type: "string", Example: "S-106"},
			{Name: string(ColProductName), Description: "Product name (taken from the first row of each code)", Required: true, Type: "string", Example: "Slim Cabinet Handle"},
			{Name: string(ColCategory), Description: "Category name or path separated by '>'", Type: "string", Example: "Hardware > Handles"},
			{Name: string(ColShortDescription), Description: "One-line summary", Type: "string", Example: "Brushed steel pull handle"},
			{Name: string(ColFullDescription), Description: "Long description", Type: "string", Example: "Solid steel handle with concealed screws"},
			{Name: string(ColSize), Description: "Variant size", Type: "string", Example: "96MM"},
			{Name: string(ColFinish), Description: "Variant colour or finish", Type: "string", Example: "Matt"},
			{Name: string(ColPackingSize), Description: "Units per pack", Type: "string", Example: "10 pcs"},
			{Name: string(ColPrice), Description: "Variant price; currency symbols and separators are ignored", Type: "number", Example: "₹1,320.00"},
			{Name: string(ColHSNCode), Description: "HSN tax code", Type: "string", Example: "8302"},
			{Name: string(ColMaterial), Description: "Material", Type: "string", Example: "Stainless steel"},
			{Name: string(ColVariantCode), Description: "Variant SKU (derived from code, size and finish if empty)", Type: "string", Example: "S-106-96MM-MATT"},
			{Name: string(ColImageURL), Description: "Product image URL", Type: "string", Example: "https://cdn.example.com/s-106.jpg"},
			{Name: string(ColNotes), Description: "Internal notes", Type: "string", Example: ""},
		},
		SampleData: []map[string]string{
			{
				string(ColProductCode): "S-106",
				string(ColProductName): "Slim Cabinet Handle",
				string(ColCategory):    "Hardware > Handles",
				string(ColSize):        "96MM",
				string(ColFinish):      "Matt",
				string(ColPrice):       "132",
			},
			{
				string(ColProductCode): "S-106",
				string(ColProductName): "Slim Cabinet Handle",
				string(ColCategory):    "Hardware > Handles",
				string(ColSize):        "128MM",
				string(ColFinish):      "Matt",
				string(ColPrice):       "168",
			},
		},
	}
}

// WriteCSVTemplate writes the header row plus sample rows as CSV.
func WriteCSVTemplate(w io.Writer, t Template) error {
	records := make([][]string, 0, len(t.SampleData)+1)
	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
	}
	records = append(records, header)
	for _, sample := range t.SampleData {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = sample[col.Name]
		}
		records = append(records, row)
	}
	_, err := io.WriteString(w, Serialize(records))
	return err
}

// WriteXLSXTemplate writes a workbook with a Products sheet and an Instructions sheet.
func WriteXLSXTemplate(w io.Writer, t Template) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProductsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("required style: %w", err)
	}

	for i, col := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		text, style := col.Name, headerStyle
		if col.Required {
			text, style = col.Name+" *", requiredStyle
		}
		if err := f.SetCellValue(ProductsSheet, cell, text); err != nil {
			return err
		}
		if err := f.SetCellStyle(ProductsSheet, cell, cell, style); err != nil {
			return err
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(ProductsSheet, colName, colName, 22); err != nil {
			return err
		}
	}

	for rowIdx, sample := range t.SampleData {
		for colIdx, col := range t.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(ProductsSheet, cell, sample[col.Name]); err != nil {
				return err
			}
		}
	}

	const instructions = "Instructions"
	if _, err := f.NewSheet(instructions); err != nil {
		return fmt.Errorf("instructions sheet: %w", err)
	}
	_ = f.SetCellValue(instructions, "A1", "Product Import Instructions")
	_ = f.SetCellValue(instructions, "A2", "Rows sharing a Product Code become variants of one product. Category paths use '>' between levels.")
	_ = f.SetCellValue(instructions, "A3", "Column Definitions:")
	for i, col := range t.Columns {
		row := i + 4
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		_ = f.SetCellValue(instructions, fmt.Sprintf("A%d", row), col.Name)
		_ = f.SetCellValue(instructions, fmt.Sprintf("B%d", row), col.Description)
		_ = f.SetCellValue(instructions, fmt.Sprintf("C%d", row), required)
		_ = f.SetCellValue(instructions, fmt.Sprintf("D%d", row), col.Type)
		_ = f.SetCellValue(instructions, fmt.Sprintf("E%d", row), col.Example)
	}
	_ = f.SetColWidth(instructions, "A", "A", 22)
	_ = f.SetColWidth(instructions, "B", "B", 60)
	_ = f.SetColWidth(instructions, "C", "D", 12)
	_ = f.SetColWidth(instructions, "E", "E", 36)

	if idx, err := f.GetSheetIndex(ProductsSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
