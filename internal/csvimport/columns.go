package csvimport

import "strings"

// Column is a recognized import header.
type Column string

const (
	ColProductCode      Column = "Product Code"
	ColProductName      Column = "Product Name"
	ColCategory         Column = "Category"
	ColShortDescription Column = "Short Description"
	ColFullDescription  Column = "Full Description"
	ColSize             Column = "Size (MM / Inch)"
	ColFinish           Column = "Colour / Finish"
	ColPackingSize      Column = "Packing Size"
	ColPrice            Column = "MRP (INR)"
	ColHSNCode          Column = "HSN Code"
	ColMaterial         Column = "Material"
	ColVariantCode      Column = "Variant Code"
	ColImageURL         Column = "Product Image URL"
	ColNotes            Column = "Notes"
)

// Columns lists every recognized header in template order.
var Columns = []Column{
	ColProductCode,
	ColProductName,
	ColCategory,
	ColShortDescription,
	ColFullDescription,
	ColSize,
	ColFinish,
	ColPackingSize,
	ColPrice,
	ColHSNCode,
	ColMaterial,
	ColVariantCode,
	ColImageURL,
	ColNotes,
}

var columnsByKey = func() map[string]Column {
	m := make(map[string]Column, len(Columns))
	for _, c := range Columns {
		m[headerKey(string(c))] = c
	}
	return m
}()

// LookupColumn matches a raw header cell against the recognized headers.
// Matching ignores case, surrounding whitespace and a trailing required marker ("*").
func LookupColumn(header string) (Column, bool) {
	c, ok := columnsByKey[headerKey(header)]
	return c, ok
}

func headerKey(header string) string {
	h := strings.TrimSpace(header)
	h = strings.TrimSpace(strings.TrimSuffix(h, "*"))
	return strings.ToLower(h)
}

// Row is one data record keyed by recognized column.
type Row struct {
	// Line is the 1-based line (or sheet row) where the record starts.
	Line   int
	values map[Column]string
}

// NewRow builds a row from explicit values; absent columns read as "".
func NewRow(line int, values map[Column]string) Row {
	cp := make(map[Column]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Row{Line: line, values: cp}
}

// Get returns the raw value for c, or "" when the file lacked that header.
func (r Row) Get(c Column) string {
	return r.values[c]
}

// Values copies the row into a map holding every recognized column.
func (r Row) Values() map[Column]string {
	out := make(map[Column]string, len(Columns))
	for _, c := range Columns {
		out[c] = r.values[c]
	}
	return out
}
