package csvimport

import "strings"

// Serialize renders records as CSV text that Tokenize reads back field for
// field. Fields are quoted only when they need it.
func Serialize(records [][]string) string {
	var b strings.Builder
	for _, rec := range records {
		for i, f := range rec {
			if i > 0 {
				b.WriteByte(',')
			}
			if needsQuotes(f, len(rec)) {
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(f, `"`, `""`))
				b.WriteByte('"')
				continue
			}
			b.WriteString(f)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// SerializeRows writes the header for cols followed by each row's values.
func SerializeRows(cols []Column, rows []Row) string {
	records := make([][]string, 0, len(rows)+1)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = string(c)
	}
	records = append(records, header)
	for _, r := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = r.Get(c)
		}
		records = append(records, rec)
	}
	return Serialize(records)
}

func needsQuotes(f string, width int) bool {
	if strings.ContainsAny(f, ",\"\r\n") {
		return true
	}
	// a lone blank field would otherwise read back as a dropped blank line
	return width == 1 && strings.TrimSpace(f) == ""
}
