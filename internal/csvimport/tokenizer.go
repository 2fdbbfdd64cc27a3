package csvimport

import "strings"

const bom = "\ufeff"

// Record is one tokenized line of fields plus the line it started on.
type Record struct {
	Line   int
	Fields []string
}

// Tokenize splits raw CSV text into records. Quoted fields may hold commas
// and newlines; "" inside a quoted field is a literal quote. Records whose
// raw text is blank are dropped. An unterminated quote is closed by the end
// of input, so Tokenize never fails.
func Tokenize(text string) []Record {
	text = strings.TrimPrefix(text, bom)

	var (
		records  []Record
		fields   []string
		field    strings.Builder
		raw      strings.Builder
		inQuotes bool
		line     = 1
		start    = 1
	)

	flush := func() {
		fields = append(fields, field.String())
		field.Reset()
		if strings.TrimSpace(raw.String()) != "" {
			records = append(records, Record{Line: start, Fields: fields})
		}
		fields = nil
		raw.Reset()
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inQuotes {
			switch {
			case ch == '"' && i+1 < len(text) && text[i+1] == '"':
				field.WriteByte('"')
				raw.WriteString(`""`)
				i++
			case ch == '"':
				inQuotes = false
				raw.WriteByte(ch)
			default:
				if ch == '\n' {
					line++
				}
				field.WriteByte(ch)
				raw.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
			raw.WriteByte(ch)
		case ',':
			fields = append(fields, field.String())
			field.Reset()
			raw.WriteByte(ch)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
			flush()
			line++
			start = line
		case '\n':
			flush()
			line++
			start = line
		default:
			field.WriteByte(ch)
			raw.WriteByte(ch)
		}
	}
	if field.Len() > 0 || len(fields) > 0 || raw.Len() > 0 {
		flush()
	}
	return records
}

// Parse tokenizes text and maps every record after the header onto the
// recognized columns. Unknown headers are ignored; recognized headers missing
// from the file read as "". A file with only a header yields zero rows.
func Parse(text string) []Row {
	return rowsFromRecords(Tokenize(text))
}

func rowsFromRecords(records []Record) []Row {
	if len(records) == 0 {
		return nil
	}

	header := records[0].Fields
	positions := make(map[int]Column, len(header))
	seen := make(map[Column]bool, len(header))
	for i, h := range header {
		col, ok := LookupColumn(h)
		if !ok || seen[col] {
			continue
		}
		positions[i] = col
		seen[col] = true
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		values := make(map[Column]string, len(positions))
		for i, col := range positions {
			if i < len(rec.Fields) {
				values[col] = rec.Fields[i]
			}
		}
		rows = append(rows, Row{Line: rec.Line, values: values})
	}
	return rows
}
