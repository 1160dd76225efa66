package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const utf8BOM = "\ufeff"

var serialHeaders = map[string]struct{}{
	"serial":        {},
	"serial number": {},
}

// ParseSerials extracts the deduplicated serial list from an uploaded CSV.
//
// The first row is tried as a header: a column named "serial" or "serial
// number" (any case) wins whenever it yields at least one value. Otherwise
// the first column of every row is used, which covers bare hand-typed lists
// with no header at all.
func ParseSerials(text string) []string {
	return extractSerials(readCSVRows(strings.TrimPrefix(text, utf8BOM)))
}

// ParseSerialsXLSX applies the same extraction to the first worksheet of an
// .xlsx workbook.
func ParseSerialsXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable workbook: %v", ErrInvalidArgument, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []string{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable worksheet %q: %v", ErrInvalidArgument, sheets[0], err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], utf8BOM)
	}
	for i := range rows {
		rows[i] = keepSingleLine(rows[i])
	}
	return extractSerials(rows), nil
}

// readCSVRows parses the text one line at a time. Serials never span lines,
// so a malformed line (an unterminated quote, say) is skipped on its own and
// cannot swallow the rows after it.
func readCSVRows(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		reader := csv.NewReader(strings.NewReader(line))
		reader.FieldsPerRecord = -1
		record, err := reader.Read()
		if err != nil {
			continue
		}
		rows = append(rows, keepSingleLine(record))
	}
	return rows
}

// keepSingleLine blanks any field that still carries a line break.
func keepSingleLine(record []string) []string {
	for i, field := range record {
		if strings.ContainsAny(field, "\r\n") {
			record[i] = ""
		}
	}
	return record
}

func extractSerials(rows [][]string) []string {
	if len(rows) == 0 {
		return []string{}
	}

	col := serialColumn(rows[0])
	if col >= 0 {
		values := make([]string, 0, len(rows)-1)
		for _, row := range rows[1:] {
			if col < len(row) {
				values = append(values, row[col])
			}
		}
		if serials := Dedupe(values); len(serials) > 0 {
			return serials
		}
	}

	// A recognized header row is a label, never a serial.
	start := 0
	if col >= 0 {
		start = 1
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows[start:] {
		if len(row) > 0 {
			values = append(values, row[0])
		}
	}
	return Dedupe(values)
}

func serialColumn(header []string) int {
	for i, name := range header {
		if _, ok := serialHeaders[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i
		}
	}
	return -1
}
