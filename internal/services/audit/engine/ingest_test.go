package engine

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseSerials(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"header precedence", "Serial\nABC123\nABC123\nXYZ999", []string{"ABC123", "XYZ999"}},
		{"positional fallback", "ABC123\nXYZ999", []string{"ABC123", "XYZ999"}},
		{"serial number header", "Asset,Serial Number,Room\nLT-1, SN-1 ,3F\nLT-2,SN-2,3F", []string{"SN-1", "SN-2"}},
		{"header case and padding", "  SERIAL  \nA1\nA2", []string{"A1", "A2"}},
		{"empty header column falls back", "Serial,Note\n,A1\n,A2", []string{}},
		{"no header takes first column", "A1,ignored\nA2,ignored\nA1", []string{"A1", "A2"}},
		{"windows line endings", "Serial\r\nA1\r\nA2\r\n", []string{"A1", "A2"}},
		{"byte order mark", utf8BOM + "Serial\nA1", []string{"A1"}},
		{"blank and whitespace rows", "Serial\nA1\n\n   \nA2\n", []string{"A1", "A2"}},
		{"empty file", "", []string{}},
		{"header only", "Serial", []string{}},
		{"quoted values", "Serial\n\"A,1\"\n\"A2\"", []string{"A,1", "A2"}},
		{"ragged rows", "Serial,Room\nA1\nA2,3F,extra", []string{"A1", "A2"}},
		{"unterminated quote drops only its line", "Serial\nA1\n\"A2\nA3\nA4\n", []string{"A1", "A3", "A4"}},
		{"unterminated quote without header", "A1\n\"A2\nA3\nA4\n", []string{"A1", "A3", "A4"}},
		{"bare quote drops only its line", "Serial\nA1\nA\"2\nA3", []string{"A1", "A3"}},
		{"carriage return line endings", "Serial\rA1\rA2", []string{"A1", "A2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSerials(tt.in)
			if got == nil {
				t.Fatalf("got nil slice")
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseSerials(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// A recognized header whose column is blank falls back to the first column
// of the data rows, which are also blank here, so nothing is extracted.
func TestParseSerialsRecognizedHeaderNeverReturned(t *testing.T) {
	got := ParseSerials("Serial\n\n ")
	if len(got) != 0 {
		t.Fatalf("want empty, got %q", got)
	}
}

func TestParseSerialsHeaderColumnEmptyUsesFirstColumn(t *testing.T) {
	got := ParseSerials("Tag,Serial\nT1,\nT2,  ")
	want := []string{"T1", "T2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseSerialsXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Asset Tag", "Serial Number"},
		{"LT-0001", "SN-1"},
		{"LT-0002", " SN-2 "},
		{"LT-0003", "SN-1"},
	})
	got, err := ParseSerialsXLSX(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"SN-1", "SN-2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseSerialsXLSXPositional(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"A1"},
		{"A2"},
		{12345},
	})
	got, err := ParseSerialsXLSX(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A1", "A2", "12345"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseSerialsXLSXMultilineCell(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"Serial"},
		{"A1"},
		{"A2\nA3"},
		{"A4"},
	})
	got, err := ParseSerialsXLSX(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A1", "A4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseSerialsXLSXUnreadable(t *testing.T) {
	_, err := ParseSerialsXLSX(strings.NewReader("not a workbook"))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
