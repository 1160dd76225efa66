package export

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"asset-audit/internal/services/audit/engine"
)

func sampleRun() engine.AuditRun {
	return engine.AuditRun{
		AuditID:     "0b6f3a8e-4d5c-4f1e-9a57-2f1c9f3b7d10",
		AuditorName: `Doe, "JD" Jane`,
		Location:    "HQ-3F",
		Timestamp:   time.Date(2026, 3, 4, 9, 15, 30, 123000000, time.UTC),
		Counts:      engine.Counts{TotalItems: 3, FoundItems: 2, MissingItems: 1},
		Detail: &engine.Result{
			Found: []engine.FoundEntry{
				{Serial: "A1", AssetID: "LT-1", Status: "assigned", Location: "HQ-3F"},
				{Serial: "A3", AssetID: "LT-3", Status: "assigned", Location: "Remote", DifferentLocation: true},
			},
			Missing:   []string{"A9"},
			Unscanned: []engine.InventoryRecord{{AssetID: "LT-2", SerialNumber: "A2", Status: "available", Location: "HQ-3F"}},
		},
	}
}

func TestHistoryFilename(t *testing.T) {
	got := HistoryFilename(time.Date(2026, 10, 19, 8, 30, 15, 7000000, time.UTC))
	want := "audit-history-2026-10-19T08-30-15-007Z.csv"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestWriteHistoryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, []engine.AuditRun{sampleRun()}); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d", len(records))
	}
	if !reflect.DeepEqual(records[0], historyHeaders) {
		t.Fatalf("header = %v", records[0])
	}
	want := []string{
		"0b6f3a8e-4d5c-4f1e-9a57-2f1c9f3b7d10",
		`Doe, "JD" Jane`,
		"HQ-3F",
		"2026-03-04T09:15:30.123Z",
		"3", "2", "1",
	}
	if !reflect.DeepEqual(records[1], want) {
		t.Fatalf("row = %q", records[1])
	}
}

func TestWriteHistoryCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "auditId,auditorName,location,timestamp,totalItems,foundItems,missingItems\n" {
		t.Fatalf("got %q", got)
	}
}

func TestRunWorkbook(t *testing.T) {
	data, err := RunWorkbook(sampleRun())
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"Summary", "Found", "Missing", "Unscanned"}) {
		t.Fatalf("sheets = %v", got)
	}

	rate, err := f.GetCellValue("Summary", "B8")
	if err != nil {
		t.Fatal(err)
	}
	if rate != "66.67" {
		t.Fatalf("match rate = %q", rate)
	}

	found, err := f.GetRows("Found")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 || found[2][0] != "A3" || found[2][3] != "Remote" {
		t.Fatalf("found rows = %v", found)
	}

	missing, _ := f.GetRows("Missing")
	if len(missing) != 2 || missing[1][0] != "A9" {
		t.Fatalf("missing rows = %v", missing)
	}

	unscanned, _ := f.GetRows("Unscanned")
	if len(unscanned) != 2 || unscanned[1][1] != "LT-2" {
		t.Fatalf("unscanned rows = %v", unscanned)
	}
}

func TestRunWorkbookWithoutDetail(t *testing.T) {
	run := sampleRun()
	run.Detail = nil
	data, err := RunWorkbook(run)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, _ := f.GetRows("Missing")
	if len(rows) != 1 {
		t.Fatalf("want header only, got %v", rows)
	}
}
