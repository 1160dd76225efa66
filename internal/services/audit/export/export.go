package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"asset-audit/internal/services/audit/engine"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var historyHeaders = []string{
	"auditId", "auditorName", "location", "timestamp", "totalItems", "foundItems", "missingItems",
}

// HistoryFilename builds audit-history-<timestamp>.csv with the colons and
// dots of an ISO-8601 instant replaced so the name is filesystem safe.
func HistoryFilename(now time.Time) string {
	stamp := now.UTC().Format(timestampLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "audit-history-" + stamp + ".csv"
}

func WriteHistoryCSV(w io.Writer, runs []engine.AuditRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeaders); err != nil {
		return err
	}
	for _, run := range runs {
		record := []string{
			run.AuditID,
			run.AuditorName,
			run.Location,
			run.Timestamp.UTC().Format(timestampLayout),
			strconv.Itoa(run.TotalItems),
			strconv.Itoa(run.FoundItems),
			strconv.Itoa(run.MissingItems),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RunWorkbook renders one audit run as an XLSX workbook with a summary sheet
// and one sheet per result bucket.
func RunWorkbook(run engine.AuditRun) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const summary = "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), summary); err != nil {
		return nil, err
	}

	summaryRows := [][]any{
		{"Audit ID", run.AuditID},
		{"Auditor", run.AuditorName},
		{"Location", run.Location},
		{"Timestamp", run.Timestamp.UTC().Format(timestampLayout)},
		{"Total Items", run.TotalItems},
		{"Found Items", run.FoundItems},
		{"Missing Items", run.MissingItems},
		{"Match Rate (%)", run.MatchRate().StringFixed(2)},
	}
	if err := writeRows(f, summary, nil, summaryRows); err != nil {
		return nil, err
	}

	detail := run.Detail
	if detail == nil {
		detail = &engine.Result{}
	}

	found := make([][]any, 0, len(detail.Found))
	for _, e := range detail.Found {
		found = append(found, []any{e.Serial, e.AssetID, e.Status, e.Location, e.DifferentLocation})
	}
	if err := writeSheet(f, "Found", []string{"Serial", "Asset ID", "Status", "Location", "Different Location"}, found); err != nil {
		return nil, err
	}

	missing := make([][]any, 0, len(detail.Missing))
	for _, s := range detail.Missing {
		missing = append(missing, []any{s})
	}
	if err := writeSheet(f, "Missing", []string{"Serial"}, missing); err != nil {
		return nil, err
	}

	unscanned := make([][]any, 0, len(detail.Unscanned))
	for _, r := range detail.Unscanned {
		unscanned = append(unscanned, []any{r.SerialNumber, r.AssetID, r.Status, r.Location})
	}
	if err := writeSheet(f, "Unscanned", []string{"Serial", "Asset ID", "Status", "Location"}, unscanned); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	return writeRows(f, sheet, headers, rows)
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	r := 1
	if len(headers) > 0 {
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return err
			}
		}
		r++
	}
	for _, row := range rows {
		for i, v := range row {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		r++
	}
	return nil
}
