package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/datatypes"

	"asset-audit/internal/database/models"
	"asset-audit/internal/services/audit/engine"
)

func TestClampLimit(t *testing.T) {
	cases := map[int]int{
		-5:   DefaultHistoryLimit,
		0:    DefaultHistoryLimit,
		1:    1,
		50:   50,
		500:  500,
		501:  MaxHistoryLimit,
		9999: MaxHistoryLimit,
	}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAuditRunRowRoundTrip(t *testing.T) {
	result := &engine.Result{
		Found: []engine.FoundEntry{
			{Serial: "A1", AssetID: "LT-1", Status: "allocated", Location: "HQ-3F"},
			{Serial: "A3", AssetID: "LT-3", Status: "allocated", Location: "Remote", DifferentLocation: true},
		},
		Missing:   []string{"A9"},
		Unscanned: []engine.InventoryRecord{{AssetID: "LT-2", SerialNumber: "A2", Status: "in_store", Location: "HQ-3F"}},
	}
	now := time.Date(2026, 3, 4, 9, 15, 30, 123456789, time.FixedZone("WIB", 7*3600))
	uid := int64(42)

	row, err := buildAuditRunRow("7d1e0b0a-3c57-4d8e-b0a4-6f3f8e2a9c11", "Jane", &uid, "HQ-3F", now, result)
	if err != nil {
		t.Fatal(err)
	}
	if row.TotalItems != 3 || row.FoundItems != 2 || row.MissingItems != 1 {
		t.Fatalf("counts = %d/%d/%d", row.TotalItems, row.FoundItems, row.MissingItems)
	}
	if row.CreatedAt.Location() != time.UTC || row.CreatedAt.Nanosecond() != 123456000 {
		t.Fatalf("created_at = %v", row.CreatedAt)
	}

	run := auditRunFromRow(row)
	if run.AuditID != row.AuditID || run.Location != "HQ-3F" || run.Counts != result.Counts() {
		t.Fatalf("run = %+v", run)
	}

	detail, err := detailFromRow(row)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(detail, result) {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestDetailFromRowEmpty(t *testing.T) {
	detail, err := detailFromRow(models.AuditRun{FoundDetail: datatypes.JSON("null")})
	if err != nil {
		t.Fatal(err)
	}
	if detail.Found == nil || detail.Missing == nil || detail.Unscanned == nil {
		t.Fatalf("expected empty slices, got %+v", detail)
	}
}

func TestDetailFromRowCorrupt(t *testing.T) {
	_, err := detailFromRow(models.AuditRun{FoundDetail: datatypes.JSON("{not json")})
	if err == nil {
		t.Fatal("expected error for corrupt detail")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: bad", engine.ErrInvalidArgument), codes.InvalidArgument},
		{fmt.Errorf("%w: down", engine.ErrDependencyUnavailable), codes.Unavailable},
		{fmt.Errorf("%w: insert", engine.ErrPersistenceFailure), codes.Internal},
		{context.Canceled, codes.Canceled},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{status.Error(codes.NotFound, "nope"), codes.NotFound},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) should be nil")
	}
}

func TestCompareValidatesBeforeStorage(t *testing.T) {
	h := NewAuditHandler(nil, nil, nil, nil)

	_, err := h.Compare(context.Background(), CompareRequest{Location: "HQ-3F", AuditorName: "  "})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("blank auditor: got %v", err)
	}

	_, err = h.Compare(context.Background(), CompareRequest{Location: " ", AuditorName: "Jane"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("blank location: got %v", err)
	}
}

func TestGetAuditRunRejectsMalformedID(t *testing.T) {
	h := NewAuditHandler(nil, nil, nil, nil)
	_, err := h.GetAuditRun(context.Background(), "not-a-uuid")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("got %v", err)
	}
}

func TestHistoryCacheFieldGeneration(t *testing.T) {
	if historyCacheField(3, 50, false) == historyCacheField(4, 50, false) {
		t.Fatal("generations must not share a cache field")
	}
	if historyCacheField(3, 50, false) == historyCacheField(3, 50, true) {
		t.Fatal("detail and summary pages must not share a cache field")
	}
}
