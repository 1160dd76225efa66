package engine

import "context"

// InventoryRecord is one asset as the inventory knows it at audit time.
type InventoryRecord struct {
	AssetID      string `json:"assetId"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
	Location     string `json:"location"`
}

// FoundEntry is a scanned serial that matched an inventory record.
type FoundEntry struct {
	Serial            string `json:"serial"`
	AssetID           string `json:"assetId"`
	Status            string `json:"status"`
	Location          string `json:"location"`
	DifferentLocation bool   `json:"differentLocation"`
}

type Result struct {
	Found     []FoundEntry      `json:"found"`
	Missing   []string          `json:"missing"`
	Unscanned []InventoryRecord `json:"unscanned"`
}

type Counts struct {
	TotalItems   int `json:"totalItems"`
	FoundItems   int `json:"foundItems"`
	MissingItems int `json:"missingItems"`
}

// Counts derives the persisted totals. Every scanned serial is either found
// or missing, so TotalItems == FoundItems + MissingItems.
func (r *Result) Counts() Counts {
	return Counts{
		TotalItems:   len(r.Found) + len(r.Missing),
		FoundItems:   len(r.Found),
		MissingItems: len(r.Missing),
	}
}

// SnapshotProvider reads the inventory. Implementations must return records
// in a stable order; the first record per serial wins the lookup.
type SnapshotProvider interface {
	RecordsAtLocation(ctx context.Context, location string) ([]InventoryRecord, error)
	RecordsBySerial(ctx context.Context, serials []string) ([]InventoryRecord, error)
}
