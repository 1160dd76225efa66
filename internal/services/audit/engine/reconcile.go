package engine

import (
	"context"
	"fmt"
)

// Reconcile classifies every scanned serial as found (here or elsewhere) or
// missing from inventory, and lists the records expected at location that
// were not scanned.
//
// scanned is deduplicated and normalized again here, so callers may pass raw
// input. An empty scan is a valid audit: everything at the location comes
// back as unscanned.
func Reconcile(ctx context.Context, provider SnapshotProvider, location string, scanned []string) (*Result, error) {
	location = Normalize(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrInvalidArgument)
	}
	serials := Dedupe(scanned)

	locationRecords, err := provider.RecordsAtLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: read records at %q: %v", ErrDependencyUnavailable, location, err)
	}

	var global []InventoryRecord
	if len(serials) > 0 {
		global, err = provider.RecordsBySerial(ctx, serials)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup scanned serials: %v", ErrDependencyUnavailable, err)
		}
	}

	// First record per serial wins; the snapshot order is stable.
	bySerial := make(map[string]InventoryRecord, len(global))
	for _, rec := range global {
		key := Normalize(rec.SerialNumber)
		if key == "" {
			continue
		}
		if _, ok := bySerial[key]; !ok {
			bySerial[key] = rec
		}
	}

	result := &Result{
		Found:     make([]FoundEntry, 0, len(serials)),
		Missing:   make([]string, 0),
		Unscanned: make([]InventoryRecord, 0),
	}

	scannedSet := make(map[string]struct{}, len(serials))
	for _, s := range serials {
		scannedSet[s] = struct{}{}

		match, ok := bySerial[s]
		if !ok {
			result.Missing = append(result.Missing, s)
			continue
		}
		result.Found = append(result.Found, FoundEntry{
			Serial:            s,
			AssetID:           match.AssetID,
			Status:            match.Status,
			Location:          match.Location,
			DifferentLocation: Normalize(match.Location) != location,
		})
	}

	// Each location record is judged on its own, so duplicate or blank
	// serials in inventory still show up individually.
	for _, rec := range locationRecords {
		if _, ok := scannedSet[Normalize(rec.SerialNumber)]; !ok {
			result.Unscanned = append(result.Unscanned, rec)
		}
	}

	return result, nil
}
