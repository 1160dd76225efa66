package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"asset-audit/config"
	"asset-audit/internal/database/models"
	"asset-audit/internal/services/audit/engine"
)

const (
	LOCATIONS_CACHE_KEY = "inventory:locations"
	CACHE_TTL_MEDIUM    = 30 * time.Minute

	// serialLookupChunk keeps IN lists well under the PostgreSQL parameter limit.
	serialLookupChunk = 1000
)

type Location struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// InventoryHandler serves read-only inventory snapshots for audits.
type InventoryHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client) *InventoryHandler {
	return &InventoryHandler{
		db:    db,
		redis: redisClient,
	}
}

// WithTx returns a handler whose reads run inside tx.
func (s *InventoryHandler) WithTx(tx *gorm.DB) *InventoryHandler {
	return &InventoryHandler{db: tx, redis: s.redis}
}

func assetToRecord(asset models.Asset) engine.InventoryRecord {
	return engine.InventoryRecord{
		AssetID:      asset.AssetTag,
		SerialNumber: asset.SerialNumber,
		Status:       asset.Status,
		Location:     asset.LocationCode,
	}
}

func locationToDTO(location models.Location) Location {
	return Location{
		Code:     location.Code,
		Name:     location.Name,
		IsActive: location.IsActive,
	}
}

// -- Snapshot --

func (s *InventoryHandler) RecordsAtLocation(ctx context.Context, location string) ([]engine.InventoryRecord, error) {
	var assets []models.Asset
	if err := s.db.WithContext(ctx).
		Where("location_code = ?", location).
		Order("id ASC").
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("query assets at location: %w", err)
	}

	records := make([]engine.InventoryRecord, len(assets))
	for i, asset := range assets {
		records[i] = assetToRecord(asset)
	}
	return records, nil
}

func (s *InventoryHandler) RecordsBySerial(ctx context.Context, serials []string) ([]engine.InventoryRecord, error) {
	var assets []models.Asset
	for start := 0; start < len(serials); start += serialLookupChunk {
		end := start + serialLookupChunk
		if end > len(serials) {
			end = len(serials)
		}

		var chunk []models.Asset
		if err := s.db.WithContext(ctx).
			Where(models.AssetSerialKey+" IN ?", serials[start:end]).
			Order("id ASC").
			Find(&chunk).Error; err != nil {
			return nil, fmt.Errorf("query assets by serial: %w", err)
		}
		assets = append(assets, chunk...)
	}

	// Chunks are ordered individually; restore one global id order.
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })

	return matchingSerials(assets, serials), nil
}

// matchingSerials keeps the assets whose normalized serial was requested, so
// the result agrees with the engine's own key even where SQL trimming and
// engine.Normalize differ.
func matchingSerials(assets []models.Asset, serials []string) []engine.InventoryRecord {
	want := make(map[string]struct{}, len(serials))
	for _, serial := range serials {
		want[engine.Normalize(serial)] = struct{}{}
	}

	records := make([]engine.InventoryRecord, 0, len(assets))
	for _, asset := range assets {
		if _, ok := want[engine.Normalize(asset.SerialNumber)]; ok {
			records = append(records, assetToRecord(asset))
		}
	}
	return records
}

// -- Locations --

func (s *InventoryHandler) ListLocations(ctx context.Context) ([]Location, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, LOCATIONS_CACHE_KEY).Result()
		if err == nil {
			var cached []Location
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			config.GetLogger().WithError(err).Warn("redis GET locations failed, falling back to DB")
		}
	}

	var rows []models.Location
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}

	locations := make([]Location, len(rows))
	for i, row := range rows {
		locations[i] = locationToDTO(row)
	}

	if s.redis != nil {
		if jsonData, err := json.Marshal(locations); err == nil {
			if err := s.redis.Set(ctx, LOCATIONS_CACHE_KEY, jsonData, CACHE_TTL_MEDIUM).Err(); err != nil {
				config.GetLogger().WithError(err).Warnf("failed to set cache for key %s", LOCATIONS_CACHE_KEY)
			}
		}
	}

	return locations, nil
}

// LocationExists reports whether code is a known location. It reads the
// table directly so a stale cache cannot reject a new location.
func (s *InventoryHandler) LocationExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Location{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("query location: %w", err)
	}
	return count > 0, nil
}
