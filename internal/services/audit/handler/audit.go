package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"asset-audit/config"
	"asset-audit/internal/database/models"
	"asset-audit/internal/events"
	"asset-audit/internal/services/audit/engine"
	inventory "asset-audit/internal/services/inventory/handler"
)

const (
	HISTORY_CACHE_KEY      = "audit:history"
	HISTORY_GENERATION_KEY = "audit:history:gen"
	AUDIT_RUN_CACHE_PREFIX = "audit:run:"
	CACHE_TTL_SHORT        = 5 * time.Minute
	CACHE_TTL_LONG         = 2 * time.Hour

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type CompareRequest struct {
	Location      string
	Serials       []string
	AuditorName   string
	AuditorUserID *int64
}

type CompareResponse struct {
	engine.Result
	AuditID   string     `json:"auditId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Recorded  bool       `json:"recorded"`
	Warning   string     `json:"warning,omitempty"`
	Serials   []string   `json:"serials,omitempty"`
}

// --- Handler ---

type AuditHandler struct {
	db             *gorm.DB
	redis          *redis.Client
	inventory      *inventory.InventoryHandler
	bus            events.Bus
	strictSnapshot bool
	now            func() time.Time
}

type Option func(*AuditHandler)

// WithStrictSnapshot reads the inventory and writes the audit run in one
// repeatable-read transaction.
func WithStrictSnapshot(strict bool) Option {
	return func(h *AuditHandler) { h.strictSnapshot = strict }
}

func WithClock(now func() time.Time) Option {
	return func(h *AuditHandler) { h.now = now }
}

func NewAuditHandler(db *gorm.DB, redisClient *redis.Client, inv *inventory.InventoryHandler, bus events.Bus, opts ...Option) *AuditHandler {
	h := &AuditHandler{
		db:        db,
		redis:     redisClient,
		inventory: inv,
		bus:       bus,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AuditHandler) InvalidateAuditCaches(ctx context.Context) {
	if h.redis == nil {
		return
	}
	// Bumping the generation retires any page a slower reader is still about
	// to write back.
	pipe := h.redis.TxPipeline()
	pipe.Incr(ctx, HISTORY_GENERATION_KEY)
	pipe.Del(ctx, HISTORY_CACHE_KEY)
	if _, err := pipe.Exec(ctx); err != nil {
		config.GetLogger().WithError(err).Warnf("failed to invalidate cache for key %s", HISTORY_CACHE_KEY)
	}
}

// -- Compare --

// Compare reconciles the scanned serials against the location's inventory
// and records the run. When only the write fails the result is still
// returned, with Recorded false.
func (h *AuditHandler) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	auditorName := strings.TrimSpace(req.AuditorName)
	if auditorName == "" {
		return nil, status.Error(codes.InvalidArgument, "auditor name is required")
	}
	location := engine.Normalize(req.Location)
	if location == "" {
		return nil, status.Error(codes.InvalidArgument, "location is required")
	}
	serials := engine.Dedupe(req.Serials)

	var (
		result    *engine.Result
		run       *engine.AuditRun
		recordErr error
	)

	audit := func(db *gorm.DB, inv *inventory.InventoryHandler) error {
		exists, err := inv.LocationExists(ctx, location)
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrDependencyUnavailable, err)
		}
		if !exists {
			return fmt.Errorf("%w: unknown location %q", engine.ErrInvalidArgument, location)
		}

		result, err = engine.Reconcile(ctx, inv, location, serials)
		if err != nil {
			return err
		}

		run, recordErr = h.recordAuditRun(ctx, db, auditorName, req.AuditorUserID, location, result)
		return recordErr
	}

	var err error
	if h.strictSnapshot {
		err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return audit(tx, h.inventory.WithTx(tx))
		}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	} else {
		err = audit(h.db, h.inventory)
	}

	logger := config.GetLogger()
	if err != nil {
		if result == nil {
			config.LogError(logger, "audit", "Compare", "reconcile", map[string]any{"location": location, "serials": len(serials)}, err)
			return nil, toStatus(err)
		}
		if recordErr == nil {
			// The insert succeeded but the transaction did not commit.
			recordErr = fmt.Errorf("%w: commit: %v", engine.ErrPersistenceFailure, err)
		}
	}

	resp := &CompareResponse{Result: *result}
	if recordErr != nil {
		config.LogError(logger, "audit", "Compare", "record audit run", map[string]any{"location": location, "auditor": auditorName}, recordErr)
		resp.Warning = "audit result was computed but could not be recorded"
		return resp, nil
	}

	ts := run.Timestamp
	resp.AuditID = run.AuditID
	resp.Timestamp = &ts
	resp.Recorded = true

	h.InvalidateAuditCaches(ctx)
	h.publishRecorded(ctx, *run)

	return resp, nil
}

// RecordAuditRun persists one run. Counts are derived once from result and
// stored together with the full detail.
func (h *AuditHandler) RecordAuditRun(ctx context.Context, auditorName, location string, result *engine.Result) (*engine.AuditRun, error) {
	run, err := h.recordAuditRun(ctx, h.db, strings.TrimSpace(auditorName), nil, engine.Normalize(location), result)
	if err != nil {
		return nil, toStatus(err)
	}
	h.InvalidateAuditCaches(ctx)
	h.publishRecorded(ctx, *run)
	return run, nil
}

func (h *AuditHandler) recordAuditRun(ctx context.Context, db *gorm.DB, auditorName string, auditorUserID *int64, location string, result *engine.Result) (*engine.AuditRun, error) {
	if auditorName == "" {
		return nil, fmt.Errorf("%w: auditor name is required", engine.ErrInvalidArgument)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: result is required", engine.ErrInvalidArgument)
	}

	row, err := buildAuditRunRow(uuid.NewString(), auditorName, auditorUserID, location, h.now(), result)
	if err != nil {
		return nil, fmt.Errorf("%w: encode detail: %v", engine.ErrPersistenceFailure, err)
	}

	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: insert audit run: %v", engine.ErrPersistenceFailure, err)
	}

	run := auditRunFromRow(row)
	run.Detail = result
	return &run, nil
}

func (h *AuditHandler) publishRecorded(ctx context.Context, run engine.AuditRun) {
	if h.bus == nil {
		return
	}
	run.Detail = nil
	if err := h.bus.Publish(ctx, events.TopicAuditRecorded, run); err != nil {
		config.GetLogger().WithError(err).WithField("auditId", run.AuditID).Warn("failed to publish audit event")
	}
}

// -- History --

func (h *AuditHandler) ListAuditRuns(ctx context.Context, limit int, includeDetail bool) ([]engine.AuditRun, error) {
	limit = ClampLimit(limit)

	var field string
	if h.redis != nil {
		field = historyCacheField(h.historyGeneration(ctx), limit, includeDetail)
		if cached, ok := h.cachedHistory(ctx, field); ok {
			return cached, nil
		}
	}

	query := h.db.WithContext(ctx).Model(&models.AuditRun{})
	if !includeDetail {
		query = query.Omit("found_detail", "missing_serials", "unscanned_detail")
	}

	var rows []models.AuditRun
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed to list audit runs: %v", err)
	}

	runs := make([]engine.AuditRun, 0, len(rows))
	for _, row := range rows {
		run := auditRunFromRow(row)
		if includeDetail {
			detail, err := detailFromRow(row)
			if err != nil {
				return nil, status.Errorf(codes.DataLoss, "audit run %s has unreadable detail: %v", row.AuditID, err)
			}
			run.Detail = detail
		}
		runs = append(runs, run)
	}

	if h.redis != nil {
		h.cacheHistory(ctx, field, runs)
	}

	return runs, nil
}

// historyCacheField keys a history page by the cache generation it was read
// under, so pages read before an invalidation are never served after it.
func historyCacheField(generation int64, limit int, includeDetail bool) string {
	return fmt.Sprintf("%d:%d:%t", generation, limit, includeDetail)
}

func (h *AuditHandler) historyGeneration(ctx context.Context) int64 {
	gen, err := h.redis.Get(ctx, HISTORY_GENERATION_KEY).Int64()
	if err != nil && err != redis.Nil {
		config.GetLogger().WithError(err).Warn("redis GET audit history generation failed")
	}
	return gen
}

func (h *AuditHandler) cachedHistory(ctx context.Context, field string) ([]engine.AuditRun, bool) {
	val, err := h.redis.HGet(ctx, HISTORY_CACHE_KEY, field).Result()
	if err != nil {
		if err != redis.Nil {
			config.GetLogger().WithError(err).Warn("redis HGET audit history failed, falling back to DB")
		}
		return nil, false
	}
	var cached []engine.AuditRun
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false
	}
	return cached, true
}

func (h *AuditHandler) cacheHistory(ctx context.Context, field string, runs []engine.AuditRun) {
	jsonData, err := json.Marshal(runs)
	if err != nil {
		return
	}
	pipe := h.redis.TxPipeline()
	pipe.HSet(ctx, HISTORY_CACHE_KEY, field, jsonData)
	pipe.Expire(ctx, HISTORY_CACHE_KEY, CACHE_TTL_SHORT)
	if _, err := pipe.Exec(ctx); err != nil {
		config.GetLogger().WithError(err).Warnf("failed to set cache for key %s", HISTORY_CACHE_KEY)
	}
}

func (h *AuditHandler) GetAuditRun(ctx context.Context, auditID string) (*engine.AuditRun, error) {
	if _, err := uuid.Parse(auditID); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid audit id %q", auditID)
	}

	cacheKey := AUDIT_RUN_CACHE_PREFIX + auditID
	if h.redis != nil {
		val, err := h.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var cached engine.AuditRun
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &cached, nil
			}
		} else if err != redis.Nil {
			config.GetLogger().WithError(err).Warn("redis GET audit run failed, falling back to DB")
		}
	}

	var row models.AuditRun
	if err := h.db.WithContext(ctx).Where("audit_id = ?", auditID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(codes.NotFound, "audit run %s not found", auditID)
		}
		return nil, status.Errorf(codes.Unavailable, "failed to get audit run: %v", err)
	}

	run := auditRunFromRow(row)
	detail, err := detailFromRow(row)
	if err != nil {
		return nil, status.Errorf(codes.DataLoss, "audit run %s has unreadable detail: %v", auditID, err)
	}
	run.Detail = detail

	// Runs never change, so a long TTL is safe.
	if h.redis != nil {
		if jsonData, err := json.Marshal(run); err == nil {
			if err := h.redis.Set(ctx, cacheKey, jsonData, CACHE_TTL_LONG).Err(); err != nil {
				config.GetLogger().WithError(err).Warnf("failed to set cache for key %s", cacheKey)
			}
		}
	}

	return &run, nil
}

func (h *AuditHandler) ListLocations(ctx context.Context) ([]inventory.Location, error) {
	locations, err := h.inventory.ListLocations(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed to list locations: %v", err)
	}
	return locations, nil
}

// --- Conversions ---

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func buildAuditRunRow(auditID, auditorName string, auditorUserID *int64, location string, now time.Time, result *engine.Result) (models.AuditRun, error) {
	counts := result.Counts()

	found, err := json.Marshal(result.Found)
	if err != nil {
		return models.AuditRun{}, err
	}
	unscanned, err := json.Marshal(result.Unscanned)
	if err != nil {
		return models.AuditRun{}, err
	}

	return models.AuditRun{
		AuditID:         auditID,
		AuditorName:     auditorName,
		AuditorUserID:   auditorUserID,
		Location:        location,
		TotalItems:      counts.TotalItems,
		FoundItems:      counts.FoundItems,
		MissingItems:    counts.MissingItems,
		FoundDetail:     datatypes.JSON(found),
		MissingSerials:  models.StringArray(append([]string{}, result.Missing...)),
		UnscannedDetail: datatypes.JSON(unscanned),
		// PostgreSQL keeps microseconds.
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}, nil
}

func auditRunFromRow(row models.AuditRun) engine.AuditRun {
	return engine.AuditRun{
		AuditID:     row.AuditID,
		AuditorName: row.AuditorName,
		Location:    row.Location,
		Timestamp:   row.CreatedAt.UTC(),
		Counts: engine.Counts{
			TotalItems:   row.TotalItems,
			FoundItems:   row.FoundItems,
			MissingItems: row.MissingItems,
		},
	}
}

func detailFromRow(row models.AuditRun) (*engine.Result, error) {
	detail := &engine.Result{
		Found:     []engine.FoundEntry{},
		Missing:   []string{},
		Unscanned: []engine.InventoryRecord{},
	}
	if len(row.FoundDetail) > 0 {
		if err := json.Unmarshal(row.FoundDetail, &detail.Found); err != nil {
			return nil, fmt.Errorf("found detail: %w", err)
		}
	}
	if row.MissingSerials != nil {
		detail.Missing = append(detail.Missing, row.MissingSerials...)
	}
	if len(row.UnscannedDetail) > 0 {
		if err := json.Unmarshal(row.UnscannedDetail, &detail.Unscanned); err != nil {
			return nil, fmt.Errorf("unscanned detail: %w", err)
		}
	}
	// A stored JSON null decodes to a nil slice.
	if detail.Found == nil {
		detail.Found = []engine.FoundEntry{}
	}
	if detail.Unscanned == nil {
		detail.Unscanned = []engine.InventoryRecord{}
	}
	return detail, nil
}

// toStatus maps engine errors onto gRPC status codes; status errors pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrDependencyUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrPersistenceFailure):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
