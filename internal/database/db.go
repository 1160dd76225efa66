package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-audit/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func MigrateAuditDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Location{},
		&models.Asset{},
		&models.AuditRun{},
	); err != nil {
		return err
	}

	// Serial lookups filter on the trimmed key, which the plain column index
	// cannot serve.
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_assets_serial_key ON assets ((" + models.AssetSerialKey + "))").Error; err != nil {
		return fmt.Errorf("failed to create serial key index: %w", err)
	}
	return nil
}
