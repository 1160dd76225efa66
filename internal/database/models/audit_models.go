package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditRun rows are insert-only.
type AuditRun struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	AuditID         string `gorm:"type:uuid;uniqueIndex;not null"`
	AuditorName     string `gorm:"size:255;not null"`
	AuditorUserID   *int64
	Location        string         `gorm:"size:100;index;not null"`
	TotalItems      int            `gorm:"not null"`
	FoundItems      int            `gorm:"not null"`
	MissingItems    int            `gorm:"not null"`
	FoundDetail     datatypes.JSON `gorm:"type:jsonb"`
	MissingSerials  StringArray    `gorm:"type:jsonb"`
	UnscannedDetail datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"index;not null"`
}
