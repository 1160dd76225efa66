package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Asset lifecycle states as stored by the asset subsystem.
const (
	AssetStatusInStore   = "in_store"
	AssetStatusAllocated = "allocated"
	AssetStatusRepair    = "repair"
	AssetStatusScrapped  = "scrapped"
	AssetStatusLost      = "lost"
)

type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan StringArray: %v", value)
	}

	return json.Unmarshal(bytes, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type Location struct {
	ID        int32   `gorm:"primaryKey"`
	Code      string  `gorm:"size:100;uniqueIndex;not null"`
	Name      string  `gorm:"size:255"`
	Address   *string `gorm:"size:255"`
	IsActive  bool    `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Assets []Asset `gorm:"foreignKey:LocationCode;references:Code"`
}

// AssetSerialKey is the SQL form of a trimmed serial. It strips the ASCII
// whitespace set Go's strings.TrimSpace strips, so "A1\r" and "\tA1" both
// key as "A1". PostgreSQL TRIM alone only removes spaces.
const AssetSerialKey = `BTRIM(serial_number, E' \t\n\r\x0B\x0C')`

// Asset is owned by the asset subsystem. This service only reads it.
type Asset struct {
	ID           int64   `gorm:"primaryKey"`
	AssetTag     string  `gorm:"size:100;uniqueIndex;not null"`
	SerialNumber string  `gorm:"size:255;index"`
	AssetName    string  `gorm:"size:255"`
	Status       string  `gorm:"size:50;index"`
	LocationCode string  `gorm:"size:100;index"`
	AssignedTo   *string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
