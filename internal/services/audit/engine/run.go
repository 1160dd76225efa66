package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditRun is one persisted reconciliation. It is written once and never
// changed.
type AuditRun struct {
	AuditID     string    `json:"auditId"`
	AuditorName string    `json:"auditorName"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
	Counts
	Detail *Result `json:"detail,omitempty"`
}

// MatchRate is the found share of scanned items as a percentage with two
// decimals. A run with nothing scanned reports "0.00".
func (c Counts) MatchRate() decimal.Decimal {
	if c.TotalItems == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.FoundItems)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(c.TotalItems)), 2)
}
