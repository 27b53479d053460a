package executor

import (
	"time"

	"gorm.io/gorm"
)

// Reconciliation records the one genuinely dangerous failure mode: the
// ledger commit for an order succeeded but the strategy bookkeeping update
// lost a race. Funds have moved, the record may not reflect it. These rows
// are surfaced to operators and never retried automatically, since an
// automatic retry risks a double execution.
type Reconciliation struct {
	gorm.Model       `json:"-"`
	ReconciliationID string    `gorm:"uniqueIndex" json:"reconciliation_id"`
	StrategyID       string    `gorm:"index" json:"strategy_id"`
	OrderIndex       int       `json:"order_index"`
	CommitID         string    `json:"commit_id"`
	Reason           string    `json:"reason"`
	Resolved         bool      `json:"resolved"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
