package types

import (
	"time"

	"gorm.io/gorm"
)

// Strategy statuses
const (
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Strategy is a recurring-swap plan: a fixed TotalAmount of TokenIn deposited
// once and swapped into TokenOut over OrdersTotal tranches, one tranche per
// IntervalSeconds. Amounts are integer base units of the token.
type Strategy struct {
	gorm.Model      `json:"-"`
	StrategyID      string     `gorm:"uniqueIndex" json:"strategy_id"`
	Owner           string     `gorm:"index" json:"owner"`
	TokenIn         string     `json:"token_in"`
	TokenOut        string     `json:"token_out"`
	TotalAmount     int64      `json:"total_amount"`
	OrdersTotal     int        `json:"orders_total"`
	OrdersExecuted  int        `json:"orders_executed"`
	IntervalSeconds int64      `json:"interval_seconds"`
	Status          string     `gorm:"index" json:"status"` // ACTIVE, COMPLETED, CANCELLED
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the minimum spacing between consecutive executions.
func (s *Strategy) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// PerOrderAmount returns the amount of TokenIn released for order index k
// (0-based). TotalAmount need not divide evenly by OrdersTotal; the division
// remainder lands entirely on the last order so the per-order amounts sum to
// TotalAmount exactly, with no rounding loss.
func (s *Strategy) PerOrderAmount(k int) int64 {
	base := s.TotalAmount / int64(s.OrdersTotal)
	if k == s.OrdersTotal-1 {
		return base + s.TotalAmount%int64(s.OrdersTotal)
	}
	return base
}

// ExecutedAmount returns the total TokenIn released by the orders executed
// so far.
func (s *Strategy) ExecutedAmount() int64 {
	var total int64
	for k := 0; k < s.OrdersExecuted; k++ {
		total += s.PerOrderAmount(k)
	}
	return total
}

// RemainingAmount returns the un-executed TokenIn remainder, i.e. the amount
// refunded to the owner if the strategy is cancelled now.
func (s *Strategy) RemainingAmount() int64 {
	return s.TotalAmount - s.ExecutedAmount()
}

// ExecutionIntent is a scheduler-produced request to execute one specific
// order of one strategy. Intents are ephemeral and never persisted; a stale
// intent is discarded by the executor's re-validation.
type ExecutionIntent struct {
	StrategyID string
	Owner      string
	TokenIn    string
	TokenOut   string
	OrderIndex int
	Amount     int64
}

// Quote is a priced swap path from the quote provider. MinimumOutput is the
// slippage floor computed at quote time; the engine never loosens it. Path
// and ReferralCode are opaque routing payload passed through to the ledger
// commit.
type Quote struct {
	ExpectedOutput int64     `json:"expected_output"`
	MinimumOutput  int64     `json:"minimum_output"`
	Path           string    `json:"path"`
	ReferralCode   int64     `json:"referral_code"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Stale reports whether the quote's freshness window has elapsed at now.
// Committing against a stale quote risks executing on a price that has moved.
func (q *Quote) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(q.FetchedAt) > ttl
}
