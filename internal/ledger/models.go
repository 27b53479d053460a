package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Balance is an owner's available (non-escrowed) balance for one token.
type Balance struct {
	gorm.Model `json:"-"`
	Owner      string `gorm:"uniqueIndex:idx_owner_token" json:"owner"`
	Token      string `gorm:"uniqueIndex:idx_owner_token" json:"token"`
	Amount     int64  `json:"amount"`
}

// Escrow holds the un-swapped remainder of a strategy's deposit. Created at
// strategy creation, debited one tranche per commit, drained by refund on
// cancellation.
type Escrow struct {
	gorm.Model `json:"-"`
	StrategyID string `gorm:"uniqueIndex" json:"strategy_id"`
	Owner      string `json:"owner"`
	Token      string `json:"token"`
	Amount     int64  `json:"amount"`
}

// SwapCommit is the ledger's record of one committed tranche. The unique
// (strategy_id, order_index) index is the ledger-level exactly-once guard:
// two racing executions for the same order index cannot both insert a row.
type SwapCommit struct {
	gorm.Model   `json:"-"`
	CommitID     string    `gorm:"uniqueIndex" json:"commit_id"`
	StrategyID   string    `gorm:"uniqueIndex:idx_strategy_order" json:"strategy_id"`
	OrderIndex   int       `gorm:"uniqueIndex:idx_strategy_order" json:"order_index"`
	TokenIn      string    `json:"token_in"`
	AmountIn     int64     `json:"amount_in"`
	TokenOut     string    `json:"token_out"`
	AmountOut    int64     `json:"amount_out"`
	Path         string    `json:"path"`
	ReferralCode int64     `json:"referral_code"`
	CreatedAt    time.Time `json:"created_at"`
}
