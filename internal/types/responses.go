package types

import "time"

// CreateStrategyRequest is the inbound strategy creation payload from the
// API layer. The owner is taken from the authenticated client, not the body.
type CreateStrategyRequest struct {
	TokenIn         string `json:"token_in" binding:"required"`
	TokenOut        string `json:"token_out" binding:"required"`
	TotalAmount     int64  `json:"total_amount" binding:"required"`
	OrdersTotal     int    `json:"orders_total" binding:"required"`
	IntervalSeconds int64  `json:"interval_seconds" binding:"required"`
}

// CancelResponse reports the outcome of a strategy cancellation, including
// the exact un-executed remainder refunded to the owner.
type CancelResponse struct {
	StrategyID   string    `json:"strategy_id"`
	Status       string    `json:"status"`
	RefundToken  string    `json:"refund_token"`
	RefundAmount int64     `json:"refund_amount"`
	Timestamp    time.Time `json:"timestamp"`
}

// BalanceResponse reports an owner's available ledger balance for one token.
type BalanceResponse struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// TickResponse reports the outcome of a manually triggered scheduler tick.
type TickResponse struct {
	IntentsDue int       `json:"intents_due"`
	Executed   int       `json:"executed"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}
