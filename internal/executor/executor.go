package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/quote"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// DefaultQuoteTTL is the freshness window: a quote older than this at
	// commit time is discarded rather than executed.
	DefaultQuoteTTL = 30 * time.Second

	// DefaultQuoteTimeout bounds a single quote fetch so a slow provider
	// never hangs a scheduling tick.
	DefaultQuoteTimeout = 5 * time.Second
)

// StrategyStore is the slice of the strategy service the executor needs:
// a current-state read for re-validation and the atomic execution record.
type StrategyStore interface {
	Get(strategyID string) (*types.Strategy, error)
	RecordExecution(strategyID string, orderIndex int, ts time.Time) error
}

// Ledger is the custodial commit primitive. CommitSwap must be atomic and
// conditioned on orderIndex being the next expected index.
type Ledger interface {
	CommitSwap(strategyID string, orderIndex int, tokenIn string, amountIn int64, tokenOut string, minOut int64, path string, referralCode int64) (*ledger.SwapCommit, error)
}

// Service turns one execution intent into a committed, irreversible swap or
// a clean no-op.
type Service struct {
	store        StrategyStore
	ledger       Ledger
	quotes       quote.Provider
	db           *Database
	quoteTTL     time.Duration
	quoteTimeout time.Duration
}

// NewService creates an executor over the given collaborators.
func NewService(gormDB *gorm.DB, store StrategyStore, led Ledger, quotes quote.Provider) *Service {
	return &Service{
		store:        store,
		ledger:       led,
		quotes:       quotes,
		db:           NewDatabase(gormDB),
		quoteTTL:     DefaultQuoteTTL,
		quoteTimeout: DefaultQuoteTimeout,
	}
}

// SetQuoteTTL overrides the quote freshness window.
func (s *Service) SetQuoteTTL(ttl time.Duration) {
	s.quoteTTL = ttl
}

// SetQuoteTimeout overrides the per-fetch quote timeout.
func (s *Service) SetQuoteTimeout(timeout time.Duration) {
	s.quoteTimeout = timeout
}

// Execute runs one intent through the pipeline: re-validate, quote, check
// freshness, commit against the ledger, record the execution.
//
// A stale intent (strategy already advanced or no longer active) is not an
// error: it is discarded silently, which is what makes duplicate and
// overlapping trigger deliveries safe. Quote and commit failures are
// transient and leave the strategy untouched for the next tick. A Conflict
// after a successful commit means funds moved but bookkeeping lost the race;
// that is persisted as a reconciliation record and escalated, never
// swallowed.
func (s *Service) Execute(ctx context.Context, intent types.ExecutionIntent) error {
	logger := log.With().
		Str("strategy_id", intent.StrategyID).
		Int("order_index", intent.OrderIndex).
		Str("component", "executor").
		Logger()

	// Step 1: re-validate against current store state.
	strategy, err := s.store.Get(intent.StrategyID)
	if err != nil {
		return err
	}
	if strategy.Status != types.StatusActive || strategy.OrdersExecuted != intent.OrderIndex {
		logger.Debug().
			Str("status", strategy.Status).
			Int("orders_executed", strategy.OrdersExecuted).
			Msg("discarding stale execution intent")
		return nil
	}

	amount := strategy.PerOrderAmount(intent.OrderIndex)

	// Step 2: obtain a quote, bounded by a timeout.
	quoteCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()

	q, err := s.quotes.GetQuote(quoteCtx, strategy.TokenIn, strategy.TokenOut, amount, strategy.Owner)
	if err != nil {
		logger.Warn().Err(err).Msg("quote fetch failed")
		if errors.Is(err, types.ErrQuoteUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}

	// Step 3: freshness gate. The quote's slippage floor is enforced by the
	// ledger commit; the engine never loosens it.
	if q.Stale(time.Now(), s.quoteTTL) {
		logger.Warn().
			Time("fetched_at", q.FetchedAt).
			Dur("ttl", s.quoteTTL).
			Msg("quote expired before commit")
		return fmt.Errorf("%w: fetched at %s", types.ErrQuoteStale, q.FetchedAt.Format(time.RFC3339))
	}

	// Step 4: atomic ledger commit, conditioned on the expected index.
	commit, err := s.ledger.CommitSwap(
		intent.StrategyID, intent.OrderIndex,
		strategy.TokenIn, amount,
		strategy.TokenOut, q.MinimumOutput,
		q.Path, q.ReferralCode,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger commit failed, no funds moved")
		return err
	}

	// Step 5: record the execution. A Conflict here is the dangerous case:
	// the swap is already committed on the ledger.
	if err := s.store.RecordExecution(intent.StrategyID, intent.OrderIndex, commit.CreatedAt); err != nil {
		if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrInvalidState) {
			rec := &Reconciliation{
				ReconciliationID: "REC_" + uuid.New().String(),
				StrategyID:       intent.StrategyID,
				OrderIndex:       intent.OrderIndex,
				CommitID:         commit.CommitID,
				Reason:           err.Error(),
				CreatedAt:        time.Now(),
				UpdatedAt:        time.Now(),
			}
			if dbErr := s.db.CreateReconciliation(rec); dbErr != nil {
				logger.Error().Err(dbErr).Msg("failed to persist reconciliation record")
			}
			logger.Error().
				Err(err).
				Str("commit_id", commit.CommitID).
				Str("reconciliation_id", rec.ReconciliationID).
				Msg("swap committed but execution record lost a race")
			return fmt.Errorf("%w: commit %s for order %d: %v", types.ErrReconciliationRequired, commit.CommitID, intent.OrderIndex, err)
		}
		return err
	}

	logger.Info().
		Str("commit_id", commit.CommitID).
		Int64("amount_in", amount).
		Int64("minimum_output", q.MinimumOutput).
		Msg("tranche executed")

	return nil
}

// GinHandlers contains HTTP handlers for executor operational endpoints
type GinHandlers struct {
	db *Database
}

func NewGinHandlers(db *Database) *GinHandlers {
	return &GinHandlers{db: db}
}

// ListReconciliationsHandler handles GET requests for unresolved
// reconciliation records. Internal-only.
func (h *GinHandlers) ListReconciliationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := h.db.ListUnresolved()
		response.Handle(c, recs, err)
	}
}

// ResolveReconciliationHandler handles POST requests marking a
// reconciliation record as handled by an operator.
func (h *GinHandlers) ResolveReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reconciliationID := c.Param("reconciliation_id")
		if reconciliationID == "" {
			response.BadRequest(c, "Reconciliation ID is required")
			return
		}

		if err := h.db.Resolve(reconciliationID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "reconciliation resolved"})
	}
}

// GetDB exposes the reconciliation database for wiring handlers.
func (s *Service) GetDB() *Database {
	return s.db
}
