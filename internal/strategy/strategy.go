package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns the lifecycle of recurring-swap strategies: creation with
// escrowed deposit, reads, execution bookkeeping, and cancellation with
// refund of the un-executed remainder.
type Service struct {
	db     *Database
	ledger *ledger.Database
}

// NewService creates a new strategy service sharing the given database
// connection with the ledger.
func NewService(gormDB *gorm.DB, led *ledger.Database) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: led,
	}
}

// Create validates a strategy request, escrows the deposit, and persists the
// strategy. Any invariant violation fails with ErrInvalidParameters before
// any side effect.
func (s *Service) Create(owner string, req *types.CreateStrategyRequest) (*types.Strategy, error) {
	if err := validateRequest(owner, req); err != nil {
		return nil, err
	}

	strategy := &types.Strategy{
		StrategyID:      "STR_" + uuid.New().String(),
		Owner:           owner,
		TokenIn:         req.TokenIn,
		TokenOut:        req.TokenOut,
		TotalAmount:     req.TotalAmount,
		OrdersTotal:     req.OrdersTotal,
		OrdersExecuted:  0,
		IntervalSeconds: req.IntervalSeconds,
		Status:          types.StatusActive,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.db.CreateWithEscrow(strategy, s.ledger); err != nil {
		return nil, err
	}

	log.Info().
		Str("strategy_id", strategy.StrategyID).
		Str("owner", owner).
		Str("token_in", strategy.TokenIn).
		Str("token_out", strategy.TokenOut).
		Int64("total_amount", strategy.TotalAmount).
		Int("orders_total", strategy.OrdersTotal).
		Int64("interval_seconds", strategy.IntervalSeconds).
		Str("service", "strategy").
		Msg("strategy created")

	return strategy, nil
}

func validateRequest(owner string, req *types.CreateStrategyRequest) error {
	switch {
	case owner == "":
		return fmt.Errorf("%w: owner is required", types.ErrInvalidParameters)
	case req.TokenIn == "" || req.TokenOut == "":
		return fmt.Errorf("%w: token_in and token_out are required", types.ErrInvalidParameters)
	case req.TokenIn == req.TokenOut:
		return fmt.Errorf("%w: token_in and token_out must differ", types.ErrInvalidParameters)
	case req.TotalAmount <= 0:
		return fmt.Errorf("%w: total_amount must be positive", types.ErrInvalidParameters)
	case req.OrdersTotal < 1:
		return fmt.Errorf("%w: orders_total must be at least 1", types.ErrInvalidParameters)
	case req.IntervalSeconds <= 0:
		return fmt.Errorf("%w: interval_seconds must be positive", types.ErrInvalidParameters)
	}
	return nil
}

// Get retrieves a strategy by ID.
func (s *Service) Get(strategyID string) (*types.Strategy, error) {
	return s.db.GetStrategy(strategyID)
}

// GetByOwner retrieves a strategy scoped to its owner.
func (s *Service) GetByOwner(strategyID, owner string) (*types.Strategy, error) {
	return s.db.GetStrategyByOwner(strategyID, owner)
}

// ListByOwner returns all of an owner's strategies.
func (s *Service) ListByOwner(owner string) ([]types.Strategy, error) {
	return s.db.ListByOwner(owner)
}

// ListActive returns a snapshot of active strategies for scheduling.
func (s *Service) ListActive() ([]types.Strategy, error) {
	return s.db.ListActive()
}

// RecordExecution advances the strategy past orderIndex; see
// Database.RecordExecution for the concurrency contract.
func (s *Service) RecordExecution(strategyID string, orderIndex int, ts time.Time) error {
	return s.db.RecordExecution(strategyID, orderIndex, ts)
}

// Cancel transitions an owner's ACTIVE strategy to CANCELLED and refunds the
// un-executed remainder to the owner's ledger balance.
func (s *Service) Cancel(strategyID, owner string) (*types.CancelResponse, error) {
	logger := log.With().
		Str("strategy_id", strategyID).
		Str("owner", owner).
		Str("service", "strategy").
		Logger()

	// Ownership check before any state change.
	if _, err := s.db.GetStrategyByOwner(strategyID, owner); err != nil {
		return nil, err
	}

	cancelled, err := s.db.CancelStrategy(strategyID)
	if err != nil {
		return nil, err
	}

	refund := cancelled.RemainingAmount()
	if refund > 0 {
		if err := s.ledger.Refund(owner, strategyID, cancelled.TokenIn, refund); err != nil {
			// The strategy is already cancelled so no further executions can
			// touch the escrow; the stuck remainder needs operator attention.
			logger.Error().Err(err).Int64("refund", refund).Msg("cancellation refund failed")
			return nil, err
		}
	}

	logger.Info().
		Int64("refund_amount", refund).
		Int("orders_executed", cancelled.OrdersExecuted).
		Msg("strategy cancelled")

	return &types.CancelResponse{
		StrategyID:   strategyID,
		Status:       cancelled.Status,
		RefundToken:  cancelled.TokenIn,
		RefundAmount: refund,
		Timestamp:    time.Now(),
	}, nil
}

// GinHandlers contains HTTP handlers for strategy endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreateStrategyHandler handles POST requests to create new strategies.
// Requires a valid JWT token; the owner is the authenticated client.
func (h *GinHandlers) CreateStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing client ID")
			return
		}

		var req types.CreateStrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		strategy, err := h.service.Create(owner, &req)
		response.Handle(c, strategy, err)
	}
}

// GetStrategyHandler handles GET requests for a single strategy, scoped to
// the authenticated owner.
func (h *GinHandlers) GetStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing client ID")
			return
		}

		strategyID := c.Param("strategy_id")
		if strategyID == "" {
			response.BadRequest(c, "Strategy ID is required")
			return
		}

		strategy, err := h.service.GetByOwner(strategyID, owner)
		if errors.Is(err, types.ErrNotFound) {
			response.NotFound(c, "Strategy not found")
			return
		}
		response.Handle(c, strategy, err)
	}
}

// ListStrategiesHandler handles GET requests for all of an owner's
// strategies.
func (h *GinHandlers) ListStrategiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing client ID")
			return
		}

		strategies, err := h.service.ListByOwner(owner)
		response.Handle(c, strategies, err)
	}
}

// CancelStrategyHandler handles POST requests to cancel a strategy and
// refund the un-executed remainder.
func (h *GinHandlers) CancelStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing client ID")
			return
		}

		strategyID := c.Param("strategy_id")
		if strategyID == "" {
			response.BadRequest(c, "Strategy ID is required")
			return
		}

		result, err := h.service.Cancel(strategyID, owner)
		response.Handle(c, result, err)
	}
}
