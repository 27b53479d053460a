package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
	"github.com/rs/zerolog/log"
)

// Executor consumes intents produced by the scheduler.
type Executor interface {
	Execute(ctx context.Context, intent types.ExecutionIntent) error
}

// Relayer is the in-process trigger source: a ticker loop that periodically
// asks the scheduler what is due and feeds each intent to the executor.
// Delivery is at-least-once; external relayers may tick concurrently via the
// internal endpoint, and the engine's idempotence guarantees are the only
// defense needed.
type Relayer struct {
	scheduler *Scheduler
	executor  Executor
	tickDelay time.Duration
}

func NewRelayer(scheduler *Scheduler, executor Executor, tickDelay time.Duration) *Relayer {
	return &Relayer{
		scheduler: scheduler,
		executor:  executor,
		tickDelay: tickDelay,
	}
}

// Start begins the relayer tick loop
func (r *Relayer) Start(ctx context.Context) {
	logger := log.With().Str("component", "relayer").Logger()
	logger.Info().Dur("tick_delay", r.tickDelay).Msg("starting relayer")

	ticker := time.NewTicker(r.tickDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down relayer")
			return
		case <-ticker.C:
			if _, err := r.RunTick(ctx, time.Now()); err != nil {
				logger.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// RunTick performs one scheduling pass: compute due intents, execute each.
// Transient per-intent failures (quote unavailable, stale quote, commit
// rejection) are logged and left for the next tick; a reconciliation
// escalation is logged at error level but does not stop the pass.
func (r *Relayer) RunTick(ctx context.Context, now time.Time) (*types.TickResponse, error) {
	logger := log.With().Str("component", "relayer").Logger()

	intents, err := r.scheduler.DueIntents(now)
	if err != nil {
		return nil, err
	}

	if len(intents) > 0 {
		logger.Info().Int("due_count", len(intents)).Msg("processing due intents")
	}

	result := &types.TickResponse{
		IntentsDue: len(intents),
		Timestamp:  now,
	}

	for _, intent := range intents {
		if err := r.executor.Execute(ctx, intent); err != nil {
			result.Failed++
			event := logger.Warn()
			if errors.Is(err, types.ErrReconciliationRequired) {
				event = logger.Error()
			}
			event.
				Err(err).
				Str("strategy_id", intent.StrategyID).
				Int("order_index", intent.OrderIndex).
				Msg("intent execution failed")
			continue
		}
		result.Executed++
	}

	return result, nil
}

// GinHandlers contains HTTP handlers for trigger endpoints
type GinHandlers struct {
	relayer *Relayer
}

func NewGinHandlers(relayer *Relayer) *GinHandlers {
	return &GinHandlers{relayer: relayer}
}

// TickHandler handles POST requests from external relayers asking the engine
// to process whatever is due now. Duplicate and overlapping calls are safe.
func (h *GinHandlers) TickHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.relayer.RunTick(c.Request.Context(), time.Now())
		response.Handle(c, result, err)
	}
}
