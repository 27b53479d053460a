package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateWithEscrow persists a new strategy and its ledger escrow in a single
// transaction: either the strategy exists with its deposit escrowed, or
// nothing happened.
func (d *Database) CreateWithEscrow(strategy *types.Strategy, led *ledger.Database) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(strategy).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	if err := led.EscrowDeposit(tx, strategy.Owner, strategy.StrategyID, strategy.TokenIn, strategy.TotalAmount); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetStrategy retrieves a strategy by its ID.
func (d *Database) GetStrategy(strategyID string) (*types.Strategy, error) {
	var strategy types.Strategy
	if err := d.db.Where("strategy_id = ?", strategyID).First(&strategy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &strategy, nil
}

// GetStrategyByOwner retrieves a strategy scoped to its owner.
func (d *Database) GetStrategyByOwner(strategyID, owner string) (*types.Strategy, error) {
	var strategy types.Strategy
	if err := d.db.Where("strategy_id = ? AND owner = ?", strategyID, owner).First(&strategy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &strategy, nil
}

// ListByOwner returns all strategies belonging to an owner, newest first.
func (d *Database) ListByOwner(owner string) ([]types.Strategy, error) {
	var strategies []types.Strategy
	if err := d.db.Where("owner = ?", owner).
		Order("created_at DESC").
		Find(&strategies).Error; err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return strategies, nil
}

// ListActive returns a snapshot of all active strategies for the scheduler.
func (d *Database) ListActive() ([]types.Strategy, error) {
	var strategies []types.Strategy
	if err := d.db.Where("status = ?", types.StatusActive).
		Order("created_at ASC, id ASC").
		Find(&strategies).Error; err != nil {
		return nil, fmt.Errorf("failed to list active strategies: %w", err)
	}
	return strategies, nil
}

// RecordExecution advances a strategy past orderIndex. It is the single
// serialization point for concurrent executions: the read-check-increment is
// one conditional UPDATE, so of two racers for the same index exactly one
// succeeds and the other gets ErrConflict. Flips the strategy to COMPLETED
// in the same transaction when the final order lands.
func (d *Database) RecordExecution(strategyID string, orderIndex int, ts time.Time) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	res := tx.Model(&types.Strategy{}).
		Where("strategy_id = ? AND status = ? AND orders_executed = ?", strategyID, types.StatusActive, orderIndex).
		Updates(map[string]interface{}{
			"orders_executed":  orderIndex + 1,
			"last_executed_at": ts,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record execution: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		tx.Rollback()
		return d.classifyRecordFailure(strategyID, orderIndex)
	}

	if err := tx.Model(&types.Strategy{}).
		Where("strategy_id = ? AND status = ? AND orders_executed = orders_total", strategyID, types.StatusActive).
		Update("status", types.StatusCompleted).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to complete strategy: %w", err)
	}

	return tx.Commit().Error
}

// classifyRecordFailure distinguishes why the conditional update matched no
// rows: unknown strategy, terminal status, or an order index race.
func (d *Database) classifyRecordFailure(strategyID string, orderIndex int) error {
	var strategy types.Strategy
	if err := d.db.Where("strategy_id = ?", strategyID).First(&strategy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrNotFound
		}
		return err
	}
	if strategy.Status != types.StatusActive {
		return fmt.Errorf("%w: strategy is %s", types.ErrInvalidState, strategy.Status)
	}
	return fmt.Errorf("%w: expected next order index %d, got %d", types.ErrConflict, strategy.OrdersExecuted, orderIndex)
}

// CancelStrategy flips an ACTIVE strategy to CANCELLED using the same
// conditional-update discipline as RecordExecution, so a cancel racing an
// execution resolves to exactly one winner. Returns the cancelled strategy
// for remainder computation.
func (d *Database) CancelStrategy(strategyID string) (*types.Strategy, error) {
	res := d.db.Model(&types.Strategy{}).
		Where("strategy_id = ? AND status = ?", strategyID, types.StatusActive).
		Updates(map[string]interface{}{
			"status":     types.StatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to cancel strategy: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var strategy types.Strategy
		if err := d.db.Where("strategy_id = ?", strategyID).First(&strategy).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, types.ErrNotFound
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: strategy is %s", types.ErrInvalidState, strategy.Status)
	}

	return d.GetStrategy(strategyID)
}
