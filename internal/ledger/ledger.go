package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Database custodies per-owner per-token balances and per-strategy escrows.
// Fund movement happens only through its transactional primitives: escrow
// deposit, conditional swap commit, and refund.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// EscrowDeposit creates the escrow backing a new strategy. It runs on the
// caller's transaction so strategy creation and deposit commit atomically.
func (d *Database) EscrowDeposit(tx *gorm.DB, owner, strategyID, token string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: escrow amount must be positive", types.ErrInvalidParameters)
	}

	escrow := Escrow{
		StrategyID: strategyID,
		Owner:      owner,
		Token:      token,
		Amount:     amount,
	}

	if err := tx.Create(&escrow).Error; err != nil {
		return fmt.Errorf("failed to create escrow: %w", err)
	}
	return nil
}

// CommitSwap atomically moves one tranche: it debits amountIn of tokenIn from
// the strategy's escrow and credits the owner's tokenOut balance, recording a
// SwapCommit row. The commit is conditioned on orderIndex being the next
// uncommitted index for the strategy; a duplicate or out-of-order index, or
// insufficient escrow, fails with ErrCommitFailed and moves nothing.
func (d *Database) CommitSwap(strategyID string, orderIndex int, tokenIn string, amountIn int64, tokenOut string, minOut int64, path string, referralCode int64) (*SwapCommit, error) {
	logger := log.With().
		Str("strategy_id", strategyID).
		Int("order_index", orderIndex).
		Str("component", "ledger").
		Logger()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// The commit precondition: exactly orderIndex tranches committed so far.
	var committed int64
	if err := tx.Model(&SwapCommit{}).Where("strategy_id = ?", strategyID).Count(&committed).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to count commits: %w", err)
	}
	if committed != int64(orderIndex) {
		tx.Rollback()
		logger.Warn().Int64("committed", committed).Msg("commit refused: order index is not the next expected index")
		return nil, fmt.Errorf("%w: order index %d, %d tranches already committed", types.ErrCommitFailed, orderIndex, committed)
	}

	// Conditional escrow debit. Zero rows affected means the escrow is
	// missing or underfunded.
	res := tx.Model(&Escrow{}).
		Where("strategy_id = ? AND amount >= ?", strategyID, amountIn).
		Update("amount", gorm.Expr("amount - ?", amountIn))
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to debit escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		logger.Warn().Int64("amount_in", amountIn).Msg("commit refused: insufficient escrow")
		return nil, fmt.Errorf("%w: insufficient escrow for %d %s", types.ErrCommitFailed, amountIn, tokenIn)
	}

	var escrow Escrow
	if err := tx.Where("strategy_id = ?", strategyID).First(&escrow).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to fetch escrow: %w", err)
	}

	// The owner is credited the quoted output floor. The unique
	// (strategy_id, order_index) index backstops the count precondition
	// against racing transactions.
	commit := SwapCommit{
		CommitID:     "SWP_" + uuid.New().String(),
		StrategyID:   strategyID,
		OrderIndex:   orderIndex,
		TokenIn:      tokenIn,
		AmountIn:     amountIn,
		TokenOut:     tokenOut,
		AmountOut:    minOut,
		Path:         path,
		ReferralCode: referralCode,
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(&commit).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: duplicate commit for order index %d", types.ErrCommitFailed, orderIndex)
	}

	if err := creditBalance(tx, escrow.Owner, tokenOut, minOut); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to credit output: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCommitFailed, err)
	}

	logger.Info().
		Str("commit_id", commit.CommitID).
		Int64("amount_in", amountIn).
		Int64("amount_out", minOut).
		Msg("swap committed")

	return &commit, nil
}

// Refund returns an un-executed escrow remainder to the owner's available
// balance, used on strategy cancellation.
func (d *Database) Refund(owner, strategyID, token string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	res := tx.Model(&Escrow{}).
		Where("strategy_id = ? AND owner = ? AND amount >= ?", strategyID, owner, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to debit escrow for refund: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("refund refused: escrow for strategy %s has less than %d %s", strategyID, amount, token)
	}

	if err := creditBalance(tx, owner, token, amount); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to credit refund: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	log.Info().
		Str("strategy_id", strategyID).
		Str("owner", owner).
		Int64("amount", amount).
		Str("token", token).
		Str("component", "ledger").
		Msg("refund completed")

	return nil
}

// GetBalance returns an owner's available balance for a token. An absent row
// is a zero balance, not an error.
func (d *Database) GetBalance(owner, token string) (int64, error) {
	var balance Balance
	if err := d.db.Where("owner = ? AND token = ?", owner, token).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Amount, nil
}

// GetEscrow retrieves the escrow backing a strategy.
func (d *Database) GetEscrow(strategyID string) (*Escrow, error) {
	var escrow Escrow
	if err := d.db.Where("strategy_id = ?", strategyID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &escrow, nil
}

// GetCommits returns all committed tranches for a strategy in order.
func (d *Database) GetCommits(strategyID string) ([]SwapCommit, error) {
	var commits []SwapCommit
	if err := d.db.Where("strategy_id = ?", strategyID).
		Order("order_index ASC").
		Find(&commits).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch commits: %w", err)
	}
	return commits, nil
}

func creditBalance(tx *gorm.DB, owner, token string, amount int64) error {
	res := tx.Model(&Balance{}).
		Where("owner = ? AND token = ?", owner, token).
		Update("amount", gorm.Expr("amount + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tx.Create(&Balance{Owner: owner, Token: token, Amount: amount}).Error
	}
	return nil
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	db *Database
}

func NewGinHandlers(db *Database) *GinHandlers {
	return &GinHandlers{db: db}
}

// GetBalanceHandler handles GET requests for the authenticated owner's
// balance in a given token.
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing client ID")
			return
		}

		token := c.Param("token")
		if token == "" {
			response.BadRequest(c, "Token is required")
			return
		}

		amount, err := h.db.GetBalance(owner, token)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, types.BalanceResponse{Owner: owner, Token: token, Amount: amount})
	}
}
