package ledger

import (
	"path/filepath"
	"testing"

	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) *Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Balance{}, &Escrow{}, &SwapCommit{}))
	return NewDatabase(db)
}

func TestEscrowDeposit(t *testing.T) {
	led := newTestLedger(t)

	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow.Amount)

	err = led.EscrowDeposit(led.db, "client-1", "STR_2", "USDC", 0)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}

func TestCommitSwapMovesFunds(t *testing.T) {
	led := newTestLedger(t)
	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	commit, err := led.CommitSwap("STR_1", 0, "USDC", 33, "WETH", 80, "path-0", 7)
	require.NoError(t, err)
	assert.NotEmpty(t, commit.CommitID)
	assert.Equal(t, int64(80), commit.AmountOut)

	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(67), escrow.Amount)

	balance, err := led.GetBalance("client-1", "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)

	commits, err := led.GetCommits("STR_1")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, 0, commits[0].OrderIndex)
	assert.Equal(t, "path-0", commits[0].Path)
}

func TestCommitSwapRefusesDuplicateIndex(t *testing.T) {
	led := newTestLedger(t)
	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	_, err := led.CommitSwap("STR_1", 0, "USDC", 33, "WETH", 80, "path-0", 0)
	require.NoError(t, err)

	_, err = led.CommitSwap("STR_1", 0, "USDC", 33, "WETH", 80, "path-0", 0)
	assert.ErrorIs(t, err, types.ErrCommitFailed)

	// Only one tranche moved
	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(67), escrow.Amount)

	balance, err := led.GetBalance("client-1", "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestCommitSwapRefusesOutOfOrderIndex(t *testing.T) {
	led := newTestLedger(t)
	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	_, err := led.CommitSwap("STR_1", 1, "USDC", 33, "WETH", 80, "path-1", 0)
	assert.ErrorIs(t, err, types.ErrCommitFailed)

	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow.Amount)
}

func TestCommitSwapInsufficientEscrow(t *testing.T) {
	led := newTestLedger(t)
	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	_, err := led.CommitSwap("STR_1", 0, "USDC", 500, "WETH", 80, "path-0", 0)
	assert.ErrorIs(t, err, types.ErrCommitFailed)

	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow.Amount)

	balance, err := led.GetBalance("client-1", "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRefund(t *testing.T) {
	led := newTestLedger(t)
	require.NoError(t, led.EscrowDeposit(led.db, "client-1", "STR_1", "USDC", 100))

	_, err := led.CommitSwap("STR_1", 0, "USDC", 33, "WETH", 80, "path-0", 0)
	require.NoError(t, err)

	require.NoError(t, led.Refund("client-1", "STR_1", "USDC", 67))

	escrow, err := led.GetEscrow("STR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), escrow.Amount)

	balance, err := led.GetBalance("client-1", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(67), balance)

	// Escrow is drained, a second refund is refused
	err = led.Refund("client-1", "STR_1", "USDC", 67)
	assert.Error(t, err)

	// Zero refund is a no-op
	require.NoError(t, led.Refund("client-1", "STR_1", "USDC", 0))
}

func TestGetBalanceUnknownOwner(t *testing.T) {
	led := newTestLedger(t)

	balance, err := led.GetBalance("nobody", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
