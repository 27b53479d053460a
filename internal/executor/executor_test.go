package executor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/dca-api/internal/database"
	"github.com/ksred/dca-api/internal/executor"
	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/strategy"
	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubProvider returns a canned quote or error and counts calls.
type stubProvider struct {
	quote types.Quote
	err   error
	calls int
}

func (p *stubProvider) GetQuote(ctx context.Context, tokenIn, tokenOut string, amount int64, recipient string) (*types.Quote, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	q := p.quote
	if q.FetchedAt.IsZero() {
		q.FetchedAt = time.Now()
	}
	return &q, nil
}

// conflictStore reports a valid strategy but always loses the record race.
type conflictStore struct {
	*strategy.Service
}

func (s *conflictStore) RecordExecution(strategyID string, orderIndex int, ts time.Time) error {
	return types.ErrConflict
}

type fixture struct {
	db       *gorm.DB
	store    *strategy.Service
	led      *ledger.Database
	provider *stubProvider
	executor *executor.Service
	strategy *types.Strategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	led := ledger.NewDatabase(db)
	store := strategy.NewService(db, led)

	created, err := store.Create("client-1", &types.CreateStrategyRequest{
		TokenIn:         "USDC",
		TokenOut:        "WETH",
		TotalAmount:     100,
		OrdersTotal:     3,
		IntervalSeconds: 60,
	})
	require.NoError(t, err)

	provider := &stubProvider{quote: types.Quote{
		ExpectedOutput: 90,
		MinimumOutput:  80,
		Path:           "path-0",
		ReferralCode:   7,
	}}

	return &fixture{
		db:       db,
		store:    store,
		led:      led,
		provider: provider,
		executor: executor.NewService(db, store, led, provider),
		strategy: created,
	}
}

func intentFor(s *types.Strategy, orderIndex int) types.ExecutionIntent {
	return types.ExecutionIntent{
		StrategyID: s.StrategyID,
		Owner:      s.Owner,
		TokenIn:    s.TokenIn,
		TokenOut:   s.TokenOut,
		OrderIndex: orderIndex,
		Amount:     s.PerOrderAmount(orderIndex),
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)

	err := f.executor.Execute(context.Background(), intentFor(f.strategy, 0))
	require.NoError(t, err)

	got, err := f.store.Get(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OrdersExecuted)
	assert.NotNil(t, got.LastExecutedAt)

	escrow, err := f.led.GetEscrow(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, int64(67), escrow.Amount)

	balance, err := f.led.GetBalance("client-1", "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestExecuteStaleIntentIsNoOp(t *testing.T) {
	f := newFixture(t)

	intent := intentFor(f.strategy, 0)
	require.NoError(t, f.executor.Execute(context.Background(), intent))
	require.Equal(t, 1, f.provider.calls)

	// The same intent delivered again: strategy already advanced, so the
	// intent is discarded before any quote is fetched
	require.NoError(t, f.executor.Execute(context.Background(), intent))
	assert.Equal(t, 1, f.provider.calls)

	got, err := f.store.Get(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OrdersExecuted)

	balance, err := f.led.GetBalance("client-1", "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestExecuteCancelledStrategyIsNoOp(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Cancel(f.strategy.StrategyID, "client-1")
	require.NoError(t, err)

	require.NoError(t, f.executor.Execute(context.Background(), intentFor(f.strategy, 0)))
	assert.Equal(t, 0, f.provider.calls)
}

func TestExecuteQuoteUnavailable(t *testing.T) {
	f := newFixture(t)
	f.provider.err = types.ErrQuoteUnavailable

	err := f.executor.Execute(context.Background(), intentFor(f.strategy, 0))
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)

	// Strategy untouched, eligible for the next tick
	got, err := f.store.Get(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.OrdersExecuted)
	assert.Equal(t, types.StatusActive, got.Status)

	escrow, err := f.led.GetEscrow(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow.Amount)
}

func TestExecuteQuoteStale(t *testing.T) {
	f := newFixture(t)
	f.provider.quote.FetchedAt = time.Now().Add(-10 * time.Minute)

	err := f.executor.Execute(context.Background(), intentFor(f.strategy, 0))
	assert.ErrorIs(t, err, types.ErrQuoteStale)

	got, err := f.store.Get(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.OrdersExecuted)

	escrow, err := f.led.GetEscrow(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow.Amount)
}

func TestExecuteCommitGuardBlocksDuplicate(t *testing.T) {
	f := newFixture(t)

	// Another execution already committed this tranche on the ledger, but
	// the store has not advanced yet: the conditional ledger commit is what
	// stops the loser from also moving funds
	_, err := f.led.CommitSwap(f.strategy.StrategyID, 0, "USDC", 33, "WETH", 80, "path-0", 7)
	require.NoError(t, err)

	err = f.executor.Execute(context.Background(), intentFor(f.strategy, 0))
	assert.ErrorIs(t, err, types.ErrCommitFailed)

	// No reconciliation: the loser never committed
	recs, err := f.executor.GetDB().ListUnresolved()
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Exactly one tranche moved
	escrow, err := f.led.GetEscrow(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, int64(67), escrow.Amount)
}

func TestExecuteReconciliationRequired(t *testing.T) {
	f := newFixture(t)

	// The ledger commit succeeds but the record update loses the race
	exec := executor.NewService(f.db, &conflictStore{f.store}, f.led, f.provider)

	err := exec.Execute(context.Background(), intentFor(f.strategy, 0))
	assert.ErrorIs(t, err, types.ErrReconciliationRequired)

	recs, err := exec.GetDB().ListUnresolved()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.strategy.StrategyID, recs[0].StrategyID)
	assert.Equal(t, 0, recs[0].OrderIndex)
	assert.NotEmpty(t, recs[0].CommitID)
	assert.False(t, recs[0].Resolved)

	// Operator resolves it
	require.NoError(t, exec.GetDB().Resolve(recs[0].ReconciliationID))
	recs, err = exec.GetDB().ListUnresolved()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExecuteFullLifecycle(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.executor.Execute(context.Background(), intentFor(f.strategy, i)))
	}

	got, err := f.store.Get(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.OrdersExecuted)

	// 33 + 33 + 34 drained the escrow exactly
	escrow, err := f.led.GetEscrow(f.strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), escrow.Amount)

	commits, err := f.led.GetCommits(f.strategy.StrategyID)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, int64(33), commits[0].AmountIn)
	assert.Equal(t, int64(33), commits[1].AmountIn)
	assert.Equal(t, int64(34), commits[2].AmountIn)
}
