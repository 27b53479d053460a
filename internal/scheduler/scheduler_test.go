package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/dca-api/internal/database"
	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/strategy"
	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, *strategy.Service) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	store := strategy.NewService(db, ledger.NewDatabase(db))
	return New(store), store
}

func createStrategy(t *testing.T, store *strategy.Service, intervalSeconds int64) *types.Strategy {
	t.Helper()
	created, err := store.Create("client-1", &types.CreateStrategyRequest{
		TokenIn:         "USDC",
		TokenOut:        "WETH",
		TotalAmount:     100,
		OrdersTotal:     3,
		IntervalSeconds: intervalSeconds,
	})
	require.NoError(t, err)
	return created
}

func TestFirstOrderDueImmediately(t *testing.T) {
	sched, store := newTestScheduler(t)
	created := createStrategy(t, store, 3600)

	intents, err := sched.DueIntents(time.Now())
	require.NoError(t, err)
	require.Len(t, intents, 1)

	assert.Equal(t, created.StrategyID, intents[0].StrategyID)
	assert.Equal(t, 0, intents[0].OrderIndex)
	assert.Equal(t, int64(33), intents[0].Amount)
	assert.Equal(t, "USDC", intents[0].TokenIn)
	assert.Equal(t, "WETH", intents[0].TokenOut)
	assert.Equal(t, "client-1", intents[0].Owner)
}

func TestIntervalGating(t *testing.T) {
	sched, store := newTestScheduler(t)
	created := createStrategy(t, store, 3600)

	t0 := time.Now()
	require.NoError(t, store.RecordExecution(created.StrategyID, 0, t0))

	// Half the interval elapsed: nothing due
	intents, err := sched.DueIntents(t0.Add(1800 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, intents)

	// Exactly one interval elapsed: order 1 due
	intents, err = sched.DueIntents(t0.Add(3600 * time.Second))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, 1, intents[0].OrderIndex)
}

func TestSingleIntentPerTick(t *testing.T) {
	sched, store := newTestScheduler(t)
	created := createStrategy(t, store, 1)

	t0 := time.Now()
	require.NoError(t, store.RecordExecution(created.StrategyID, 0, t0))

	// Many intervals elapsed, still at most one intent: catch-up is one
	// order per tick
	intents, err := sched.DueIntents(t0.Add(10 * time.Hour))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, 1, intents[0].OrderIndex)
}

func TestDueIntentsIdempotent(t *testing.T) {
	sched, store := newTestScheduler(t)
	createStrategy(t, store, 3600)
	createStrategy(t, store, 60)

	now := time.Now()
	first, err := sched.DueIntents(now)
	require.NoError(t, err)
	second, err := sched.DueIntents(now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNonActiveNeverEligible(t *testing.T) {
	sched, store := newTestScheduler(t)
	created := createStrategy(t, store, 3600)

	_, err := store.Cancel(created.StrategyID, "client-1")
	require.NoError(t, err)

	intents, err := sched.DueIntents(time.Now())
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestLastOrderCarriesRemainder(t *testing.T) {
	sched, store := newTestScheduler(t)
	created := createStrategy(t, store, 1)

	t0 := time.Now()
	require.NoError(t, store.RecordExecution(created.StrategyID, 0, t0))
	require.NoError(t, store.RecordExecution(created.StrategyID, 1, t0))

	intents, err := sched.DueIntents(t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, 2, intents[0].OrderIndex)
	assert.Equal(t, int64(34), intents[0].Amount)
}

func TestEligible(t *testing.T) {
	now := time.Now()
	lastExec := now.Add(-30 * time.Minute)

	cases := []struct {
		name string
		s    types.Strategy
		want bool
	}{
		{"fresh strategy", types.Strategy{Status: types.StatusActive, OrdersTotal: 3, IntervalSeconds: 3600}, true},
		{"interval not elapsed", types.Strategy{Status: types.StatusActive, OrdersTotal: 3, OrdersExecuted: 1, IntervalSeconds: 3600, LastExecutedAt: &lastExec}, false},
		{"interval elapsed", types.Strategy{Status: types.StatusActive, OrdersTotal: 3, OrdersExecuted: 1, IntervalSeconds: 60, LastExecutedAt: &lastExec}, true},
		{"cancelled", types.Strategy{Status: types.StatusCancelled, OrdersTotal: 3, IntervalSeconds: 60}, false},
		{"completed", types.Strategy{Status: types.StatusCompleted, OrdersTotal: 3, OrdersExecuted: 3, IntervalSeconds: 60, LastExecutedAt: &lastExec}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Eligible(&tc.s, now))
		})
	}
}
