package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor captures executed intents and advances the store so
// subsequent ticks see fresh state.
type recordingExecutor struct {
	store   executionRecorder
	intents []types.ExecutionIntent
	fail    error
}

type executionRecorder interface {
	RecordExecution(strategyID string, orderIndex int, ts time.Time) error
}

func (e *recordingExecutor) Execute(ctx context.Context, intent types.ExecutionIntent) error {
	if e.fail != nil {
		return e.fail
	}
	e.intents = append(e.intents, intent)
	return e.store.RecordExecution(intent.StrategyID, intent.OrderIndex, time.Now())
}

func TestRunTickExecutesDueIntents(t *testing.T) {
	sched, store := newTestScheduler(t)
	first := createStrategy(t, store, 3600)
	second := createStrategy(t, store, 3600)

	exec := &recordingExecutor{store: store}
	relayer := NewRelayer(sched, exec, time.Second)

	result, err := relayer.RunTick(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, result.IntentsDue)
	assert.Equal(t, 2, result.Executed)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, exec.intents, 2)
	assert.ElementsMatch(t,
		[]string{first.StrategyID, second.StrategyID},
		[]string{exec.intents[0].StrategyID, exec.intents[1].StrategyID},
	)

	// Both strategies advanced; an immediate second tick finds nothing due
	result, err = relayer.RunTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.IntentsDue)
}

func TestRunTickReportsFailures(t *testing.T) {
	sched, store := newTestScheduler(t)
	createStrategy(t, store, 3600)

	exec := &recordingExecutor{store: store, fail: fmt.Errorf("%w: venue down", types.ErrQuoteUnavailable)}
	relayer := NewRelayer(sched, exec, time.Second)

	result, err := relayer.RunTick(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, result.IntentsDue)
	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, 1, result.Failed)

	// The strategy is untouched and due again on the next tick
	result, err = relayer.RunTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.IntentsDue)
}
