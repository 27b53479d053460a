package scheduler

import (
	"time"

	"github.com/ksred/dca-api/internal/types"
)

// StrategySource is the store snapshot the scheduler reads. The scheduler
// never mutates state.
type StrategySource interface {
	ListActive() ([]types.Strategy, error)
}

// Scheduler decides which strategies have an order due at a given instant
// and turns each into an execution intent.
type Scheduler struct {
	source StrategySource
}

func New(source StrategySource) *Scheduler {
	return &Scheduler{source: source}
}

// Eligible reports whether the next un-executed order of a strategy is due
// at now. The first order is due immediately on creation; order k > 0 is due
// once IntervalSeconds have elapsed since the previous execution. Non-active
// strategies are never eligible.
func Eligible(s *types.Strategy, now time.Time) bool {
	if s.Status != types.StatusActive {
		return false
	}
	if s.OrdersExecuted >= s.OrdersTotal {
		return false
	}
	if s.OrdersExecuted == 0 || s.LastExecutedAt == nil {
		return true
	}
	return !now.Before(s.LastExecutedAt.Add(s.Interval()))
}

// DueIntents returns one execution intent per eligible active strategy, each
// carrying exactly the next un-executed order index. Even if several
// intervals have elapsed, a strategy contributes at most one intent per
// call: catch-up is one order per tick, bounding per-tick fund exposure.
// With an unchanged store snapshot and the same now, repeated calls yield
// identical intents.
func (s *Scheduler) DueIntents(now time.Time) ([]types.ExecutionIntent, error) {
	strategies, err := s.source.ListActive()
	if err != nil {
		return nil, err
	}

	var intents []types.ExecutionIntent
	for i := range strategies {
		st := &strategies[i]
		if !Eligible(st, now) {
			continue
		}
		intents = append(intents, types.ExecutionIntent{
			StrategyID: st.StrategyID,
			Owner:      st.Owner,
			TokenIn:    st.TokenIn,
			TokenOut:   st.TokenOut,
			OrderIndex: st.OrdersExecuted,
			Amount:     st.PerOrderAmount(st.OrdersExecuted),
		})
	}
	return intents, nil
}
