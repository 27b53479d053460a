package quote

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// SimulatedProvider is an in-process quote venue for simulation and local
// runs: it prices pairs off a fixed mid-rate table with random variance,
// latency, and occasional failures.
type SimulatedProvider struct {
	MinLatency  int // in milliseconds
	MaxLatency  int
	SuccessRate float64 // 0-1, probability of pricing the pair
	Slippage    float64
	rates       map[string]float64 // tokenIn:tokenOut -> mid rate
}

// NewSimulatedProvider creates a simulated venue with a small default rate
// table. Unknown pairs price at 1:1.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		MinLatency:  5,
		MaxLatency:  50,
		SuccessRate: 0.97,
		Slippage:    DefaultSlippage,
		rates: map[string]float64{
			"USDC:WETH":  0.0004,
			"WETH:USDC":  2500,
			"USDC:WBTC":  0.00002,
			"WBTC:USDC":  50000,
			"HONEY:BERA": 0.25,
			"BERA:HONEY": 4,
		},
	}
}

// GetQuote simulates pricing the pair: random latency bounded by the
// context, a success-rate failure gate, and ±2% variance around the mid
// rate. MinimumOutput applies the slippage tolerance to the expected output.
func (p *SimulatedProvider) GetQuote(ctx context.Context, tokenIn, tokenOut string, amount int64, recipient string) (*types.Quote, error) {
	logger := log.With().
		Str("token_in", tokenIn).
		Str("token_out", tokenOut).
		Int64("amount", amount).
		Str("component", "simulated_quote").
		Logger()

	latency := time.Duration(rand.Intn(p.MaxLatency-p.MinLatency+1)+p.MinLatency) * time.Millisecond
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, ctx.Err())
	case <-time.After(latency):
	}

	if rand.Float64() > p.SuccessRate {
		logger.Warn().Msg("simulated venue failed to price pair")
		return nil, fmt.Errorf("%w: no route for %s/%s", types.ErrQuoteUnavailable, tokenIn, tokenOut)
	}

	rate, ok := p.rates[tokenIn+":"+tokenOut]
	if !ok {
		rate = 1
	}

	// ±2% variance around the mid rate
	variance := 1 + (rand.Float64()*0.04 - 0.02)
	expected := int64(float64(amount) * rate * variance)
	if expected < 1 {
		expected = 1
	}
	minimum := int64(float64(expected) * (1 - p.Slippage))
	if minimum < 1 {
		minimum = 1
	}

	quote := &types.Quote{
		ExpectedOutput: expected,
		MinimumOutput:  minimum,
		Path:           "SIMPATH_" + uuid.New().String(),
		ReferralCode:   0,
		FetchedAt:      time.Now(),
	}

	logger.Debug().
		Int64("expected_output", quote.ExpectedOutput).
		Int64("minimum_output", quote.MinimumOutput).
		Dur("latency", latency).
		Msg("simulated quote produced")

	return quote, nil
}
