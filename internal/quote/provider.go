package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// DefaultSlippage is the slippage tolerance requested from the quote API.
const DefaultSlippage = 0.01

// Provider returns a priced swap path and minimum-acceptable-output for a
// token pair and amount, or a failure mapped to ErrQuoteUnavailable.
type Provider interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amount int64, recipient string) (*types.Quote, error)
}

// HTTPProvider fetches quotes from an external swap aggregator API.
type HTTPProvider struct {
	baseURL  string
	apiKey   string
	slippage float64
	client   *http.Client
}

// NewHTTPProvider creates a provider against the given aggregator base URL.
// The client timeout is a backstop; callers bound individual requests with
// their context.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:  baseURL,
		apiKey:   apiKey,
		slippage: DefaultSlippage,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// swapResponse mirrors the aggregator's quote payload: a routing path plus
// quoted and minimum output after slippage.
type swapResponse struct {
	Status       string `json:"status"`
	RouterParams struct {
		PathDefinition string `json:"pathDefinition"`
		SwapTokenInfo  struct {
			OutputQuote int64 `json:"outputQuote"`
			OutputMin   int64 `json:"outputMin"`
		} `json:"swapTokenInfo"`
		ReferralCode int64 `json:"referralCode"`
	} `json:"routerParams"`
}

// GetQuote requests a priced path for swapping amount of tokenIn into
// tokenOut. Transport errors, non-200 responses, and non-Success statuses
// all map to ErrQuoteUnavailable; the strategy stays eligible for the next
// tick.
func (p *HTTPProvider) GetQuote(ctx context.Context, tokenIn, tokenOut string, amount int64, recipient string) (*types.Quote, error) {
	params := url.Values{}
	params.Set("tokenIn", tokenIn)
	params.Set("tokenOut", tokenOut)
	params.Set("amount", strconv.FormatInt(amount, 10))
	params.Set("to", recipient)
	params.Set("slippage", strconv.FormatFloat(p.slippage, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/swap?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: quote API returned status %d", types.ErrQuoteUnavailable, resp.StatusCode)
	}

	var body swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}

	if body.Status != "Success" {
		return nil, fmt.Errorf("%w: quote API status %q", types.ErrQuoteUnavailable, body.Status)
	}

	quote := &types.Quote{
		ExpectedOutput: body.RouterParams.SwapTokenInfo.OutputQuote,
		MinimumOutput:  body.RouterParams.SwapTokenInfo.OutputMin,
		Path:           body.RouterParams.PathDefinition,
		ReferralCode:   body.RouterParams.ReferralCode,
		FetchedAt:      time.Now(),
	}

	log.Debug().
		Str("token_in", tokenIn).
		Str("token_out", tokenOut).
		Int64("amount", amount).
		Int64("expected_output", quote.ExpectedOutput).
		Int64("minimum_output", quote.MinimumOutput).
		Str("component", "quote_provider").
		Msg("quote fetched")

	return quote, nil
}
