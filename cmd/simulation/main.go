package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ksred/dca-api/internal/auth"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minStrategies = 5
	maxStrategies = 20
	numWorkers    = 4
	serverAddress = "http://localhost:8080"
	maxTicks      = 200
)

var pairs = [][2]string{
	{"USDC", "WETH"},
	{"USDC", "WBTC"},
	{"HONEY", "BERA"},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

func (rs *routeStats) record(d time.Duration, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if !ok {
		rs.failures++
	}
}

func (rs *routeStats) report() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.totalCalls == 0 {
		return
	}
	sorted := make([]time.Duration, len(rs.durations))
	copy(sorted, rs.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg := total / time.Duration(len(sorted))
	p95 := sorted[len(sorted)*95/100]

	log.Info().
		Str("route", rs.name).
		Int("calls", rs.totalCalls).
		Int("failures", rs.failures).
		Dur("avg", avg).
		Dur("p95", p95).
		Msg("route statistics")
}

// apiClient wraps authenticated calls against the running server
type apiClient struct {
	token  string
	client *http.Client
}

func newAPIClient() (*apiClient, error) {
	creds := auth.Credentials{APIKey: auth.TestAPIKey, APISecret: auth.TestAPISecret}
	payload, _ := json.Marshal(creds)

	resp, err := http.Post(serverAddress+"/api/v1/auth/token", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool               `json:"success"`
		Data    auth.TokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("token request rejected")
	}

	return &apiClient{
		token:  envelope.Data.Token,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *apiClient) do(method, path string, body interface{}, out interface{}, stats *routeStats) error {
	var buf *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(payload)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, serverAddress+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	start := time.Now()
	resp, err := a.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		stats.record(elapsed, false)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode < 400
	stats.record(elapsed, ok)
	if !ok {
		return fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		envelope := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		return json.NewDecoder(resp.Body).Decode(&envelope)
	}
	return nil
}

// main runs the end-to-end simulation: create a batch of strategies with
// varied parameters, drive the engine with manual ticks, and report progress
// and route latency statistics.
func main() {
	client, err := newAPIClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to authenticate against server")
	}

	createStats := &routeStats{name: "POST /strategies"}
	tickStats := &routeStats{name: "POST /internal/tick"}
	getStats := &routeStats{name: "GET /strategies/:id"}
	cancelStats := &routeStats{name: "POST /strategies/:id/cancel"}

	numStrategies := rand.Intn(maxStrategies-minStrategies+1) + minStrategies
	log.Info().Int("count", numStrategies).Msg("creating strategies")

	// Create strategies across a small worker pool
	strategyIDs := make([]string, 0, numStrategies)
	var idMu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan int)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				pair := pairs[rand.Intn(len(pairs))]
				req := types.CreateStrategyRequest{
					TokenIn:         pair[0],
					TokenOut:        pair[1],
					TotalAmount:     int64(rand.Intn(1_000_000) + 1000),
					OrdersTotal:     rand.Intn(9) + 1,
					IntervalSeconds: int64(rand.Intn(3) + 1),
				}

				var created types.Strategy
				if err := client.do(http.MethodPost, "/api/v1/strategies", req, &created, createStats); err != nil {
					log.Warn().Err(err).Msg("strategy creation failed")
					continue
				}

				idMu.Lock()
				strategyIDs = append(strategyIDs, created.StrategyID)
				idMu.Unlock()
			}
		}()
	}

	for i := 0; i < numStrategies; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	log.Info().Int("created", len(strategyIDs)).Msg("strategies created, driving ticks")

	// Cancel a small sample midway to exercise refunds
	cancelAfter := maxTicks / 4
	cancelled := make(map[string]bool)

	for tick := 0; tick < maxTicks; tick++ {
		var tickResult types.TickResponse
		if err := client.do(http.MethodPost, "/api/v1/internal/tick", nil, &tickResult, tickStats); err != nil {
			log.Warn().Err(err).Msg("tick failed")
		}

		if tick == cancelAfter && len(strategyIDs) > 2 {
			target := strategyIDs[rand.Intn(len(strategyIDs))]
			var cancelResp types.CancelResponse
			if err := client.do(http.MethodPost, "/api/v1/strategies/"+target+"/cancel", nil, &cancelResp, cancelStats); err != nil {
				log.Warn().Err(err).Str("strategy_id", target).Msg("cancel failed")
			} else {
				cancelled[target] = true
				log.Info().
					Str("strategy_id", target).
					Int64("refund", cancelResp.RefundAmount).
					Msg("strategy cancelled mid-flight")
			}
		}

		// Poll progress; stop once every strategy is terminal
		remaining := 0
		for _, id := range strategyIDs {
			var st types.Strategy
			if err := client.do(http.MethodGet, "/api/v1/strategies/"+id, nil, &st, getStats); err != nil {
				continue
			}
			if st.Status == types.StatusActive {
				remaining++
			}
		}

		if remaining == 0 {
			log.Info().Int("ticks", tick+1).Msg("all strategies terminal")
			break
		}

		time.Sleep(500 * time.Millisecond)
	}

	// Final report
	completed, cancelledCount, active := 0, 0, 0
	for _, id := range strategyIDs {
		var st types.Strategy
		if err := client.do(http.MethodGet, "/api/v1/strategies/"+id, nil, &st, getStats); err != nil {
			continue
		}
		switch st.Status {
		case types.StatusCompleted:
			completed++
		case types.StatusCancelled:
			cancelledCount++
		default:
			active++
		}
	}

	log.Info().
		Int("completed", completed).
		Int("cancelled", cancelledCount).
		Int("still_active", active).
		Msg("simulation finished")

	createStats.report()
	tickStats.report()
	getStats.report()
	cancelStats.report()
}
