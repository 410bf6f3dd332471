package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/auth"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/internal/wallet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultServerAddress = "http://localhost:8080"
	demoDeposit          = 10000
	expireMinutes        = 1
	settleTimeout        = 3 * time.Minute
)

var (
	symbols    = []string{"BTCUSD", "ETHUSD", "SOLUSD", "EURUSD", "AAPL", "TSLA"}
	sides      = []string{types.SideBuy, types.SideSell}
	modes      = []string{accounts.ModeRandom, accounts.ModeAlwaysWin, accounts.ModeAlwaysLose}
	magnitudes = []string{accounts.MagnitudeTen, accounts.MagnitudeHundred, accounts.MagnitudeThousand}
)

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
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration, failed bool) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// envelope mirrors the API's standard response
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	// The server allows 10 token requests per minute per IP with a burst of 5
	authLimiter *rate.Limiter

	mu    sync.Mutex
	stats map[string]*routeStats
	order []string
}

func newSimulationClient(baseURL string, limiter *rate.Limiter) *simulationClient {
	return &simulationClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetRetryCount(3).
			SetRetryWaitTime(2 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return r != nil && r.StatusCode() == http.StatusTooManyRequests
			}),
		limiter:     limiter,
		authLimiter: rate.NewLimiter(rate.Every(6*time.Second), 5),
		stats:       make(map[string]*routeStats),
	}
}

func (sc *simulationClient) record(route string, d time.Duration, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs, ok := sc.stats[route]
	if !ok {
		rs = &routeStats{name: route}
		sc.stats[route] = rs
		sc.order = append(sc.order, route)
	}
	rs.addDuration(d, failed)
}

// call executes one paced request and decodes the envelope into result
func call[T any](ctx context.Context, sc *simulationClient, route, method, url, token string, body interface{}, headers map[string]string) (T, error) {
	var zero T
	if err := sc.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var result envelope[T]
	req := sc.client.R().SetContext(ctx).SetResult(&result).SetError(&result)
	if token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}
	req.SetHeaders(headers)

	start := time.Now()
	resp, err := req.Execute(method, url)
	failed := err != nil || resp.IsError()
	sc.record(route, time.Since(start), failed)

	if err != nil {
		return zero, err
	}
	if resp.IsError() {
		if result.Error != nil {
			return zero, fmt.Errorf("%s failed with status %d: %s", route, resp.StatusCode(), result.Error.Message)
		}
		return zero, fmt.Errorf("%s failed with status %d", route, resp.StatusCode())
	}
	return result.Data, nil
}

func (sc *simulationClient) token(ctx context.Context, apiKey, apiSecret string) (string, error) {
	if err := sc.authLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	resp, err := call[auth.TokenResponse](ctx, sc, "Authentication", "POST", "/api/v1/auth/token", "",
		auth.Credentials{APIKey: apiKey, APISecret: apiSecret}, nil)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, route := range sc.order {
		stats := sc.stats[route]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// simUser is a registered user driven by the simulation
type simUser struct {
	userID   string
	token    string
	settings accounts.AutoTradeSettings
}

// main drives a running API server: it registers users with auto-trade
// enabled, funds their demo wallets, opens short trades concurrently and
// reports how they settled.
func main() {
	ctx := context.Background()

	baseURL := envOr("SIM_SERVER_URL", defaultServerAddress)
	numUsers := envInt("SIM_USERS", 3)
	tradesPerUser := envInt("SIM_TRADES_PER_USER", 5)

	// Stay under the server's per-route limits
	sc := newSimulationClient(baseURL, rate.NewLimiter(rate.Limit(1.5), 3))

	adminToken, err := sc.token(ctx,
		envOr("BOOTSTRAP_ADMIN_API_KEY", "admin-api-key"),
		envOr("BOOTSTRAP_ADMIN_API_SECRET", "admin-api-secret"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to authenticate admin")
	}

	users := make([]*simUser, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		u, err := setupUser(ctx, sc, adminToken, i)
		if err != nil {
			log.Fatal().Err(err).Int("user", i).Msg("Failed to set up user")
		}
		users = append(users, u)
	}

	log.Info().Int("users", len(users)).Int("trades_per_user", tradesPerUser).Msg("Starting simulation")
	start := time.Now()

	// One worker per user
	var wg sync.WaitGroup
	tradesChan := make(chan types.Trade, numUsers*tradesPerUser)
	for _, u := range users {
		wg.Add(1)
		go func(u *simUser) {
			defer wg.Done()
			openTrades(ctx, sc, u, tradesPerUser, tradesChan)
		}(u)
	}
	wg.Wait()
	close(tradesChan)

	tokens := make(map[string]string, len(users))
	settings := make(map[string]accounts.AutoTradeSettings, len(users))
	for _, u := range users {
		tokens[u.userID] = u.token
		settings[u.userID] = u.settings
	}

	var opened []types.Trade
	for trade := range tradesChan {
		opened = append(opened, trade)
	}
	log.Info().Int("trades_opened", len(opened)).Msg("All trades opened, waiting for settlement")

	settled := waitForSettlement(ctx, sc, opened, tokens)
	printSummary(opened, settled, settings, time.Since(start))
	sc.printPerformanceStats()
}

func setupUser(ctx context.Context, sc *simulationClient, adminToken string, i int) (*simUser, error) {
	registered, err := call[accounts.RegisterUserResponse](ctx, sc, "Register User", "POST", "/api/v1/admin/users", adminToken,
		accounts.RegisterUserRequest{
			Email: fmt.Sprintf("sim-%s@tradedesk.local", uuid.New().String()[:8]),
			Name:  fmt.Sprintf("Simulated Trader %d", i+1),
		}, nil)
	if err != nil {
		return nil, err
	}
	userID := registered.User.UserID

	active := true
	autoTrade, err := call[accounts.AutoTradeSettings](ctx, sc, "Set Auto-Trade", "PUT",
		"/api/v1/admin/users/"+userID+"/autotrade", adminToken,
		accounts.UpdateAutoTradeRequest{
			Active:    &active,
			Mode:      modes[i%len(modes)],
			Magnitude: magnitudes[i%len(magnitudes)],
		}, nil)
	if err != nil {
		return nil, err
	}

	token, err := sc.token(ctx, registered.User.APIKey, registered.APISecret)
	if err != nil {
		return nil, err
	}

	deposit, err := call[wallet.Transaction](ctx, sc, "Deposit", "POST", "/api/v1/wallet/deposit", token,
		wallet.FundsRequest{Mode: types.ModeDemo, Amount: decimal.NewFromInt(demoDeposit), Note: "simulation"}, nil)
	if err != nil {
		return nil, err
	}

	if _, err := call[wallet.Transaction](ctx, sc, "Review Request", "POST",
		"/api/v1/admin/wallet/requests/"+deposit.TransactionID+"/review", adminToken,
		wallet.ReviewRequest{Approve: true, Note: "simulation"}, nil); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("mode", autoTrade.Mode).
		Str("magnitude", autoTrade.Magnitude).
		Msg("User ready")

	return &simUser{userID: userID, token: token, settings: autoTrade}, nil
}

// openTrades submits numTrades random trades for u
func openTrades(ctx context.Context, sc *simulationClient, u *simUser, numTrades int, out chan<- types.Trade) {
	for i := 0; i < numTrades; i++ {
		req := map[string]interface{}{
			"trading_mode": types.ModeDemo,
			"symbol":       symbols[rand.Intn(len(symbols))],
			"side":         sides[rand.Intn(len(sides))],
			"order_type":   types.OrderTypeMarket,
			"amount":       decimal.NewFromInt(int64(rand.Intn(90) + 10)),
			"roi":          float64(rand.Intn(80) + 10),
			"expire_time":  expireMinutes,
		}

		trade, err := call[types.Trade](ctx, sc, "Create Trade", "POST", "/api/v1/trades", u.token, req,
			map[string]string{"Idempotency-Key": uuid.New().String()})
		if err != nil {
			log.Error().Err(err).Str("user_id", u.userID).Msg("Failed to create trade")
			continue
		}

		out <- trade
		log.Info().
			Str("user_id", u.userID).
			Str("trade_id", trade.TradeID).
			Str("symbol", trade.Symbol).
			Str("side", trade.Side).
			Str("amount", trade.Amount.String()).
			Float64("price", trade.Price).
			Msg("Trade opened")
	}
}

// waitForSettlement polls until every trade is processed or the timeout
// passes
func waitForSettlement(ctx context.Context, sc *simulationClient, trades []types.Trade, tokens map[string]string) map[string]types.SettlementResponse {
	settled := make(map[string]types.SettlementResponse, len(trades))
	deadline := time.Now().Add(settleTimeout)

	for len(settled) < len(trades) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Second)

		for _, trade := range trades {
			if _, done := settled[trade.TradeID]; done {
				continue
			}
			if time.Now().Before(trade.ExpiresAt) {
				continue
			}

			s, err := call[types.SettlementResponse](ctx, sc, "Get Settlement", "GET",
				"/api/v1/trades/"+trade.TradeID+"/settlement", tokens[trade.UserID], nil, nil)
			if err != nil {
				log.Debug().Err(err).Str("trade_id", trade.TradeID).Msg("Trade not settled yet")
				continue
			}
			settled[trade.TradeID] = s
			log.Info().
				Str("trade_id", trade.TradeID).
				Str("status", s.Status).
				Str("profit_loss", s.ProfitLoss.String()).
				Msg("Trade settled")
		}
	}

	return settled
}

func printSummary(opened []types.Trade, settled map[string]types.SettlementResponse, settings map[string]accounts.AutoTradeSettings, duration time.Duration) {
	var won, lost int
	profit, losses := decimal.Zero, decimal.Zero
	byMode := make(map[string][2]int)

	for _, trade := range opened {
		s, ok := settled[trade.TradeID]
		if !ok {
			continue
		}
		mode := settings[trade.UserID].Mode
		counts := byMode[mode]
		switch s.Status {
		case types.StatusWon:
			won++
			counts[0]++
			profit = profit.Add(s.ProfitLoss)
		case types.StatusLose:
			lost++
			counts[1]++
			losses = losses.Add(s.ProfitLoss)
		}
		byMode[mode] = counts
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Trade Statistics
----------------
Opened:           %d
Settled:          %d
Unsettled:        %d
Won:              %d
Lost:             %d
Total Profit:     %s
Total Losses:     %s
Duration:         %v

Outcomes by Auto-Trade Mode
---------------------------
`, len(opened), len(settled), len(opened)-len(settled), won, lost,
		profit.StringFixed(2), losses.StringFixed(2), duration.Round(time.Millisecond))

	for mode, counts := range byMode {
		fmt.Printf("%-12s won %3d  lost %3d\n", mode, counts[0], counts[1])
	}
	fmt.Println(strings.Repeat("=", 80))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
