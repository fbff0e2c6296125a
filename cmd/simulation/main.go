package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/minimarbles/internal/config"
	"github.com/ksred/minimarbles/internal/database"
	"github.com/ksred/minimarbles/internal/server"
	"github.com/ksred/minimarbles/internal/types"
)

const (
	numUsers   = 8
	minTrades  = 20
	maxTrades  = 120
	numWorkers = 5
)

var (
	names        = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi"}
	descriptions = []string{"Will it rain tomorrow?", "Home team wins", "Oil at year end", "Train arrives on time"}
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
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
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

// openedTrade identifies a trade created during the run
type openedTrade struct {
	kind string
	id   string
}

// simulationClient handles HTTP communication with the ledger API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"user":   {name: "Create User"},
			"users":  {name: "List Users"},
			"open":   {name: "Open Trade"},
			"settle": {name: "Settle Trade"},
			"trades": {name: "List Trades"},
		},
	}
}

// do sends a JSON request, records its latency under route and decodes the
// response into out when the status matches want
func (sc *simulationClient) do(route, method, path string, payload, out interface{}, want int) error {
	start := time.Now()
	failed := true
	defer func() {
		sc.stats[route].addDuration(time.Since(start), failed)
	}()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != want {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
	}

	failed = false
	return nil
}

func (sc *simulationClient) createUser(name string) (*types.User, error) {
	var user types.User
	err := sc.do("user", http.MethodPost, "/users", map[string]string{"name": name}, &user, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (sc *simulationClient) listUsers() ([]types.User, error) {
	var list []types.User
	if err := sc.do("users", http.MethodGet, "/users", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

func (sc *simulationClient) listTrades() ([]map[string]interface{}, error) {
	var list []map[string]interface{}
	if err := sc.do("trades", http.MethodGet, "/trades", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

// openTrade creates a random binary or underlying trade between two distinct users
func (sc *simulationClient) openTrade(users []types.User) (openedTrade, error) {
	i := rand.Intn(len(users))
	j := (i + 1 + rand.Intn(len(users)-1)) % len(users)
	description := descriptions[rand.Intn(len(descriptions))]

	var created struct {
		ID string `json:"id"`
	}

	if rand.Intn(2) == 0 {
		payload := map[string]interface{}{
			"party_a_id":  users[i].ID,
			"party_b_id":  users[j].ID,
			"stake_a":     rand.Intn(50),
			"stake_b":     rand.Intn(50),
			"description": description,
		}
		if err := sc.do("open", http.MethodPost, "/trades/binary", payload, &created, http.StatusCreated); err != nil {
			return openedTrade{}, err
		}
		return openedTrade{kind: types.KindBinary, id: created.ID}, nil
	}

	payload := map[string]interface{}{
		"long_party_id":  users[i].ID,
		"short_party_id": users[j].ID,
		"lot_size":       decimal.New(int64(rand.Intn(50)+1), -1),
		"trade_price":    decimal.New(int64(rand.Intn(20000)+1000), -2),
		"description":    description,
	}
	if err := sc.do("open", http.MethodPost, "/trades/underlying", payload, &created, http.StatusCreated); err != nil {
		return openedTrade{}, err
	}
	return openedTrade{kind: types.KindUnderlying, id: created.ID}, nil
}

// settleTrade settles with a random outcome or a settlement price near the range of trade prices
func (sc *simulationClient) settleTrade(trade openedTrade) error {
	path := fmt.Sprintf("/trades/%s/%s/settle", trade.kind, trade.id)
	if trade.kind == types.KindBinary {
		return sc.do("settle", http.MethodPost, path, map[string]bool{"outcome": rand.Intn(2) == 0}, nil, http.StatusOK)
	}
	price := decimal.New(int64(rand.Intn(20000)+1000), -2)
	return sc.do("settle", http.MethodPost, path, map[string]decimal.Decimal{"settlement_price": price}, nil, http.StatusOK)
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	keys := make([]string, 0, len(sc.stats))
	for k := range sc.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		stats := sc.stats[k]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Microsecond),
			max.Round(time.Microsecond),
			mean.Round(time.Microsecond),
			median.Round(time.Microsecond),
			p95.Round(time.Microsecond),
			p99.Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

func totalBalance(users []types.User) int64 {
	var total int64
	for _, u := range users {
		total += u.Balance
	}
	return total
}

// main starts an in-memory ledger, drives concurrent trading clients against it
// and checks that settlement never creates or destroys minimarbles
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	go func() {
		if err := startServer(cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient("http://localhost:" + cfg.Port)
	for _, name := range names[:numUsers] {
		user, err := simClient.createUser(name)
		if err != nil {
			log.Fatal().Err(err).Str("name", name).Msg("Failed to create user")
		}
		log.Info().Str("user_id", user.ID).Str("name", user.Name).Int64("balance", user.Balance).Msg("User created")
	}

	users, err := simClient.listUsers()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list users")
	}
	before := totalBalance(users)

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Int64("total_balance", before).Msg("Starting simulation")

	start := time.Now()
	tradesChan := make(chan openedTrade, targetTrades)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			openTradesHTTP(workerID, targetTrades/numWorkers, simClient, users, tradesChan)
		}(i)
	}
	wg.Wait()
	close(tradesChan)

	var opened []openedTrade
	for trade := range tradesChan {
		opened = append(opened, trade)
	}
	log.Info().Int("trades_opened", len(opened)).Msg("All trades opened")

	// Settle concurrently, occasionally twice, to exercise the already-settled guard
	var (
		mu       sync.Mutex
		settled  int
		rejected int
		byKind   = map[string]int{}
	)
	settleCh := make(chan openedTrade)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trade := range settleCh {
				err := simClient.settleTrade(trade)
				mu.Lock()
				if err != nil {
					rejected++
					log.Debug().Err(err).Str("trade_id", trade.id).Msg("Settlement rejected")
				} else {
					settled++
					byKind[trade.kind]++
					log.Info().Str("trade_id", trade.id).Str("kind", trade.kind).Msg("Trade settled")
				}
				mu.Unlock()
			}
		}()
	}
	for _, trade := range opened {
		settleCh <- trade
		if rand.Intn(5) == 0 {
			settleCh <- trade
		}
	}
	close(settleCh)
	wg.Wait()

	users, err = simClient.listUsers()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list users")
	}
	after := totalBalance(users)

	listed, err := simClient.listTrades()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list trades")
	}
	open := 0
	for _, t := range listed {
		if t["status"] == string(types.StatusOpen) {
			open++
		}
	}

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("MINIMARBLES SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Trade Statistics
----------------
Opened:            %d
Settled:           %d
  Binary:          %d
  Underlying:      %d
Rejected settles:  %d
Still open:        %d
Balance before:    %d
Balance after:     %d
Duration:          %v
`, len(opened), settled, byKind[types.KindBinary], byKind[types.KindUnderlying],
		rejected, open, before, after, duration.Round(time.Millisecond))

	fmt.Println("\nBalances")
	fmt.Println("--------")
	for _, u := range users {
		fmt.Printf("%-8s %8d\n", u.Name, u.Balance)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	simClient.printPerformanceStats()

	if before != after {
		log.Fatal().Int64("before", before).Int64("after", after).Msg("Total balance not conserved")
	}
	log.Info().
		Int("settled", settled).
		Int64("total_balance", after).
		Dur("duration", duration).
		Msg("Simulation completed")
}

// openTradesHTTP opens random trades as a worker goroutine, sending created trades to tradesChan
func openTradesHTTP(workerID, numTrades int, simClient *simulationClient, users []types.User, tradesChan chan<- openedTrade) {
	for i := 0; i < numTrades; i++ {
		trade, err := simClient.openTrade(users)
		if err != nil {
			log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to open trade")
			continue
		}

		tradesChan <- trade
		log.Info().
			Int("worker_id", workerID).
			Str("trade_id", trade.id).
			Str("kind", trade.kind).
			Msg("Trade opened")

		time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
	}
}

// startServer runs the ledger on an in-memory database without rate limiting
func startServer(cfg *config.Config) error {
	db, err := database.Open(":memory:")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	limits := cfg.RateLimit
	limits.Enabled = false
	return server.NewRouter(db, limits).Run(":" + cfg.Port)
}
