package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisbus "control-cloud/internal/bus/redis"
	"control-cloud/internal/commands/application/events"
	telemetryredis "control-cloud/internal/telemetry/infrastructure/redis"
)

const (
	outcomeSuccess = "success"
	outcomeAsync   = "async"
	outcomeFailed  = "failed"
	outcomeSilent  = "silent"
)

// fakeCollector answers write commands the way a field collector does: it
// publishes an execution result and refreshes the point's latest value.
type fakeCollector struct {
	start         time.Time
	bus           *redisbus.Bus
	client        goredis.Cmdable
	resultChannel string
	latency       time.Duration
	failRate      float64
	asyncRate     float64
	silentRate    float64
	staleRate     float64

	mu         sync.Mutex
	rng        *rand.Rand
	byPoint    map[string]int64
	byOutcome  map[string]int64
	totalCalls int64
}

func main() {
	collectorID := getenvDefault("FAKE_COLLECTOR_ID", "1")
	channelPrefix := getenvDefault("CONTROL_COMMAND_CHANNEL_PREFIX", "cmd:collector:")
	resultChannel := getenvDefault("CONTROL_RESULT_CHANNEL", "control:result")
	addr := getenvDefault("FAKE_COLLECTOR_ADDR", ":18081")

	client := goredis.NewClient(&goredis.Options{
		Addr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getenvIntDefault("REDIS_DB", 0),
	})
	defer client.Close()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	bus, err := redisbus.NewBus(client, logger)
	if err != nil {
		log.Fatal(err)
	}

	fc := &fakeCollector{
		start:         time.Now().UTC(),
		bus:           bus,
		client:        client,
		resultChannel: resultChannel,
		latency:       time.Duration(getenvIntDefault("FAKE_COLLECTOR_LATENCY_MS", 50)) * time.Millisecond,
		failRate:      getenvFloatDefault("FAKE_COLLECTOR_FAIL_RATE", 0),
		asyncRate:     getenvFloatDefault("FAKE_COLLECTOR_ASYNC_RATE", 0),
		silentRate:    getenvFloatDefault("FAKE_COLLECTOR_SILENT_RATE", 0),
		staleRate:     getenvFloatDefault("FAKE_COLLECTOR_STALE_RATE", 0),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		byPoint:       make(map[string]int64),
		byOutcome:     make(map[string]int64),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel := channelPrefix + collectorID
	if err := bus.Subscribe(ctx, channel, fc.handleCommand); err != nil {
		log.Fatalf("subscribe %s: %v", channel, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", fc.handleHealth)
	mux.HandleFunc("/metrics", fc.handleMetrics)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Printf("fake collector %s listening on %s, http on %s", collectorID, channel, addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func (c *fakeCollector) handleCommand(ctx context.Context, channel string, payload []byte) {
	var req events.ControlRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.RequestID == "" {
		log.Printf("fake collector: bad command on %s: %s", channel, payload)
		return
	}
	if req.Command != events.CommandWrite {
		log.Printf("fake collector: unsupported command %q request_id=%s", req.Command, req.RequestID)
		return
	}
	go c.execute(ctx, req)
}

func (c *fakeCollector) execute(ctx context.Context, req events.ControlRequest) {
	started := time.Now()
	if c.latency > 0 {
		time.Sleep(c.latency)
	}

	outcome := c.pickOutcome()
	c.recordCall(req.PointID, outcome)
	if outcome == outcomeSilent {
		return
	}

	if outcome == outcomeSuccess || outcome == outcomeAsync {
		value := req.Value
		if c.roll(c.staleRate) {
			value = "stale"
		}
		if err := c.writeLatest(ctx, req.PointID, value); err != nil {
			log.Printf("fake collector: latest write failed point_id=%s err=%v", req.PointID, err)
		}
	}

	result := events.ExecutionResult{
		RequestID:  req.RequestID,
		Success:    outcome != outcomeFailed,
		IsAsync:    outcome == outcomeAsync,
		DurationMS: time.Since(started).Milliseconds(),
		DeviceID:   req.DeviceID,
		PointID:    req.PointID,
	}
	if outcome == outcomeFailed {
		result.ErrorMessage = "fake write failed"
	}
	body, err := json.Marshal(result)
	if err != nil {
		return
	}
	if _, err := c.bus.Publish(ctx, c.resultChannel, body); err != nil {
		log.Printf("fake collector: publish result failed request_id=%s err=%v", req.RequestID, err)
	}
}

func (c *fakeCollector) writeLatest(ctx context.Context, pointID, value string) error {
	body, err := json.Marshal(map[string]any{
		"value":     value,
		"timestamp": time.Now().UnixMilli(),
		"quality":   "good",
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, telemetryredis.LatestKey(pointID), body, 0).Err()
}

func (c *fakeCollector) pickOutcome() string {
	switch {
	case c.roll(c.silentRate):
		return outcomeSilent
	case c.roll(c.failRate):
		return outcomeFailed
	case c.roll(c.asyncRate):
		return outcomeAsync
	default:
		return outcomeSuccess
	}
}

func (c *fakeCollector) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < rate
}

func (c *fakeCollector) recordCall(pointID, outcome string) {
	atomic.AddInt64(&c.totalCalls, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if pointID != "" {
		c.byPoint[pointID]++
	}
	c.byOutcome[outcome]++
}

func (c *fakeCollector) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (c *fakeCollector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := map[string]any{
		"started_at": c.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&c.totalCalls),
		"by_point":   c.byPoint,
		"by_outcome": c.byOutcome,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
