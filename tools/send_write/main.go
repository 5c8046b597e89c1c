package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	alarmrepo "control-cloud/internal/alarms/infrastructure/postgres"
	redisbus "control-cloud/internal/bus/redis"
	commandsapp "control-cloud/internal/commands/application"
	commands "control-cloud/internal/commands/domain"
	commandsmemory "control-cloud/internal/commands/infrastructure/memory"
	commandsrepo "control-cloud/internal/commands/infrastructure/postgres"
	commandsinterfaces "control-cloud/internal/commands/interfaces"
	commandshttp "control-cloud/internal/commands/interfaces/http"
	"control-cloud/internal/config"
	telemetryadapters "control-cloud/internal/telemetry/adapters/commands"
	telemetryredis "control-cloud/internal/telemetry/infrastructure/redis"
)

type toolConfig struct {
	collectorID string
	deviceID    string
	pointID     string
	value       string
	username    string
	count       int
	interval    time.Duration
	wait        time.Duration
}

// send_write issues point writes through the command service and prints
// each record once it reaches a final status or the wait expires.
func main() {
	cfg := parseConfig()
	if cfg.count <= 0 {
		log.Fatal("count must be > 0")
	}

	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if appCfg.Redis.Addr == "" {
		log.Fatal("REDIS_ADDR is required")
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := goredis.NewClient(&goredis.Options{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	defer client.Close()

	var (
		store       commandsapp.CommandStore = commandsmemory.NewCommandRepository()
		alarmReader commandsapp.AlarmReader
	)
	if appCfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", appCfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		store = commandsrepo.NewCommandRepository(db)
		alarmReader = alarmrepo.NewOccurrenceRepository(db)
	}

	bus, err := redisbus.NewBus(client, logger)
	if err != nil {
		log.Fatal(err)
	}
	values, err := telemetryadapters.NewChainReader(logger, telemetryadapters.NamedSource{
		Name:   config.SourceRedis,
		Source: telemetryredis.NewLatestReader(client),
	})
	if err != nil {
		log.Fatal(err)
	}

	tracker, err := commandsapp.NewTracker(store, values, alarmReader, logger,
		commandsapp.WithDeliveryTimeout(appCfg.Control.DeliveryTimeout),
		commandsapp.WithVerifyDelay(appCfg.Control.VerifyDelay),
		commandsapp.WithAlarmMatchDelay(appCfg.Control.AlarmMatchDelay),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close()

	consumer, err := commandsinterfaces.NewResultConsumer(bus, tracker, appCfg.Control.ResultChannel, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("subscribe results: %v", err)
	}

	service, err := commandsapp.NewService(tracker, bus, appCfg.Control.CommandChannelPrefix, logger)
	if err != nil {
		log.Fatal(err)
	}

	requestIDs := make([]string, 0, cfg.count)
	for i := 0; i < cfg.count; i++ {
		resp, err := service.IssueWrite(ctx, commandsapp.WriteRequest{
			Username:    cfg.username,
			CollectorID: cfg.collectorID,
			DeviceID:    cfg.deviceID,
			PointID:     cfg.pointID,
			Value:       cfg.value,
		})
		if err != nil {
			log.Fatalf("issue write: %v", err)
		}
		logger.Printf("issued request_id=%s channel=%s subscribers=%d", resp.RequestID, resp.Channel, resp.SubscriberCount)
		requestIDs = append(requestIDs, resp.RequestID)
		if cfg.interval > 0 && i+1 < cfg.count {
			time.Sleep(cfg.interval)
		}
	}

	records := waitFinal(ctx, store, requestIDs, cfg.wait)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	views := make([]commandshttp.CommandView, 0, len(records))
	for _, rec := range records {
		views = append(views, commandshttp.NewCommandView(rec))
	}
	if err := enc.Encode(views); err != nil {
		log.Fatal(err)
	}
	summary := make(map[commands.FinalStatus]int)
	for _, rec := range records {
		summary[rec.FinalStatus]++
	}
	logger.Printf("summary: %s", formatSummary(summary))
}

func waitFinal(ctx context.Context, store commandsapp.CommandStore, requestIDs []string, wait time.Duration) []commands.CommandRecord {
	deadline := time.Now().Add(wait)
	for {
		records := make([]commands.CommandRecord, 0, len(requestIDs))
		done := true
		for _, id := range requestIDs {
			rec, err := store.GetByID(ctx, id)
			if err != nil || rec == nil {
				done = false
				continue
			}
			if !rec.FinalStatus.IsTerminal() {
				done = false
			}
			records = append(records, *rec)
		}
		if done || time.Now().After(deadline) {
			return records
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func formatSummary(summary map[commands.FinalStatus]int) string {
	out := ""
	for _, status := range []commands.FinalStatus{commands.FinalSuccess, commands.FinalPartial, commands.FinalFailure, commands.FinalTimeout, commands.FinalPending} {
		if summary[status] == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", status, summary[status])
	}
	return out
}

func parseConfig() toolConfig {
	cfg := toolConfig{}
	flag.StringVar(&cfg.collectorID, "collector", envOrDefault("FAKE_COLLECTOR_ID", "1"), "collector id")
	flag.StringVar(&cfg.deviceID, "device", envOrDefault("DEVICE_ID", "device-1"), "device id")
	flag.StringVar(&cfg.pointID, "point", envOrDefault("POINT_ID", "point-1"), "point id")
	flag.StringVar(&cfg.value, "value", envOrDefault("WRITE_VALUE", "1"), "value to write")
	flag.StringVar(&cfg.username, "user", envOrDefault("WRITE_USER", "send_write"), "operator name recorded on the command")
	flag.IntVar(&cfg.count, "count", envOrInt("WRITE_COUNT", 1), "number of writes to issue")
	flag.DurationVar(&cfg.interval, "interval", 0, "pause between writes")
	flag.DurationVar(&cfg.wait, "wait", 2*time.Minute, "how long to wait for final statuses")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
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
