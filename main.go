package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	alarmrepo "control-cloud/internal/alarms/infrastructure/postgres"
	"control-cloud/internal/bus"
	redisbus "control-cloud/internal/bus/redis"
	commandsapp "control-cloud/internal/commands/application"
	commandsmemory "control-cloud/internal/commands/infrastructure/memory"
	commandsrepo "control-cloud/internal/commands/infrastructure/postgres"
	commandsinterfaces "control-cloud/internal/commands/interfaces"
	commandshttp "control-cloud/internal/commands/interfaces/http"
	"control-cloud/internal/config"
	"control-cloud/internal/observability/metrics"
	telemetryadapters "control-cloud/internal/telemetry/adapters/commands"
	telemetrypostgres "control-cloud/internal/telemetry/infrastructure/postgres"
	telemetryredis "control-cloud/internal/telemetry/infrastructure/redis"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config invalid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set, command log kept in memory")
	}

	metrics.Init(db, logger)

	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("redis ping error: %v", err)
		}
	} else {
		logger.Printf("REDIS_ADDR not set, using in-process bus")
	}

	var (
		store       commandsapp.CommandStore
		alarmReader commandsapp.AlarmReader
	)
	if db != nil {
		store = commandsrepo.NewCommandRepository(db)
		alarmReader = alarmrepo.NewOccurrenceRepository(db)
	} else {
		store = commandsmemory.NewCommandRepository()
	}

	// The server ingests collector results and serves the command log.
	// Writes are issued by callers embedding commandsapp.Service.
	var subscriber bus.Subscriber
	if rdb != nil {
		redisBus, err := redisbus.NewBus(rdb, logger)
		if err != nil {
			logger.Fatalf("redis bus init error: %v", err)
		}
		subscriber = redisBus
	} else {
		subscriber = bus.NewInMemoryBus()
	}

	valueReader, err := buildValueReader(cfg.Control.LatestValueSources, rdb, db, logger)
	if err != nil {
		logger.Fatalf("value reader init error: %v", err)
	}

	tracker, err := commandsapp.NewTracker(store, valueReader, alarmReader, logger,
		commandsapp.WithDeliveryTimeout(cfg.Control.DeliveryTimeout),
		commandsapp.WithVerifyDelay(cfg.Control.VerifyDelay),
		commandsapp.WithAlarmMatchDelay(cfg.Control.AlarmMatchDelay),
		commandsapp.WithStoreTimeout(cfg.Control.StoreTimeout),
	)
	if err != nil {
		logger.Fatalf("commands tracker init error: %v", err)
	}
	defer tracker.Close()

	resultConsumer, err := commandsinterfaces.NewResultConsumer(subscriber, tracker, cfg.Control.ResultChannel, logger)
	if err != nil {
		logger.Fatalf("result consumer init error: %v", err)
	}
	if err := resultConsumer.Start(ctx); err != nil {
		logger.Printf("result consumer start error: %v", err)
	}

	sweeper, err := commandsapp.NewSweeper(tracker, cfg.Control.SweepSchedule, cfg.Control.SweepAfter, logger)
	if err != nil {
		logger.Fatalf("commands sweeper init error: %v", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatalf("commands sweeper start error: %v", err)
	}

	queryService, err := commandsapp.NewQueryService(store)
	if err != nil {
		logger.Fatalf("commands query init error: %v", err)
	}
	commandsHandler, err := commandshttp.NewHandler(queryService, logger)
	if err != nil {
		logger.Fatalf("commands handler init error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/commands", commandsHandler)
	mux.Handle("/api/v1/commands/", commandsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(mux, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("control-cloud listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
	logger.Printf("control-cloud stopped")
}

// buildValueReader chains the configured current-value sources in order.
// Sources whose backend is not configured are skipped.
func buildValueReader(sources []string, rdb *goredis.Client, db *sql.DB, logger *log.Logger) (commandsapp.ValueReader, error) {
	var chain []telemetryadapters.NamedSource
	for _, source := range sources {
		switch source {
		case config.SourceRedis:
			if rdb == nil {
				logger.Printf("value source %s skipped: redis not configured", source)
				continue
			}
			chain = append(chain, telemetryadapters.NamedSource{Name: source, Source: telemetryredis.NewLatestReader(rdb)})
		case config.SourcePostgres:
			if db == nil {
				logger.Printf("value source %s skipped: database not configured", source)
				continue
			}
			chain = append(chain, telemetryadapters.NamedSource{Name: source, Source: telemetrypostgres.NewCurrentValueReader(db)})
		}
	}
	if len(chain) == 0 {
		logger.Printf("no value source available, verification disabled")
		return nil, nil
	}
	return telemetryadapters.NewChainReader(logger, chain...)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
