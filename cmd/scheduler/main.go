package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonsched/internal/api"
	"salonsched/internal/booking"
	"salonsched/internal/config"
	"salonsched/internal/database"
	"salonsched/internal/database/pgstore"
	"salonsched/internal/domain"
	"salonsched/internal/events"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/reminders"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// store is what main needs beyond the scheduling reads and writes.
type store interface {
	domain.Store
	SyncCatalog(ctx context.Context, cat *config.Catalog) error
	PingContext(ctx context.Context) error
	Close() error
}

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SALONSCHED_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		logger = logger.Level(zerolog.InfoLevel)
	}

	var (
		st       store
		sqliteDB *database.DB
	)
	switch cfg.Database.Driver {
	case "postgres":
		st, err = pgstore.Open(cfg.Database.DSN, &logger)
	default:
		sqliteDB, err = database.NewDB(cfg.Database.Path, &logger)
		st = sqliteDB
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open db error")
	}
	defer st.Close()

	var (
		rdb    *redis.Client
		locker lock.Locker = lock.NewKeyedMutex()
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL(), cfg.LockWait(), &logger)
	}

	bus := events.NewEventBus(&logger)
	if cfg.AMQP.URL != "" {
		fwd, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect amqp error")
		}
		defer fwd.Close()
		fwd.Attach(bus)
	}

	var claimer reminders.Claimer = reminders.NewMemoryClaimer()
	if rdb != nil {
		claimer = reminders.NewRedisClaimer(rdb)
	}
	dispatcher := reminders.New(st, reminders.Options{
		Leads:         cfg.Reminders.Leads(),
		Interval:      cfg.Reminders.CheckInterval(),
		RatePerSecond: cfg.Reminders.RatePerSecond,
		Claimer:       claimer,
		Publisher:     bus,
	}, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial load + hot reload of the tenant catalog
	if err := config.WatchCatalog(ctx, cfg.TenantsConfigPath, cfg.CatalogReloadInterval(), &logger, func(cat *config.Catalog) {
		if err := st.SyncCatalog(ctx, cat); err != nil {
			logger.Error().Err(err).Msg("failed to apply tenants config")
			return
		}
		dispatcher.SetTenants(cat.TenantIDs())
		logger.Info().Str("catalog", cat.String()).Msg("tenants config applied")
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to load tenants config")
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, st, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Reminders.Enabled {
		go dispatcher.Start(ctx)
	}

	if cfg.Backup.Enabled {
		if sqliteDB != nil {
			go database.NewBackupService(sqliteDB, cfg.Backup, &logger).Start(ctx)
		} else {
			logger.Warn().Msg("backup is only supported for the sqlite driver, skipping")
		}
	}

	orch := booking.New(st, booking.Options{
		Locker:           locker,
		Publisher:        bus,
		SearchWindowDays: cfg.Scheduling.SearchWindowDays,
	}, &logger)

	srv := api.NewServer(orch, api.Options{
		Port:               cfg.API.Port,
		Keys:               cfg.API.Keys,
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
		RequestTimeout:     cfg.RequestTimeout(),
	}, &logger)

	logger.Info().Str("driver", cfg.Database.Driver).Bool("redis_lock", rdb != nil).Msg("scheduler started")
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("scheduler stopped")
}

func startHealthServer(ctx context.Context, port int, st store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := st.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
