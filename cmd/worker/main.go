package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/config"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
	"github.com/grantayeye/gamma-budget-planner/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "budget"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	budgetStore := budget.NewPostgresStore(pool)
	catalogStore := catalog.NewPostgresStore(pool)
	catalogService := catalog.NewService(catalogStore, catalog.NewCache(redisClient, cfg.CatalogCacheTTL), nil, logger)
	quoteService := quote.NewService(quote.ServiceConfig{
		Catalogs:   catalogService,
		TaxRateBps: cfg.TaxRateBps,
	})

	repricer := &tasks.RepriceHandler{
		Budgets:  budgetStore,
		Catalogs: catalogService,
		Quotes:   quoteService,
		Log:      logger,
	}

	flusher := &tasks.ViewFlusher{
		Views:   budget.NewViewCounter(redisClient),
		Budgets: budgetStore,
		Log:     logger,
	}
	go func() {
		ticker := time.NewTicker(cfg.ViewFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := flusher.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("flush view counts")
				}
			}
		}
	}()

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 4),
		Logger:      asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRepriceAll, repricer.ProcessTask)

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msgf("%v", args) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msgf("%v", args) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msgf("%v", args) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msgf("%v", args) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msgf("%v", args) }

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "budget-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
