package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantayeye/gamma-budget-planner/internal/auth"
	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/common"
	"github.com/grantayeye/gamma-budget-planner/internal/config"
	"github.com/grantayeye/gamma-budget-planner/internal/events"
	"github.com/grantayeye/gamma-budget-planner/internal/health"
	"github.com/grantayeye/gamma-budget-planner/internal/lock"
	"github.com/grantayeye/gamma-budget-planner/internal/migrations"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
	"github.com/grantayeye/gamma-budget-planner/internal/ratelimit"
	"github.com/grantayeye/gamma-budget-planner/internal/security"
	"github.com/grantayeye/gamma-budget-planner/internal/share"
	"github.com/grantayeye/gamma-budget-planner/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "budget")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "budget-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "budget-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := tasks.NewClient(asynq.NewClient(asynqOpt))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	catalogStore := catalog.NewPostgresStore(pool)
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	catalogService := catalog.NewService(catalogStore, catalogCache, taskClient, logger)
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	quoteService := quote.NewService(quote.ServiceConfig{
		Catalogs:   catalogService,
		TaxRateBps: cfg.TaxRateBps,
	})
	quoteHandler := quote.NewHandler(quote.HandlerConfig{Service: quoteService})

	eventStore := events.NewPostgresStore(pool)
	bus := &events.Bus{Store: eventStore, Log: logger}
	eventsHandler := events.NewHandler(eventStore)

	budgetStore := budget.NewPostgresStore(pool)
	budgetService := &budget.Service{
		Store:  budgetStore,
		Locks:  lock.Locker{R: redisClient},
		Events: bus,
		Window: cfg.ConsolidationWindow,
	}
	views := budget.NewViewCounter(redisClient)
	budgetHandler := budget.NewHandler(budget.HandlerConfig{
		Service: budgetService,
		Quotes:  quoteService,
	})

	signer, err := share.NewSigner(share.SignerConfig{
		Secret: cfg.ShareTokenSecret,
		TTL:    cfg.ShareTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise share signer")
	}
	shareHandler := share.NewHandler(share.HandlerConfig{
		Signer:  signer,
		Budgets: budgetStore,
		Pinner:  budgetService,
		Views:   views,
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
	})

	adminGate := auth.AdminGate{KeyHash: cfg.AdminKeyHash}
	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 86400000)}

	shareLimiter, err := ratelimit.NewRedisLimiter(redisClient, limiter.Rate{
		Period: cfg.ShareRatePeriod,
		Limit:  cfg.ShareRateLimit,
	}, "ratelimit:share")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise share rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS_ENABLED", true)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_BODY_LIMIT_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", auth.AdminKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/quotes", quoteHandler.Compute)
		v.Get("/catalog/{propertyType}", catalogHandler.Get)

		v.Route("/budgets", func(b chi.Router) {
			b.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", budgetHandler.Create)
				g.Put("/{id}", budgetHandler.Save)
			})
			b.Get("/{id}", budgetHandler.Get)
			b.Get("/{id}/versions", budgetHandler.Versions)
			b.Post("/{id}/versions/{number}/restore", budgetHandler.Restore)
			b.Post("/{id}/share", shareHandler.Create)
		})

		v.With(ratelimit.Middleware(shareLimiter)).Get("/s/{token}", shareHandler.Resolve)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(adminGate.Require)
			admin.Get("/budgets", budgetHandler.List)
			admin.Delete("/budgets/{id}", budgetHandler.Delete)
			admin.Post("/budgets/{id}/customize", budgetHandler.Customize)
			admin.Get("/budgets/{id}/events", eventsHandler.ForBudget)
			admin.Get("/events", eventsHandler.Recent)
			admin.Put("/catalog/{propertyType}/categories/{id}", catalogHandler.UpsertCategory)
			admin.Delete("/catalog/{propertyType}/categories/{id}", catalogHandler.DeleteCategory)
			admin.Put("/catalog/{propertyType}/extras/{id}", catalogHandler.UpsertExtra)
			admin.Delete("/catalog/{propertyType}/extras/{id}", catalogHandler.DeleteExtra)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
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

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
