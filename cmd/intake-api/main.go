// Package main provides the intake API service entry point.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/api/handlers"
	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
	"github.com/drfirst/go-intake/internal/infrastructure/postgres"
	"github.com/drfirst/go-intake/internal/observability/metrics"
	"github.com/drfirst/go-intake/internal/observability/tracing"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
)

// Config holds application configuration
type Config struct {
	Port          string
	DatabaseURL   string
	APIKeys       map[string]string
	CORSOrigins   []string
	LogLevel      string
	CatalogSource string
	CatalogFile   string
	SubmitDelay   time.Duration
	SessionTTL    time.Duration
	PricingStrict bool
	OTLPEndpoint  string
}

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()

	tcfg := tracing.DefaultConfig("intake-api")
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(nil)

	// Postgres is optional; without it orders go to the simulated submitter.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		logger.Info("connected to database")
	}

	snap, err := loadCatalog(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	products, pharmacies := snap.Len()
	logger.Info("catalog loaded",
		zap.String("source", cfg.CatalogSource),
		zap.Int("products", products),
		zap.Int("pharmacies", pharmacies))

	policy := pricing.DefaultPolicy()
	policy.Strict = cfg.PricingStrict

	deps := intake.Deps{Recorder: m, Logger: logger}
	if pool != nil {
		orders := postgres.NewSubmissionStore(pool, postgres.DefaultSubmissionStoreConfig(), logger)
		submitter, err := guardSubmitter(orders, m, logger)
		if err != nil {
			logger.Fatal("failed to create circuit breaker", zap.Error(err))
		}
		deps.Submitter = tracing.NewSubmitter(submitter)
		deps.Notifier = orders
	} else {
		deps.Submitter = tracing.NewSubmitter(intake.DelaySubmitter{Delay: cfg.SubmitDelay})
	}

	storeCfg := intake.DefaultStoreConfig()
	storeCfg.IdleTTL = cfg.SessionTTL
	store := intake.NewStore(intake.NewReducer(intake.DefaultTable(), snap, policy), deps, storeCfg, logger)
	store.Start()
	defer store.Stop()

	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName:    "intake-api",
		Store:          store,
		Catalog:        snap,
		Policy:         policy,
		APIKeys:        cfg.APIKeys,
		AllowedOrigins: cfg.CORSOrigins,
		Metrics:        metrics.Handler(),
		Ready: func() error {
			if pool == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(ctx)
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Checkout blocks until the order is stored.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting intake API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// guardSubmitter puts a breaker in front of the order store. Duplicate orders
// are client mistakes and do not count against the database.
func guardSubmitter(orders *postgres.SubmissionStore, m *metrics.Metrics, logger *zap.Logger) (intake.Submitter, error) {
	bcfg := circuitbreaker.DefaultConfig("submission-store")
	bcfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, postgres.ErrDuplicateOrder) || errors.Is(err, context.Canceled)
	}
	cb, err := circuitbreaker.New(bcfg, logger)
	if err != nil {
		return nil, err
	}
	cb.OnStateChange(func(name string, to circuitbreaker.State) {
		m.BreakerState(name, to.Gauge())
	})

	return intake.SubmitterFunc(func(ctx context.Context, order *intake.Order) (*intake.Confirmation, error) {
		return circuitbreaker.Do(ctx, cb, func(ctx context.Context) (*intake.Confirmation, error) {
			return orders.Submit(ctx, order)
		})
	}), nil
}

func loadCatalog(ctx context.Context, cfg Config, pool *pgxpool.Pool, logger *zap.Logger) (*catalog.Snapshot, error) {
	static := catalog.NewStaticRepository()
	if cfg.CatalogFile != "" {
		var err error
		if static, err = catalog.NewStaticRepositoryFromFile(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}
	if cfg.CatalogSource != "postgres" {
		return static.Load(ctx)
	}
	if pool == nil {
		return nil, errors.New("CATALOG_SOURCE=postgres requires DATABASE_URL")
	}

	repo := postgres.NewCatalogRepository(pool, logger)
	empty, err := repo.Empty(ctx)
	if err != nil {
		return nil, err
	}
	if empty {
		seed, err := static.Load(ctx)
		if err != nil {
			return nil, err
		}
		if err := repo.Seed(ctx, seed); err != nil {
			return nil, err
		}
		logger.Info("seeded empty catalog")
	}
	return repo.Load(ctx)
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	apiKeys := map[string]string{}
	if key := os.Getenv("API_KEY"); key != "" {
		apiKeys[key] = "env-client"
	}

	source := os.Getenv("CATALOG_SOURCE")
	if source == "" {
		source = "static"
	}

	strict, _ := strconv.ParseBool(os.Getenv("PRICING_STRICT"))

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	return Config{
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		APIKeys:       apiKeys,
		CORSOrigins:   origins,
		LogLevel:      os.Getenv("LOG_LEVEL"),
		CatalogSource: source,
		CatalogFile:   os.Getenv("CATALOG_FILE"),
		SubmitDelay:   durationEnv("SUBMIT_DELAY", intake.DefaultSubmitDelay),
		SessionTTL:    durationEnv("SESSION_TTL", intake.DefaultStoreConfig().IdleTTL),
		PricingStrict: strict,
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
