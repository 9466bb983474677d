package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/api/middleware"
	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// RouterConfig wires the API router.
type RouterConfig struct {
	ServiceName string
	Store       *intake.Store
	Catalog     *catalog.Snapshot
	Policy      pricing.Policy
	// APIKeys maps accepted keys to client names. Empty disables the check.
	APIKeys map[string]string
	// AllowedOrigins limits CORS to these browser origins. Empty allows all.
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready reports dependency health for /ready.
	Ready  func() error
	Logger *zap.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "intake-api"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(); err != nil {
				jsonError(w, err.Error(), "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	sessions := NewSessionHandler(cfg.Store, logger)
	cat := NewCatalogHandler(cfg.Catalog, cfg.Policy, logger)

	r.Route("/api/v1", func(r chi.Router) {
		if len(cfg.APIKeys) > 0 {
			r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		}
		r.Mount("/sessions", sessions.Routes())
		r.Mount("/catalog", cat.Routes())
		r.Post("/quotes", cat.Quote)
	})
	return r
}
