package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"liquidityhub/core/events"
	nativecommon "liquidityhub/native/common"
	"liquidityhub/native/liquidity"
	ledgermw "liquidityhub/services/ledgerd/middleware"
)

// JournalReader pages through the hash-chained event journal. Both the KV
// state and the SQL store implement it.
type JournalReader interface {
	Journal(ctx context.Context, from uint64, limit int) ([]events.JournalEntry, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine    *liquidity.Engine
	Kinked    *liquidity.KinkedStrategy
	Journal   JournalReader
	Hub       *Hub
	Pauses    *nativecommon.PauseSet
	Auth      ledgermw.AuthConfig
	RateLimit ledgermw.RateLimit
	// Registry receives the HTTP collectors and backs /metrics. A nil
	// registry uses the process default.
	Registry       *prometheus.Registry
	OriginPatterns []string
	Logger         *slog.Logger
}

// Server exposes the ledger engine over HTTP.
type Server struct {
	engine         *liquidity.Engine
	kinked         *liquidity.KinkedStrategy
	journal        JournalReader
	hub            *Hub
	pauses         *nativecommon.PauseSet
	logger         *slog.Logger
	originPatterns []string

	auth    *ledgermw.Authenticator
	limiter *ledgermw.RateLimiter
	obs     *ledgermw.Observability
	metrics http.Handler
	router  http.Handler
}

// New constructs the HTTP router with authentication, rate limiting and
// telemetry.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(0, logger)
	}
	pauses := cfg.Pauses
	if pauses == nil {
		pauses = nativecommon.NewPauseSet()
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	metrics := promhttp.Handler()
	if cfg.Registry != nil {
		registerer = cfg.Registry
		metrics = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}
	srv := &Server{
		engine:         cfg.Engine,
		kinked:         cfg.Kinked,
		journal:        cfg.Journal,
		hub:            hub,
		pauses:         pauses,
		logger:         logger,
		originPatterns: cfg.OriginPatterns,
		auth:           ledgermw.NewAuthenticator(cfg.Auth, logger),
		limiter:        ledgermw.NewRateLimiter(cfg.RateLimit, logger),
		obs:            ledgermw.NewObservability("ledgerd", registerer, logger),
		metrics:        metrics,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router wrapped with trace propagation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "ledgerd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.obs.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Use(s.limiter.Middleware)

		api.Get("/assets", s.handleListPools)
		api.Route("/assets/{asset}", func(asset chi.Router) {
			asset.Get("/", s.handleGetPool)
			asset.Get("/participants", s.handleListParticipants)
			asset.Get("/participants/{participant}", s.handleGetParticipant)
			asset.Get("/preview/shares", s.handlePreviewShares)
			asset.Get("/preview/value", s.handlePreviewValue)
			asset.Get("/preview/index", s.handlePreviewIndex)

			asset.Post("/add", s.handleAdd)
			asset.Post("/remove", s.handleRemove)
			asset.Post("/draw", s.handleDraw)
			asset.Post("/restore", s.handleRestore)
			asset.Post("/premium", s.handleRefreshPremium)
			asset.Post("/deficit/report", s.handleReportDeficit)
			asset.Post("/deficit/eliminate", s.handleEliminateDeficit)
			asset.Post("/transfer", s.handleTransfer)
			asset.Post("/sweep", s.handleSweep)
			asset.Post("/reclaim", s.handleReclaim)
			asset.Post("/accrue", s.handleAccrue)
		})
		api.Get("/journal", s.handleJournal)
		api.Get("/stream", s.handleStream)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.RequireAdmin)
			admin.Put("/assets/{asset}", s.handleConfigureAsset)
			admin.Put("/assets/{asset}/participants/{participant}", s.handleConfigureParticipant)
			admin.Get("/pauses", s.handleListPauses)
			admin.Post("/pause", s.handlePause)
			admin.Post("/resume", s.handleResume)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.engine.Pools(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"paused": s.pauses.IsPaused(liquidity.ModuleName),
	})
}
