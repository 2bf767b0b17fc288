// Package server provides the HTTP server and routing for Investrack.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/config"
	"github.com/weihanlu/investrack/internal/di"
	ledgerhandlers "github.com/weihanlu/investrack/internal/modules/ledger/handlers"
	performancehandlers "github.com/weihanlu/investrack/internal/modules/performance/handlers"
	portfoliohandlers "github.com/weihanlu/investrack/internal/modules/portfolio/handlers"
	splithandlers "github.com/weihanlu/investrack/internal/modules/splits/handlers"
	"github.com/weihanlu/investrack/internal/scheduler"
	"github.com/weihanlu/investrack/internal/web"
)

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	cfg            *config.Config
	container      *di.Container
	auth           *AuthMiddleware
	systemHandlers *SystemHandlers
	log            zerolog.Logger
}

// New creates a new HTTP server wired to the container's services.
func New(cfg *config.Config, container *di.Container, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		container: container,
		auth:      NewAuthMiddleware(cfg.JWTSecret, container.UsersRepo, cfg.DevMode, log),
		systemHandlers: NewSystemHandlers(
			container.DB, cfg.DataDir, container.TWSELimiter, container.BackupService, log,
		),
		log: log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RegisterJob makes a scheduled job triggerable through the system API.
func (s *Server) RegisterJob(job scheduler.Job) {
	s.systemHandlers.RegisterJob(job)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Handler)

		ledgerHandlers := ledgerhandlers.NewLedgerHandlers(
			s.container.LedgerService,
			s.container.TradingService,
			s.cfg.HomeCurrency,
			s.log,
		)
		ledgerHandlers.RegisterRoutes(r)

		portfolioHandlers := portfoliohandlers.NewPortfolioHandlers(
			s.container.PortfolioService,
			s.container.TradingService,
			s.cfg.HomeCurrency,
			s.log,
		)
		portfolioHandlers.RegisterRoutes(r)

		splitHandlers := splithandlers.NewSplitHandlers(s.container.SplitRepo, s.log)
		splitHandlers.RegisterRoutes(r)

		performanceHandlers := performancehandlers.NewPerformanceHandlers(s.container.PerformanceService, s.log)
		performanceHandlers.RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
			r.Post("/backups", s.systemHandlers.HandleTriggerBackup)
			r.Post("/jobs/{jobName}", func(w http.ResponseWriter, req *http.Request) {
				s.systemHandlers.HandleTriggerJob(w, req, chi.URLParam(req, "jobName"))
			})
		})

		if s.cfg.DevMode {
			r.Post("/auth/dev-token", s.handleDevToken)
		}
	})
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.container.DB.HealthCheck(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Health check failed")
		web.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDevToken mints a signed token for local development. Only mounted
// in dev mode.
func (s *Server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	userID := web.UserID(r)
	token, err := s.auth.IssueToken(userID, 24*time.Hour)
	if err != nil {
		web.Error(w, s.log, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"token": token, "userId": userID})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
