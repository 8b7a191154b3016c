package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/observability/health"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/window"
)

// Options are the optional collaborators of the inspection server.
type Options struct {
	Predictor    window.Predictor         // overlays predictions on /plot.png, nil plots data only
	Metrics      *metrics.TrainingMetrics // served on /metrics when non-nil
	TargetColumn string                   // default column for /plot.png
	Health       *health.Checker          // component checks reported on /health
}

// Server serves read-only views of a Windower over HTTP
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	logger      *logrus.Logger
	config      config.ServerConfig
	windower    *window.Windower
	options     Options
	plotLimiter *rate.Limiter
	startTime   time.Time
}

// NewServer creates a new inspection server for windower
func NewServer(cfg config.ServerConfig, windower *window.Windower, options Options, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Limit(cfg.PlotRPS)
	if cfg.PlotRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.PlotBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		config:      cfg,
		windower:    windower,
		options:     options,
		plotLimiter: rate.NewLimiter(limit, burst),
		startTime:   time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr": s.config.Addr,
		}).Info("Starting inspection server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down inspection server...")

	shutdownCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error shutting down inspection server: %v", err)
		return err
	}

	s.logger.Info("Inspection server stopped")
	return nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/window", s.describeWindow).Methods(http.MethodGet)
	s.router.HandleFunc("/example", s.example).Methods(http.MethodGet)
	s.router.Handle("/plot.png", s.rateLimitMiddleware(http.HandlerFunc(s.plot))).Methods(http.MethodGet)
	if s.options.Metrics != nil {
		s.router.Handle("/metrics", s.options.Metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
}
