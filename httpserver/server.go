package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// Server serves the normalizer over HTTP with graceful shutdown, signal
// handling and lifecycle logging.
//
//	server := httpserver.New(
//	    httpserver.WithAddr(":8080"),
//	    httpserver.WithNormalizer(n),
//	)
//
//	// Blocks until shutdown signal (SIGTERM, SIGINT) or context cancellation
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Server struct {
	httpServer *http.Server
	config     Config
	logger     zerolog.Logger
	normalizer *normalizer.Normalizer
	metrics    *Metrics
	health     *health
}

// New creates a new Server with the provided options.
// If no config is provided, DefaultConfig() is used.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "sqlsentinel"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	logger = logger.With().Str("service", cfg.ServiceName).Logger()

	n := cfg.Normalizer
	if n == nil {
		n = normalizer.New(normalizer.WithLogger(logger))
	}

	metrics, err := NewMetrics(cfg.MeterProvider, cfg.ServiceName)
	if err != nil {
		logger.Warn().Err(err).Msg("metrics disabled")
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		normalizer: n,
		metrics:    metrics,
		health:     &health{service: cfg.ServiceName, version: cfg.Version},
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewMux()

	r.Use(RequestID())
	r.Use(Tracing(s.config.TracerProvider, s.config.ServiceName))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
	}
	r.Use(Logger(s.logger, "/livez", "/readyz", "/metrics"))
	r.Use(Recovery(s.logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/livez", s.health.live)
	r.Get("/readyz", s.health.ready)
	if s.config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.config.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if s.config.RateLimit > 0 {
			r.Use(RateLimit(s.config.RateLimit, s.config.RateBurst))
		}
		r.Post("/normalize", s.handleNormalize)
	})

	return r
}

// Handler returns the routed handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe listens on the configured address and blocks until
// shutdown.
//
// The server shuts down gracefully when ctx is cancelled or SIGTERM or
// SIGINT is received. /readyz reports 503 from then on, and in-flight
// requests get up to ShutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and blocks until shutdown, like
// ListenAndServe.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(shutdownChan)

	serverErrChan := make(chan error, 1)

	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("server starting")

		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
		close(serverErrChan)
	}()

	select {
	case err := <-serverErrChan:
		if err != nil {
			s.logger.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	case sig := <-shutdownChan:
		s.logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received")
	case <-ctx.Done():
		s.logger.Info().
			Err(ctx.Err()).
			Msg("context cancelled, shutting down")
	}

	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	s.health.drain()

	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("graceful shutdown failed, forcing close")

		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		return err
	}

	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

// Shutdown stops the server gracefully without waiting for a signal.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.drain()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
