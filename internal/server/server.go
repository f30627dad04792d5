package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fwrelease/internal/config"
	"fwrelease/internal/history"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	handlerTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server reports build history for the configured outputs.
type Server struct {
	Outputs   []string
	History   *history.History
	Logger    *slog.Logger
	RateLimit float64 // requests per second per client
	RateBurst int
	TestMode  bool // disables rate limiting
}

func NewServer(cfg *config.Config, hist *history.History, logger *slog.Logger) *Server {
	outputs := make([]string, 0, len(cfg.Builds))
	for _, b := range cfg.Builds {
		outputs = append(outputs, b.Output)
	}

	return &Server{
		Outputs:   outputs,
		History:   hist,
		Logger:    logger,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}
}

// Router returns the read-only status API. Rate limiting is skipped in
// test mode.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(handlerTimeout))
	r.Use(requestLogger(s.Logger))
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(s.RateLimit, s.RateBurst, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Route("/status", func(r chi.Router) {
		r.Get("/{outputName}", s.HandleStatus)
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.HandleRuns)
		r.Get("/{runID}", s.HandleRun)
	})
	return r
}

// Start listens on host:port and serves until ctx is done. In-flight
// requests get shutdownTimeout to finish.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	httpSrv := &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- httpSrv.ListenAndServe() }()

	select {
	case err := <-served:
		return fmt.Errorf("listen on %s: %w", httpSrv.Addr, err)
	case <-ctx.Done():
	}

	s.Logger.Info("status server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
