package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chriscow/voicegw/internal/config"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/version"
)

// shutdownGrace bounds how long Run waits for open connections to drain.
const shutdownGrace = 10 * time.Second

// Server exposes the voice endpoint together with health and metrics.
type Server struct {
	cfg     *config.Config
	handler *Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
	http    *http.Server
}

// NewServer builds the HTTP server. Connections derive from ctx, so
// cancelling it tears every session down.
func NewServer(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, opts ...HandlerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]HandlerOption{WithMetrics(m), WithBaseContext(ctx)}, opts...)
	s := &Server{
		cfg:     cfg,
		handler: NewHandler(cfg, logger, opts...),
		metrics: m,
		logger:  logger.With(slog.String("component", "server")),
	}
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Routes returns the server's request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.handler)
	mux.HandleFunc("/healthz", s.healthz)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		version.Info
	}{Status: "ok", Info: version.Get()})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", slog.String("addr", s.cfg.Listen))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	drained := make(chan struct{})
	go func() {
		s.handler.Wait()
		close(drained)
	}()

	err := s.http.Shutdown(shutdownCtx)
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		s.logger.Warn("Connections still open after grace period")
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
