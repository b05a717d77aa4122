// Package health serves the liveness endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgard/lunabot/internal/platform"
)

const shutdownTimeout = 5 * time.Second

// IdentityFunc reports the connected bot identity, nil before the platform is ready.
type IdentityFunc func() *platform.Identity

// Server answers GET / with the process status and the bot identity.
type Server struct {
	log      *slog.Logger
	addr     string
	identity IdentityFunc
}

type statusResponse struct {
	Status string             `json:"status"`
	Bot    *platform.Identity `json:"bot"`
}

// NewServer creates a health server listening on port.
func NewServer(logger *slog.Logger, port int, identity IdentityFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		log:      logger.With("component", "health"),
		addr:     fmt.Sprintf(":%d", port),
		identity: identity,
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{Status: "ok", Bot: s.identity()})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Health server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	s.log.Info("Health server stopped")
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
