// Package server exposes the oracle's operational HTTP surface: the
// Prometheus metrics endpoint, a health probe, and the circuit-breaker
// re-arm override.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves /metrics, /healthz and the operator endpoints.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// New builds the server. healthy is polled by /healthz; rearm is invoked
// by POST /breaker/rearm.
func New(port int, reg *prometheus.Registry, healthy func() bool, rearm func(), log zerolog.Logger) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if healthy() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "insufficient valid price sources")
	}).Methods(http.MethodGet)
	r.HandleFunc("/breaker/rearm", func(w http.ResponseWriter, _ *http.Request) {
		rearm()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "circuit breaker re-armed")
	}).Methods(http.MethodPost)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "http_server").Logger(),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
