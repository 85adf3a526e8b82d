package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"NewsSmoke/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns the value served as JSON on /status.
type StatusFunc func() any

// Server serves /metrics, /status and /health.
type Server struct {
	http *http.Server
	log  *logger.Logger
}

// NewServer builds the HTTP server for m on addr.
func NewServer(addr string, m *Metrics, status StatusFunc, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Router(m, status),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Router returns the routes without binding a listener.
func Router(m *Metrics, status StatusFunc) http.Handler {
	r := mux.NewRouter()

	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)
	}
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		var body any = map[string]string{"status": "no run yet"}
		if status != nil {
			if v := status(); v != nil {
				body = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	}).Methods(http.MethodGet)

	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Metrics server shutdown: %v", err)
		}
	}()

	s.log.Info("Metrics server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
