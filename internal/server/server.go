// Package server is the HTTP surface: the file-buffer endpoint the
// in-page bridge reads videos from, and the publish API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/metrics"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/publishers"
)

// Dispatcher is the publish backend. *publishers.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.PublishRequest) (model.ExecutionResult, error)
	DispatchBatch(ctx context.Context, reqs []model.PublishRequest) []model.ExecutionResult
	Platforms() []publishers.PlatformInfo
}

type Deps struct {
	StorageDir string
	Dispatcher Dispatcher
	Metrics    *metrics.Metrics
	Log        *logging.Logger
	// ErrorsLog is served by /api/errors; empty disables the route.
	ErrorsLog string
}

// NewRouter builds the route table.
func NewRouter(d Deps) http.Handler {
	h := &handlers{deps: d, log: d.Log.With("http")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/file-buffer", h.fileBuffer)
		r.Get("/platforms", h.platforms)
		if d.ErrorsLog != "" {
			r.Get("/errors", h.recentErrors)
		}
		r.Group(func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			r.Post("/publish", h.publish)
			r.Post("/publish/batch", h.publishBatch)
		})
	})
	return r
}

// corsMiddleware allows any origin: the bridge fetches from the
// platform's page origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type Server struct {
	srv *http.Server
	log *logging.Logger
}

func New(addr string, h http.Handler, log *logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
