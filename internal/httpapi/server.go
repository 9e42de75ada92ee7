// Package httpapi serves the scheduler's telemetry table over HTTP.
//
// Routes live under /api/v1:
//
//	GET  /api/v1/commands              latest snapshot
//	POST /api/v1/commands/{id}/cancel  queue a cancel for the next tick
//	GET  /api/v1/healthz               liveness
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// Table is the telemetry state the API reads and writes.
// *telemetry.Table satisfies it.
type Table interface {
	Latest() (scheduler.Snapshot, bool)
	RequestCancel(id int64) bool
}

// NewServer builds the root router and mounts the v1 API under /api/v1.
func NewServer(table Table, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "not_found",
			Message: "use a versioned path like /api/v1/commands",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Mount("/v1", v1Router(table))
	})

	return r
}

// requestLogger logs each request at debug level through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "httpapi")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Serve listens on addr and serves handler until ctx is canceled, then
// shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("telemetry server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
