// Package httpapi serves the read-only query surface polled by the game
// integration. It never mutates the registry and never blocks on the chat
// gateway; tracked-user writes go through the worker pool.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bloxmod/modbridge/internal/metrics"
	"github.com/bloxmod/modbridge/internal/pool"
	"github.com/bloxmod/modbridge/internal/registry"
	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/rs/zerolog"
)

// Server answers the game-side polling endpoints.
type Server struct {
	addr     string
	registry *registry.Registry
	pool     *pool.Pool
	now      func() time.Time
	log      zerolog.Logger
}

// NewServer builds a query Server on addr.
func NewServer(addr string, reg *registry.Registry, workerPool *pool.Pool, log zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: reg,
		pool:     workerPool,
		now:      time.Now,
		log:      log,
	}
}

// Handler returns the route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /check/{id}", s.handleCheck)
	mux.HandleFunc("GET /track/{id}/{username}/{display}", s.handleTrack)
	mux.HandleFunc("GET /reason/{id}", s.handleReason)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	s.log.Info().Str("addr", s.addr).Msg("query server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("query server: %w", err)
	}
	return nil
}

// handleCheck answers literally "true" or "false". The registry re-checks
// expiry on every call, so the answer is correct between janitor sweeps.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	metrics.QueryRequests.WithLabelValues("check").Inc()
	if s.registry.IsActive(r.PathValue("id")) {
		_, _ = w.Write([]byte("true"))
		return
	}
	_, _ = w.Write([]byte("false"))
}

// handleTrack records an observation and always answers "OK". Persistence is
// queued so the poller never waits on disk.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	metrics.QueryRequests.WithLabelValues("track").Inc()
	s.pool.Enqueue(pool.TrackJob{
		UserID:      r.PathValue("id"),
		Username:    r.PathValue("username"),
		DisplayName: r.PathValue("display"),
		SeenAt:      s.now().UTC(),
	})
	_, _ = w.Write([]byte("OK"))
}

// handleReason answers the active ban's reason, or an empty body.
func (s *Server) handleReason(w http.ResponseWriter, r *http.Request) {
	metrics.QueryRequests.WithLabelValues("reason").Inc()
	reason, ok := s.registry.Reason(r.PathValue("id"))
	if !ok {
		return
	}
	_, _ = w.Write([]byte(reason))
}

// NewTrackHandler returns the pool handler persisting tracked-user
// observations.
func NewTrackHandler(store storage.Store, log zerolog.Logger) pool.JobHandler {
	return func(ctx context.Context, job pool.TrackJob) error {
		rec := storage.TrackedUser{
			Username:    job.Username,
			DisplayName: job.DisplayName,
			SeenAt:      job.SeenAt,
		}
		if err := store.TrackedPut(job.UserID, rec); err != nil {
			return fmt.Errorf("TrackedPut %s: %w", job.UserID, err)
		}
		log.Debug().Str("user_id", job.UserID).Str("username", job.Username).Msg("tracked user recorded")
		return nil
	}
}
