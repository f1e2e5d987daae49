// Package api serves health, metrics and live application progress over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
	"gritsync/internal/feed"
	"gritsync/internal/session"
	"gritsync/internal/timeline"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber opens the change feed of one application.
type Subscriber interface {
	Subscribe(ctx context.Context, applicationID string, tables ...string) (<-chan feed.Event, error)
}

// Check is one readiness dependency, e.g. a database ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Options struct {
	Reader     timeline.Reader
	Subscriber Subscriber
	Checks     []Check
	Heartbeat  time.Duration
	Logger     logger.Logger
}

type Server struct {
	reader     timeline.Reader
	subscriber Subscriber
	checks     []Check
	heartbeat  time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func New(opts Options) *Server {
	hb := opts.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	return &Server{
		reader:     opts.Reader,
		subscriber: opts.Subscriber,
		checks:     opts.Checks,
		heartbeat:  hb,
		logger:     opts.Logger.WithFields(map[string]interface{}{"component": "http"}),
		now:        time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /applications/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /applications/{id}/progress/stream", s.handleProgressStream)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failed": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// loadSession fetches every collection of id. The second return is false
// when the application does not exist and a 404 was written.
func (s *Server) loadSession(ctx context.Context, w http.ResponseWriter, id string) (*session.Session, bool) {
	sess := session.New(id, s.reader, s.logger)
	if err := sess.Load(ctx); err != nil && sess.Missing() {
		writeError(w, http.StatusNotFound, "application not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.loadSession(r.Context(), w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handleProgressStream subscribes before loading so no change between the
// load and the subscription is lost, then re-sends the view after every
// applied event until the client goes away.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.subscriber.Subscribe(ctx, id)
	if err != nil {
		s.logger.Error("progress stream subscribe failed", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
		writeError(w, http.StatusServiceUnavailable, "change feed unavailable")
		return
	}

	sess, ok := s.loadSession(ctx, w, id)
	if !ok {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.ActiveProgressStreams.Inc()
	defer metrics.ActiveProgressStreams.Dec()

	if err := sse.event("progress", sess.View()); err != nil {
		return
	}

	// coalesce bursts: one pending notification is enough
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx, events, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			select {
			case <-changed:
				_ = sse.event("progress", sess.View())
			default:
			}
			_ = sse.event("end", map[string]string{"applicationId": id})
			return
		case <-changed:
			if err := sse.event("progress", sess.View()); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.comment("ping"); err != nil {
				return
			}
		}
	}
}
