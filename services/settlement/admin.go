package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trancheclear/core/epoch"
	"trancheclear/services/settlement/ledger"
	"trancheclear/storage/journal"
)

const recentAttempts = 20

// AttemptLister lists journaled attempts for a pool.
type AttemptLister interface {
	Recent(ctx context.Context, poolID string, limit int) ([]journal.Attempt, error)
	LastConfirmed(ctx context.Context, poolID string, epochID uint64, action string) (journal.Attempt, bool, error)
}

// AdminServer exposes HTTP endpoints for operator controls.
type AdminServer struct {
	supervisor *Supervisor
	journal    AttemptLister
	auth       *Authenticator
	router     http.Handler
}

// NewAdminServer constructs a server over the supervised pools. The journal
// may be nil.
func NewAdminServer(supervisor *Supervisor, auth *Authenticator, attempts AttemptLister) *AdminServer {
	s := &AdminServer{supervisor: supervisor, journal: attempts, auth: auth}
	s.router = otelhttp.NewHandler(s.buildRouter(), "epochd.admin")
	return s
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *AdminServer) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(admin chi.Router) {
		admin.Use(s.auth.Middleware)
		admin.Get("/pools", s.handleList)
		admin.Route("/pools/{pool}", func(pool chi.Router) {
			pool.Get("/", s.handleStatus)
			pool.Post("/pause", s.handlePause)
			pool.Post("/resume", s.handleResume)
			pool.Post("/epoch-params", s.handleEpochParams)
		})
	})
	return r
}

func (s *AdminServer) coordinator(w http.ResponseWriter, r *http.Request) (*Coordinator, bool) {
	c, err := s.supervisor.Pool(chi.URLParam(r, "pool"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return c, true
}

func (s *AdminServer) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Statuses())
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	status := c.Status()
	if s.journal != nil {
		recent, err := s.journal.Recent(r.Context(), c.PoolID(), recentAttempts)
		if err != nil {
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}
		status.Recent = recent
		last, ok, err := s.journal.LastConfirmed(r.Context(), c.PoolID(), status.EpochID, epoch.ActionSubmit.String())
		if err != nil {
			http.Error(w, "journal unavailable", http.StatusInternalServerError)
			return
		}
		if ok {
			status.LastSubmission = &last
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *AdminServer) handlePause(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	c.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleResume(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	c.Resume()
	w.WriteHeader(http.StatusNoContent)
}

type epochParamsRequest struct {
	MinimumEpochTime     string `json:"minimum_epoch_time"`
	MinimumChallengeTime string `json:"minimum_challenge_time"`
}

func (s *AdminServer) handleEpochParams(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	var req epochParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	epochTime, err := parseOptionalDuration(req.MinimumEpochTime)
	if err != nil {
		http.Error(w, "invalid minimum_epoch_time", http.StatusBadRequest)
		return
	}
	challengeTime, err := parseOptionalDuration(req.MinimumChallengeTime)
	if err != nil {
		http.Error(w, "invalid minimum_challenge_time", http.StatusBadRequest)
		return
	}
	if epochTime == nil && challengeTime == nil {
		http.Error(w, "no parameters supplied", http.StatusBadRequest)
		return
	}
	confirmations, err := c.SetEpochParams(r.Context(), epochTime, challengeTime)
	if err != nil {
		switch {
		case errors.Is(err, epoch.ErrInvalidDuration):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ledger.ErrReverted):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"confirmations": confirmations})
}

func parseOptionalDuration(raw string) (*time.Duration, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
