// Package api serves the watchdog's operational HTTP surface: health,
// run history, manual run triggers, payload intake and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/intake"
	"github.com/msapprovals/watchdog/internal/reminder"
)

// Runner triggers a watchdog pass. Satisfied by the run loop in cmd.
type Runner interface {
	TriggerRun(ctx context.Context) (*reminder.RunOutcome, error)
}

// RunHistory reads recorded runs. Satisfied by runlog.Store.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]reminder.RunOutcome, error)
}

// Handlers carries the collaborators behind the ops endpoints.
type Handlers struct {
	runner   Runner
	history  RunHistory
	intake   *intake.Intake
	gatherer prometheus.Gatherer
	log      *zap.Logger

	mu      sync.RWMutex
	lastRun *reminder.RunOutcome
}

func NewHandlers(runner Runner, history RunHistory, in *intake.Intake, gatherer prometheus.Gatherer, log *zap.Logger) *Handlers {
	return &Handlers{
		runner:   runner,
		history:  history,
		intake:   in,
		gatherer: gatherer,
		log:      log.Named("api"),
	}
}

// SetLastRun records the most recent outcome for /stats.
func (h *Handlers) SetLastRun(out *reminder.RunOutcome) {
	h.mu.Lock()
	h.lastRun = out
	h.mu.Unlock()
}

// Router assembles the ops routes.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Get("/runs", h.handleRuns)
	r.Post("/run", h.handleTriggerRun)
	r.Post("/payloads", h.handlePayload)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	last := h.lastRun
	h.mu.RUnlock()
	if last == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"last_run": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"last_run": last})
}

func (h *Handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.history.RecentRuns(r.Context(), limit)
	if err != nil {
		h.log.Error("listing runs failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *Handlers) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	out, err := h.runner.TriggerRun(r.Context())
	if err != nil {
		if errors.Is(err, reminder.ErrRunInProgress) {
			respondError(w, http.StatusConflict, "a run is already in progress")
			return
		}
		h.log.Error("manual run failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "run failed")
		return
	}
	h.SetLastRun(out)
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) handlePayload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	stored, err := h.intake.Accept(r.Context(), body, time.Now().UTC())
	if err != nil {
		var ve *intake.ValidationError
		if errors.As(err, &ve) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":    "validation failed",
				"problems": ve.Problems,
			})
			return
		}
		h.log.Error("payload intake failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "intake failed")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"rows": stored})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
