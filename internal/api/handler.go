package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// runCacheTTL bounds how long completed run results stay in cache.
const runCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// alertEvent is the payload published per fired alert.
type alertEvent struct {
	RunID string        `json:"runId"`
	Alert *domain.Alert `json:"alert"`
}

// runCompletedEvent is the payload published once per finished run.
type runCompletedEvent struct {
	RunID            string `json:"runId"`
	TransactionCount int    `json:"transactionCount"`
	AlertCount       int    `json:"alertCount"`
	RenderFailures   int    `json:"renderFailures"`
}

// Evaluate handles POST /evaluate requests. The whole batch is evaluated in
// one run; the response is the ordered alert log.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions are required",
		})
		return
	}

	result, err := h.engine.Run(ctx, req.Transactions)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedTransaction) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("evaluation failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	// Persist batch and run. The evaluation already succeeded, so storage
	// errors are logged without failing the request.
	if h.repo != nil {
		if err := h.repo.SaveTransactions(ctx, req.Transactions); err != nil {
			slog.Error("failed to save transactions", "run_id", result.RunID, "error", err)
		}
		if err := h.repo.SaveRun(ctx, result); err != nil {
			slog.Error("failed to save run", "run_id", result.RunID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetRun(ctx, result.RunID, result, runCacheTTL); err != nil {
			slog.Warn("failed to cache run", "run_id", result.RunID, "error", err)
		}
	}

	h.publish(ctx, result)

	writeJSON(w, http.StatusOK, result)
}

// publish fans the run's alerts and summary out on the event bus.
func (h *Handler) publish(ctx context.Context, result *domain.RunResult) {
	if h.bus == nil {
		return
	}

	for _, alert := range result.Alerts {
		payload, err := json.Marshal(alertEvent{RunID: result.RunID, Alert: alert})
		if err != nil {
			continue
		}
		if err := h.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "alert_id", alert.ID, "error", err)
		}
	}

	payload, err := json.Marshal(runCompletedEvent{
		RunID:            result.RunID,
		TransactionCount: result.TransactionCount,
		AlertCount:       result.AlertCount,
		RenderFailures:   result.RenderFailures,
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
		slog.Warn("failed to publish run summary", "run_id", result.RunID, "error", err)
	}
}

// GetRun retrieves a run by ID, preferring the cache.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.cache != nil {
		if result, err := h.cache.GetRun(ctx, runID); err == nil && result != nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
			return
		}
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get run",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetRun(ctx, runID, result, runCacheTTL)
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAlert retrieves a single alert from a run.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	alertID := chi.URLParam(r, "alertId")

	if runID == "" || alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id and alert id are required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	alert, err := h.repo.GetAlert(ctx, runID, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to get alert", "run_id", runID, "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ListTransactions returns the stored batch in input order.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	txs, err := h.repo.ListTransactions(r.Context())
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// scenarioInfo describes one detection scenario for GET /scenarios.
type scenarioInfo struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ListScenarios returns the configured detection scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.ScenarioConfig()

	scenarios := []scenarioInfo{
		{Code: domain.CodeHighVolume, Name: string(domain.AlertHighVolume), Enabled: cfg.HighVolume.Enabled},
		{Code: domain.CodeHighAmount, Name: string(domain.AlertHighAmount), Enabled: cfg.HighAmount.Enabled},
		{Code: domain.CodeUnusualPatterns, Name: string(domain.AlertUnusualPatterns), Enabled: cfg.UnusualPatterns.Enabled},
		{Code: domain.CodeFrequentInternational, Name: string(domain.AlertFrequentInternational), Enabled: cfg.FrequentInternational.Enabled},
		{Code: domain.CodeRapidConsecutive, Name: string(domain.AlertRapidConsecutive), Enabled: cfg.RapidConsecutive.Enabled},
		{Code: domain.CodeLocationMismatch, Name: string(domain.AlertLocationMismatch), Enabled: cfg.LocationMismatch.Enabled},
	}
	for _, c := range cfg.Custom {
		scenarios = append(scenarios, scenarioInfo{
			Code:    domain.CodeCustom,
			Name:    c.Name,
			Enabled: c.Enabled,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": scenarios,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
