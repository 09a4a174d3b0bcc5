package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/pipeline"
)

const (
	serviceName = "CreditGuard API"

	defaultMaxBatchSize = 1000
	maxBodyBytes        = 8 << 20
)

// Handler holds dependencies for API handlers.
type Handler struct {
	processor    *pipeline.Processor
	bus          domain.EventBus
	state        Pinger
	version      string
	maxBatchSize int
}

// NewHandler creates a new API handler.
func NewHandler(opts Options, maxBatchSize int) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	return &Handler{
		processor:    opts.Processor,
		bus:          opts.Bus,
		state:        opts.State,
		version:      opts.Version,
		maxBatchSize: maxBatchSize,
	}
}

// BatchResponse is the response for POST /batch-evaluate?summary=true.
// Without the parameter the body is the bare results array.
type BatchResponse struct {
	Results []*domain.FraudResult `json:"results"`
	Summary domain.BatchSummary   `json:"summary"`
}

// Root returns service information.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"status":  "running",
		"version": h.version,
	})
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	tx, err := req.ToTransaction(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.processor.Evaluate(r.Context(), tx)
	if err != nil {
		slog.Error("evaluation failed",
			"user_id", tx.UserID,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// BatchEvaluate handles POST /batch-evaluate. The body is a JSON array of
// transactions or a single transaction object. The response is a JSON array
// of results in input order, or a BatchResponse when summary=true.
func (h *Handler) BatchEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	reqs, err := domain.ParseRequests(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(reqs) > h.maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds maximum of %d transactions", h.maxBatchSize))
		return
	}

	now := time.Now()
	txs := make([]domain.Transaction, len(reqs))
	for i := range reqs {
		tx, err := reqs[i].ToTransaction(now)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("transaction %d: %v", i, err))
			return
		}
		txs[i] = tx
	}

	results, summary, err := h.processor.EvaluateBatch(r.Context(), txs)
	if err != nil {
		slog.Error("batch evaluation failed",
			"count", len(txs),
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "batch evaluation failed")
		return
	}

	if withSummary, _ := strconv.ParseBool(r.URL.Query().Get("summary")); withSummary {
		writeJSON(w, http.StatusOK, BatchResponse{Results: results, Summary: summary})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// ListRules returns the configured rules in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_rules": h.processor.Engine().Rules(),
	})
}

// ListEvaluations returns recent evaluations, newest first, optionally
// filtered by user_id.
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	history := h.processor.History()
	if history == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results, err := history.ListEvaluations(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		slog.Error("failed to list evaluations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list evaluations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": results,
		"count":       len(results),
	})
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	history := h.processor.History()
	if history == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	result, err := history.GetEvaluation(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		slog.Error("failed to get evaluation", "evaluation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get evaluation")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if history := h.processor.History(); history != nil {
		if err := history.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns 503 until the event bus and state stores respond.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	check("state", h.state)
	check("event_bus", h.bus)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
