// Package api serves the status and manual-trigger endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
	"github.com/sheetsync/sheetsync/internal/server"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeSyncFailed    = "SYNC_FAILED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

const maxHistoryLimit = 500

// Runtime is the part of the orchestrator the handlers need.
type Runtime interface {
	Status() orchestrator.Status
	Unit(id string) (*unit.SyncUnit, bool)
	TriggerUnit(ctx context.Context, id string) error
	TriggerAll(ctx context.Context) error
	History() history.Store
}

// Handler serves the control API.
type Handler struct {
	runtime Runtime
	auth    *Authenticator
	logger  *slog.Logger
	decoder *schema.Decoder
}

// NewHandler creates a Handler. A nil auth leaves the control endpoints open.
func NewHandler(runtime Runtime, auth *Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{
		runtime: runtime,
		auth:    auth,
		logger:  logger.With("component", "api"),
		decoder: decoder,
	}
}

// Register mounts every route on the server.
func (h *Handler) Register(srv server.Service) {
	srv.RegisterHTTPHandler("GET /healthz", http.HandlerFunc(h.handleHealth))
	srv.RegisterHTTPHandler("GET /metrics", promhttp.Handler())

	srv.RegisterHTTPHandler("GET /api/status", h.protected(h.handleStatus))
	srv.RegisterHTTPHandler("POST /api/run", h.protected(h.handleRunAll))
	srv.RegisterHTTPHandler("POST /api/units/{id}/run", h.protected(h.handleRunUnit))
	srv.RegisterHTTPHandler("POST /api/sheets/{id}/run", h.protected(h.handleRunUnit))
	srv.RegisterHTTPHandler("GET /api/units/{id}/runs", h.protected(h.handleListRuns))
}

func (h *Handler) protected(next http.HandlerFunc) http.Handler {
	if h.auth == nil {
		return next
	}
	return h.auth.Middleware(next)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, h.runtime.Status())
}

// RunResponse is returned by the trigger endpoints.
type RunResponse struct {
	OK     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Failed []string `json:"failed,omitempty"`
}

func (h *Handler) handleRunUnit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.runtime.TriggerUnit(r.Context(), id)
	switch {
	case err == nil:
		server.WriteJSON(w, http.StatusOK, RunResponse{OK: true})
	case errors.Is(err, orchestrator.ErrUnitNotFound):
		server.WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown sheet: "+id)
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		server.WriteError(w, http.StatusConflict, ErrCodeConflict, "Sync already running for "+id)
	default:
		h.logger.Error("Manual unit trigger failed", "unit_id", id, "error", err,
			"request_id", server.GetRequestID(r.Context()))
		server.WriteJSON(w, http.StatusInternalServerError, RunResponse{Error: err.Error()})
	}
}

func (h *Handler) handleRunAll(w http.ResponseWriter, r *http.Request) {
	err := h.runtime.TriggerAll(r.Context())
	if err == nil {
		server.WriteJSON(w, http.StatusOK, RunResponse{OK: true})
		return
	}

	h.logger.Error("Manual full sync failed", "error", err,
		"request_id", server.GetRequestID(r.Context()))
	resp := RunResponse{Error: err.Error()}
	var batch *orchestrator.BatchError
	if errors.As(err, &batch) {
		resp.Failed = batch.FailedUnits()
	}
	server.WriteJSON(w, http.StatusInternalServerError, resp)
}

// RunsQuery is the query string of the history endpoint.
type RunsQuery struct {
	Limit int `schema:"limit"`
}

// RunsResponse lists recent runs for one unit, newest first.
type RunsResponse struct {
	UnitID string              `json:"unitId"`
	Runs   []history.RunRecord `json:"runs"`
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.runtime.Unit(id); !ok {
		server.WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown sheet: "+id)
		return
	}

	var q RunsQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}
	if q.Limit < 0 || q.Limit > maxHistoryLimit {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 0 and 500")
		return
	}
	if q.Limit == 0 {
		q.Limit = history.DefaultLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	runs, err := h.runtime.History().List(ctx, id, q.Limit)
	if err != nil {
		h.logger.Error("Failed to list run history", "unit_id", id, "error", err)
		server.WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list run history")
		return
	}
	if runs == nil {
		runs = []history.RunRecord{}
	}
	server.WriteJSON(w, http.StatusOK, RunsResponse{UnitID: id, Runs: runs})
}
