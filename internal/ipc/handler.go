// Package ipc provides the HTTP API for submitting tickets and inspecting runs.
package ipc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/guard"
	"github.com/rogersf/ticketflow/internal/store"
	"github.com/rogersf/ticketflow/internal/workflow"
)

// maxBodyBytes caps POST bodies before the guard sees them.
const maxBodyBytes = 1 << 20

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine         *workflow.Engine
	Guard          *guard.Guard
	Journal        *store.RunJournal
	DB             *sql.DB
	// EscalationRepo is nil unless the sqlite sink is configured.
	EscalationRepo *store.EscalationRepo
	RunTimeout     time.Duration
	Logger         *slog.Logger
}

// SubmitTicketRequest is the body for POST /api/v1/tickets.
type SubmitTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	RetryLimit int    `json:"retry_limit"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, APIError{Code: domain.ErrStoreQuery.Code, Message: "store unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", RetryLimit: h.Engine.RetryLimit()})
}

// SubmitTicket handles POST /api/v1/tickets. The run executes synchronously
// and the terminal state is returned.
func (h *Handler) SubmitTicket(w http.ResponseWriter, r *http.Request) {
	var req SubmitTicketRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	ticket := domain.Ticket{Subject: req.Subject, Description: req.Description}

	if h.Guard != nil {
		if err := h.Guard.CheckAll(clientKey(r), ticket); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	ctx := r.Context()
	if h.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
		defer cancel()
	}

	result, err := h.Engine.Run(ctx, ticket)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRunEvents handles GET /api/v1/runs/{runID}/events.
func (h *Handler) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		writeJSON(w, http.StatusNotFound, APIError{Code: domain.ErrRunNotFound.Code, Message: "run journal disabled"})
		return
	}
	events, err := h.Journal.Events(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// ListEscalations handles GET /api/v1/escalations?limit=N.
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	if h.EscalationRepo == nil {
		writeEscalationStoreDisabled(w)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.EscalationRepo.List(r.Context(), h.DB, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.EscalationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetEscalation handles GET /api/v1/escalations/{runID}.
func (h *Handler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	if h.EscalationRepo == nil {
		writeEscalationStoreDisabled(w)
		return
	}
	rec, err := h.EscalationRepo.GetByRun(r.Context(), h.DB, chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeEscalationStoreDisabled answers escalation queries when no sqlite sink
// is configured. Records written to csv or kafka are not queryable here.
func writeEscalationStoreDisabled(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, APIError{
		Code:    http.StatusNotImplemented,
		Message: "escalation store disabled; enable the sqlite sink",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := statusFor(engErr)
		if status >= http.StatusInternalServerError {
			h.logger().ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	h.logger().ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func statusFor(err *domain.EngineError) int {
	switch err.Code {
	case domain.ErrInvalidTicket.Code, domain.ErrTicketTooLarge.Code:
		return http.StatusBadRequest
	case domain.ErrRunNotFound.Code:
		return http.StatusNotFound
	case domain.ErrRateLimitExceeded.Code:
		return http.StatusTooManyRequests
	case domain.ErrCollaborator.Code, domain.ErrClassification.Code:
		return http.StatusBadGateway
	case domain.ErrPersistence.Code:
		return http.StatusServiceUnavailable
	case domain.ErrRunCancelled.Code:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// clientKey identifies the caller for rate limiting. RealIP middleware has
// already rewritten RemoteAddr when a proxy header is present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
