/**
 * @description
 * HTTP handlers for triggering a recurring pass and reading its status.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/thatzerroguy/expense-tracker/internal/domain"
)

// PassRunner runs recurring passes and reports the last one.
type PassRunner interface {
	RunPass(ctx context.Context) domain.PassSummary
	LastPass(ctx context.Context) (*domain.PassSummary, error)
}

// NextRunReporter reports when the next scheduled pass fires.
type NextRunReporter interface {
	NextRun() time.Time
}

// Handler holds the job runner the handlers interact with.
type Handler struct {
	runner   PassRunner
	schedule NextRunReporter
	logger   *slog.Logger
}

// NewHandler creates a new Handler. schedule may be nil.
func NewHandler(runner PassRunner, schedule NextRunReporter, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, schedule: schedule, logger: logger}
}

type statusResponse struct {
	LastPass *domain.PassSummary `json:"last_pass"`
	NextRun  *time.Time          `json:"next_run,omitempty"`
}

func (h *Handler) handleRunPass(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("manual recurring pass requested", "remote_addr", r.RemoteAddr)
	// A pass runs to completion even if the caller disconnects or times out.
	summary := h.runner.RunPass(context.WithoutCancel(r.Context()))
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	last, err := h.runner.LastPass(r.Context())
	if err != nil {
		h.logger.Error("failed to read recurring pass status", "error", err)
		http.Error(w, "failed to read status", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{LastPass: last}
	if h.schedule != nil {
		if next := h.schedule.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
