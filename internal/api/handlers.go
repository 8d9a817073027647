/**
 * @description
 * HTTP handlers for the engine's ops surface: checkout intents, the plan
 * catalog, and scheduler control. This is internal tooling for the dashboard
 * backend and operators, not a public API.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/app"
)

// Handler holds the dependencies for the API handlers.
type Handler struct {
	engine    *app.Engine
	scheduler *app.Scheduler
	logger    *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *app.Engine, scheduler *app.Scheduler, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, scheduler: scheduler, logger: logger}
}

// handleListPlans returns the static plan catalog.
func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.Plans())
}

// createIntentRequest is the DTO for opening a payment intent.
type createIntentRequest struct {
	UserID uuid.UUID `json:"user_id"`
	PlanID string    `json:"plan_id"`
}

// handleCreateIntent opens a new payment intent for a user and plan.
func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil || req.PlanID == "" {
		http.Error(w, "user_id and plan_id are required", http.StatusBadRequest)
		return
	}

	intent, err := h.engine.CreatePaymentIntent(r.Context(), req.UserID, req.PlanID)
	if err != nil {
		if errors.Is(err, app.ErrUnknownPlan) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to create payment intent", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusCreated, intent)
}

// handleGetTransfer looks up one on-chain transaction by hash, for operators
// investigating an attribution.
func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	txHash := chi.URLParam(r, "txHash")
	transfer, err := h.engine.LookupTransfer(r.Context(), txHash)
	if err != nil {
		h.logger.Error("failed to look up transfer", "tx_hash", txHash, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	if transfer == nil {
		http.Error(w, "Transaction not found or not yet confirmed", http.StatusNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, transfer)
}

// schedulerStatusResponse reports whether the settlement timer is scheduled.
type schedulerStatusResponse struct {
	Running bool `json:"running"`
}

// handleSchedulerStatus reports the timer state.
func (h *Handler) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, schedulerStatusResponse{Running: h.scheduler.IsRunning()})
}

// handleForceRun synchronously executes one full sweep cycle and returns the
// per-sweep result counts.
func (h *Handler) handleForceRun(w http.ResponseWriter, r *http.Request) {
	result := h.scheduler.ForceRun(r.Context())
	respondWithJSON(w, http.StatusOK, result)
}

// handleStartScheduler starts the settlement timer (no-op when running).
func (h *Handler) handleStartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(); err != nil {
		h.logger.Error("failed to start scheduler", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, schedulerStatusResponse{Running: h.scheduler.IsRunning()})
}

// handleStopScheduler stops the settlement timer (no-op when stopped).
func (h *Handler) handleStopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	respondWithJSON(w, http.StatusOK, schedulerStatusResponse{Running: h.scheduler.IsRunning()})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
