package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tier-ladder/internal/domain"
)

type proposeRequest struct {
	Dates []time.Time `json:"dates"`
}

type scheduleRequest struct {
	Date time.Time `json:"date"`
}

// CreateChallenge opens a challenge against a defender
func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TournamentID == "" || req.ChallengerID == "" || req.DefenderID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	c, err := h.engine.CreateChallenge(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create challenge", err)
		return
	}
	h.writeCreated(w, c)
}

// GetChallenge returns a challenge by ID
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		h.writeServiceError(w, "get challenge", err)
		return
	}
	h.writeSuccess(w, c)
}

// ProposeDates records the defender's candidate match dates
func (h *Handler) ProposeDates(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.engine.ProposeDates(r.Context(), chi.URLParam(r, "challengeID"), req.Dates)
	if err != nil {
		h.writeServiceError(w, "propose dates", err)
		return
	}
	h.writeSuccess(w, c)
}

// ScheduleChallenge picks one of the proposed dates
func (h *Handler) ScheduleChallenge(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	c, err := h.engine.ScheduleChallenge(r.Context(), chi.URLParam(r, "challengeID"), req.Date)
	if err != nil {
		h.writeServiceError(w, "schedule challenge", err)
		return
	}
	h.writeSuccess(w, c)
}

// SubmitResult records the outcome of a played match
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitResultRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.engine.SubmitResult(r.Context(), chi.URLParam(r, "challengeID"), req)
	if err != nil {
		h.writeServiceError(w, "submit result", err)
		return
	}
	h.writeSuccess(w, c)
}

// ForfeitChallenge resolves a challenge against the forfeiting side
func (h *Handler) ForfeitChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.ForfeitRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.engine.ForfeitChallenge(r.Context(), chi.URLParam(r, "challengeID"), req)
	if err != nil {
		h.writeServiceError(w, "forfeit challenge", err)
		return
	}
	h.writeSuccess(w, c)
}

// CancelChallenge withdraws an open challenge without a result
func (h *Handler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.CancelChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		h.writeServiceError(w, "cancel challenge", err)
		return
	}
	h.writeSuccess(w, c)
}
