package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tier-ladder/internal/domain"
)

type roleRequest struct {
	Role string `json:"role"`
}

type captainRequest struct {
	UserID string `json:"user_id"`
}

// RegisterTeam creates a team captained by the requester
func (h *Handler) RegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterTeamRequest
	if !h.decode(w, r, &req) {
		return
	}

	team, err := h.teams.RegisterTeam(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register team", err)
		return
	}
	h.writeCreated(w, team)
}

// GetTeam returns a team by ID
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.teams.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeServiceError(w, "get team", err)
		return
	}
	h.writeSuccess(w, team)
}

// GetTeamBySlug returns a team by its URL slug
func (h *Handler) GetTeamBySlug(w http.ResponseWriter, r *http.Request) {
	team, err := h.teams.GetTeamBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, "get team", err)
		return
	}
	h.writeSuccess(w, team)
}

// GetTeamMembers returns a team's roster
func (h *Handler) GetTeamMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.teams.GetTeamMembers(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeServiceError(w, "get team members", err)
		return
	}
	h.writeSuccess(w, members)
}

// AddMember adds a player to the roster
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var member domain.Member
	if !h.decode(w, r, &member) {
		return
	}

	team, err := h.teams.AddMember(r.Context(), chi.URLParam(r, "teamID"), actorID, member)
	if err != nil {
		h.writeServiceError(w, "add member", err)
		return
	}
	h.writeSuccess(w, team)
}

// RemoveMember drops a player from the roster
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	team, err := h.teams.RemoveMember(r.Context(), chi.URLParam(r, "teamID"), actorID, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "remove member", err)
		return
	}
	h.writeSuccess(w, team)
}

// UpdateMemberRole changes a player's role label
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}

	team, err := h.teams.UpdateMemberRole(r.Context(), chi.URLParam(r, "teamID"), actorID, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		h.writeServiceError(w, "update member role", err)
		return
	}
	h.writeSuccess(w, team)
}

// TransferCaptain hands the captaincy to another member
func (h *Handler) TransferCaptain(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req captainRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	team, err := h.teams.TransferCaptain(r.Context(), chi.URLParam(r, "teamID"), actorID, req.UserID)
	if err != nil {
		h.writeServiceError(w, "transfer captain", err)
		return
	}
	h.writeSuccess(w, team)
}

// RetireTeam marks a team as retired
func (h *Handler) RetireTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	team, err := h.teams.RetireTeam(r.Context(), chi.URLParam(r, "teamID"), actorID)
	if err != nil {
		h.writeServiceError(w, "retire team", err)
		return
	}
	h.writeSuccess(w, team)
}

// ListPendingForTeam returns the team's open challenges
func (h *Handler) ListPendingForTeam(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.engine.ListPendingForTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeServiceError(w, "list pending challenges", err)
		return
	}
	h.writeSuccess(w, challenges)
}
