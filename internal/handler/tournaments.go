package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tier-ladder/internal/domain"
)

type statusRequest struct {
	Status domain.TournamentStatus `json:"status"`
}

type joinRequest struct {
	TeamID string `json:"team_id"`
}

// CreateTournament creates an upcoming tournament
func (h *Handler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTournamentRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.tournaments.CreateTournament(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create tournament", err)
		return
	}
	h.writeCreated(w, t)
}

// ListTournaments returns tournaments, filtered by ?status= when given
func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	status := domain.TournamentStatus(r.URL.Query().Get("status"))

	tournaments, err := h.tournaments.ListTournaments(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, "list tournaments", err)
		return
	}
	h.writeSuccess(w, tournaments)
}

// GetTournament returns a tournament by ID
func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.tournaments.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "get tournament", err)
		return
	}
	h.writeSuccess(w, t)
}

// UpdateRules replaces a tournament's configuration before anyone joins
func (h *Handler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTournamentRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.tournaments.UpdateRules(r.Context(), chi.URLParam(r, "tournamentID"), req)
	if err != nil {
		h.writeServiceError(w, "update rules", err)
		return
	}
	h.writeSuccess(w, t)
}

// AdvanceStatus moves a tournament forward in its lifecycle
func (h *Handler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.tournaments.AdvanceStatus(r.Context(), chi.URLParam(r, "tournamentID"), req.Status)
	if err != nil {
		h.writeServiceError(w, "advance tournament status", err)
		return
	}
	h.writeSuccess(w, t)
}

// JoinTournament enters a team at the bottom tier
func (h *Handler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TeamID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	st, err := h.tournaments.JoinTournament(r.Context(), chi.URLParam(r, "tournamentID"), req.TeamID)
	if err != nil {
		h.writeServiceError(w, "join tournament", err)
		return
	}
	h.writeCreated(w, st)
}

// ListStandings returns the authoritative standings of a tournament
func (h *Handler) ListStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.tournaments.ListStandings(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "list standings", err)
		return
	}
	h.writeSuccess(w, standings)
}

// GetLadder returns the ranked ladder, from the cache when it is warm
func (h *Handler) GetLadder(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	limit := h.limit(r)

	if h.ladder != nil {
		entries, err := h.cachedLadder(r, tournamentID, limit)
		if err != nil {
			h.logger.Warn("ladder cache unavailable, reading store", "tournament_id", tournamentID, "error", err)
		} else if entries != nil {
			h.writeSuccess(w, entries)
			return
		}
	}

	entries, err := h.rankedStandings(r, tournamentID)
	if err != nil {
		h.writeServiceError(w, "get ladder", err)
		return
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	h.writeSuccess(w, entries)
}

// cachedLadder returns nil entries when the ladder is not cached
func (h *Handler) cachedLadder(r *http.Request, tournamentID string, limit int) ([]domain.LadderEntry, error) {
	exists, err := h.ladder.Exists(r.Context(), tournamentID)
	if err != nil || !exists {
		return nil, err
	}
	return h.ladder.GetLadder(r.Context(), tournamentID, limit)
}

// GetRank returns one standing's ladder position
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	standingID := chi.URLParam(r, "standingID")

	if h.ladder != nil {
		entry, err := h.ladder.GetRank(r.Context(), tournamentID, standingID)
		if err == nil {
			h.writeSuccess(w, entry)
			return
		}
		h.logger.Debug("rank not cached, reading store", "standing_id", standingID, "error", err)
	}

	entries, err := h.rankedStandings(r, tournamentID)
	if err != nil {
		h.writeServiceError(w, "get rank", err)
		return
	}
	for _, e := range entries {
		if e.Standing.ID == standingID {
			h.writeSuccess(w, e)
			return
		}
	}
	h.writeServiceError(w, "get rank", domain.Reject(domain.ReasonStandingNotFound, "standing %s", standingID))
}

// rankedStandings ranks the store's standings, which are ordered by tier
// then prestige
func (h *Handler) rankedStandings(r *http.Request, tournamentID string) ([]domain.LadderEntry, error) {
	standings, err := h.tournaments.ListStandings(r.Context(), tournamentID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LadderEntry, len(standings))
	for i, s := range standings {
		entries[i] = domain.LadderEntry{Rank: i + 1, Standing: s}
	}
	return entries, nil
}

// ListChallengesByStatus returns a tournament's challenges in ?status=
func (h *Handler) ListChallengesByStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.ChallengeStatus(r.URL.Query().Get("status"))

	challenges, err := h.engine.ListByStatus(r.Context(), chi.URLParam(r, "tournamentID"), status)
	if err != nil {
		h.writeServiceError(w, "list challenges", err)
		return
	}
	h.writeSuccess(w, challenges)
}

// GetPastDueChallenges returns unanswered challenges past their deadline
func (h *Handler) GetPastDueChallenges(w http.ResponseWriter, r *http.Request) {
	pastDue, err := h.engine.GetPastDueChallenges(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "get past due challenges", err)
		return
	}
	h.writeSuccess(w, pastDue)
}
