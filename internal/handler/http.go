package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/service"
	"github.com/tier-ladder/internal/websocket"
)

// actorHeader identifies the user performing a roster change
const actorHeader = "X-User-ID"

// LadderReader serves ranked ladders from the cache
type LadderReader interface {
	GetLadder(ctx context.Context, tournamentID string, limit int) ([]domain.LadderEntry, error)
	GetRank(ctx context.Context, tournamentID, standingID string) (*domain.LadderEntry, error)
	Exists(ctx context.Context, tournamentID string) (bool, error)
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the ladder API
type Handler struct {
	teams       *service.TeamService
	tournaments *service.TournamentService
	engine      *service.ChallengeEngine
	hub         *websocket.Hub
	ladder      LadderReader
	checks      map[string]ReadinessCheck
	config      *config.LadderConfig
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	teams *service.TeamService,
	tournaments *service.TournamentService,
	engine *service.ChallengeEngine,
	hub *websocket.Hub,
	cfg *config.LadderConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		teams:       teams,
		tournaments: tournaments,
		engine:      engine,
		hub:         hub,
		checks:      make(map[string]ReadinessCheck),
		config:      cfg,
		logger:      logger,
	}
}

// SetLadderReader serves ladder reads from the cache instead of the store
func (h *Handler) SetLadderReader(l LadderReader) {
	h.ladder = l
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/teams", func(r chi.Router) {
			r.Post("/", h.RegisterTeam)
			r.Get("/by-slug/{slug}", h.GetTeamBySlug)

			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", h.GetTeam)
				r.Get("/members", h.GetTeamMembers)
				r.Post("/members", h.AddMember)
				r.Delete("/members/{userID}", h.RemoveMember)
				r.Put("/members/{userID}/role", h.UpdateMemberRole)
				r.Post("/captain", h.TransferCaptain)
				r.Post("/retire", h.RetireTeam)
				r.Get("/challenges", h.ListPendingForTeam)
			})
		})

		r.Route("/tournaments", func(r chi.Router) {
			r.Post("/", h.CreateTournament)
			r.Get("/", h.ListTournaments)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", h.GetTournament)
				r.Put("/rules", h.UpdateRules)
				r.Post("/status", h.AdvanceStatus)
				r.Post("/join", h.JoinTournament)
				r.Get("/standings", h.ListStandings)
				r.Get("/ladder", h.GetLadder)
				r.Get("/ladder/{standingID}", h.GetRank)
				r.Get("/challenges", h.ListChallengesByStatus)
				r.Get("/past-due", h.GetPastDueChallenges)
			})
		})

		r.Route("/challenges", func(r chi.Router) {
			r.Post("/", h.CreateChallenge)

			r.Route("/{challengeID}", func(r chi.Router) {
				r.Get("/", h.GetChallenge)
				r.Post("/dates", h.ProposeDates)
				r.Post("/schedule", h.ScheduleChallenge)
				r.Post("/result", h.SubmitResult)
				r.Post("/forfeit", h.ForfeitChallenge)
				r.Post("/cancel", h.CancelChallenge)
			})
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, "+actorHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeCreated(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// writeServiceError maps a service error onto a status code. Rejections
// carry their reason so clients can branch on it.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		h.writeJSON(w, rejectionStatus(rej.Reason), APIResponse{
			Success:     false,
			Error:       rej.Error(),
			Reason:      string(rej.Reason),
			ChallengeID: rej.ChallengeID,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsTransient(err):
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable)
	default:
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func rejectionStatus(reason domain.Reason) int {
	switch reason {
	case domain.ReasonTournamentNotFound, domain.ReasonStandingNotFound,
		domain.ReasonChallengeNotFound, domain.ReasonTeamNotFound:
		return http.StatusNotFound
	case domain.ReasonNotCaptain:
		return http.StatusForbidden
	case domain.ReasonDuplicateChallenge, domain.ReasonDuplicateTeamName, domain.ReasonAlreadyJoined:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// decode reads a JSON body, writing 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// actor returns the calling user, writing 400 when the header is missing
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(actorHeader)
	if id == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return "", false
	}
	return id, true
}

// limit parses the limit query parameter within the configured bounds
func (h *Handler) limit(r *http.Request) int {
	limit := h.config.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if h.config.MaxLimit > 0 && limit > h.config.MaxLimit {
		limit = h.config.MaxLimit
	}
	return limit
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	connections := 0
	if h.hub != nil {
		connections = h.hub.TotalConnections()
	}
	h.writeSuccess(w, map[string]any{"total_connections": connections})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.Warn("readiness check failed", "failed", failed)
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   domain.ErrUnavailable.Error(),
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
