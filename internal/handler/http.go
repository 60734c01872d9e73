package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/score-ledger/internal/domain"
	"github.com/score-ledger/internal/service"
	"github.com/score-ledger/internal/websocket"
)

// Handler provides HTTP handlers for the score API
type Handler struct {
	service  *service.ScoreService
	hub      *websocket.Hub
	adminKey string
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.ScoreService, hub *websocket.Hub, adminKey string, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		hub:      hub,
		adminKey: adminKey,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// scoreView is the public shape of a score record; email never leaves the service
type scoreView struct {
	SessionID    string     `json:"session_id"`
	FinalBill    int64      `json:"final_bill"`
	TotalSavings int64      `json:"total_savings"`
	PlayedAt     time.Time  `json:"played_at"`
	Claimed      bool       `json:"claimed"`
	Nickname     *string    `json:"nickname,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

func toScoreView(r *domain.ScoreRecord) scoreView {
	return scoreView{
		SessionID:    r.SessionID,
		FinalBill:    r.FinalBill,
		TotalSavings: r.TotalSavings,
		PlayedAt:     r.PlayedAt,
		Claimed:      r.Claimed(),
		Nickname:     r.Nickname,
		ClaimedAt:    r.ClaimedAt,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scores", func(r chi.Router) {
			r.Post("/", h.SubmitScore)
			r.Get("/", h.AllScores)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetScore)
				r.Get("/highscore", h.CheckHighScore)
				r.Post("/claim", h.ClaimScore)
			})
		})

		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/admin/emails", h.AdminEmails)
	})

	return r
}

// corsMiddleware adds CORS headers; the game client is served from a
// different origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps a domain error to its HTTP status. Every failure
// mode keeps its identity so the client can render the right feedback.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrScoreNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidNickname), errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStorageUnavailable)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// SubmitScore handles score submission
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var submission domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if submission.SessionID == "" || submission.FinalBill < 0 || submission.TotalSavings < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	record, err := h.service.SubmitScore(r.Context(), submission)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data: map[string]string{
			"status":     "accepted",
			"session_id": record.SessionID,
		},
	})
}

// GetScore returns a single score record
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	record, err := h.service.GetScore(r.Context(), sessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, toScoreView(record))
}

// CheckHighScore reports a score's current rank and high-score status
func (h *Handler) CheckHighScore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.CheckHighScore(r.Context(), sessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// ClaimScore attaches an email and nickname to a submitted score
func (h *Handler) ClaimScore(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var claim domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if _, err := mail.ParseAddress(claim.Email); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.ClaimScore(r.Context(), sessionID, claim)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// GetLeaderboard returns the claimed top-N leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"leaderboard": entries,
		"ranked_by":   "total_savings",
	})
}

// AllScores returns every score ranked by savings, for high-score context
func (h *Handler) AllScores(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.AllScores(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, summaries)
}

// AdminEmails returns the collected emails, guarded by the admin key
func (h *Handler) AdminEmails(w http.ResponseWriter, r *http.Request) {
	if h.adminKey == "" || r.URL.Query().Get("admin_key") != h.adminKey {
		h.writeError(w, http.StatusForbidden, errors.New("access denied"))
		return
	}

	claims, err := h.service.ClaimedEmails(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"total_emails": len(claims),
		"emails":       claims,
	})
}
