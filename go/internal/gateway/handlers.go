package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/auction/repository"
	"github.com/pennyrush/pennyrush/go/internal/auctionerrors"
	"github.com/pennyrush/pennyrush/go/internal/clients"
	"github.com/pennyrush/pennyrush/go/internal/ledger"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AuctionAPI defines what the HTTP handlers need from the auction app.
type AuctionAPI interface {
	SubmitClick(ctx context.Context, gameID, userID uuid.UUID, requestID string) (*repository.ClickResult, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListOpenGames(ctx context.Context) ([]models.Game, error)
	ListClicks(ctx context.Context, gameID uuid.UUID, limit int32) ([]models.Click, error)
	CreateGame(ctx context.Context, itemID uuid.UUID, startsAt, endsAt time.Time) (*models.Game, error)
}

// ClockEngine classifies countdowns for responses.
type ClockEngine interface {
	Remaining(game *models.Game, now time.Time) time.Duration
	Phase(game *models.Game, now time.Time) models.DisplayPhase
}

// CatalogClient resolves prize details for game snapshots.
type CatalogClient interface {
	GetItem(ctx context.Context, itemID uuid.UUID) (*clients.Item, error)
}

// GameHandler serves the JSON API for games and clicks.
type GameHandler struct {
	app     AuctionAPI
	engine  ClockEngine
	catalog CatalogClient
}

// NewGameHandler creates a new game API handler
func NewGameHandler(app AuctionAPI, engine ClockEngine, catalog CatalogClient) *GameHandler {
	return &GameHandler{
		app:     app,
		engine:  engine,
		catalog: catalog,
	}
}

// GameResponse is a game snapshot enriched with countdown classification.
type GameResponse struct {
	models.Game
	TimeRemainingSec int                 `json:"time_remaining_sec"`
	DisplayPhase     models.DisplayPhase `json:"display_phase"`
	Item             *clients.Item       `json:"item,omitempty"`
}

// SubmitClickRequest is the body of POST /api/games/{id}/clicks.
type SubmitClickRequest struct {
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id,omitempty"`
}

// SubmitClickResponse is returned for accepted clicks.
type SubmitClickResponse struct {
	Accepted bool         `json:"accepted"`
	Game     GameResponse `json:"game"`
	Click    models.Click `json:"click"`
}

// RejectionResponse is returned for rejected clicks.
type RejectionResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// CreateGameRequest is the body of POST /api/games.
type CreateGameRequest struct {
	ItemID   string    `json:"item_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (h *GameHandler) gameResponse(ctx context.Context, game *models.Game, withItem bool) GameResponse {
	now := time.Now()
	resp := GameResponse{
		Game:             *game,
		TimeRemainingSec: int(h.engine.Remaining(game, now).Seconds()),
		DisplayPhase:     h.engine.Phase(game, now),
	}
	if withItem && h.catalog != nil {
		item, err := h.catalog.GetItem(ctx, game.ItemID)
		if err != nil {
			log.Warn().Err(err).Str("item_id", game.ItemID.String()).Msg("failed to resolve item")
		} else {
			resp.Item = item
		}
	}
	return resp
}

// HandleSubmitClick handles POST /api/games/{id}/clicks
func (h *GameHandler) HandleSubmitClick(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	var req SubmitClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	res, err := h.app.SubmitClick(r.Context(), gameID, userID, req.RequestID)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitClickResponse{
		Accepted: true,
		Game:     h.gameResponse(r.Context(), &res.Game, false),
		Click:    res.Click,
	})
}

// writeRejection maps admission errors onto HTTP statuses. Every rejection is
// returned synchronously; the client's mirror rolls back on any of them.
func (h *GameHandler) writeRejection(w http.ResponseWriter, err error) {
	var status int
	var reason string

	switch {
	case errors.Is(err, auctionerrors.ErrGameNotFound):
		status, reason = http.StatusNotFound, "game_not_found"
	case errors.Is(err, auctionerrors.ErrGameNotOpen):
		status, reason = http.StatusConflict, "game_not_open"
	case errors.Is(err, auctionerrors.ErrGameExpired):
		status, reason = http.StatusConflict, "game_expired"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status, reason = http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, auctionerrors.ErrDuplicateClick):
		status, reason = http.StatusConflict, "duplicate_click"
	case errors.Is(err, auctionerrors.ErrConflict):
		status, reason = http.StatusServiceUnavailable, "conflict"
	default:
		log.Error().Err(err).Msg("click submission failed")
		status, reason = http.StatusInternalServerError, "internal"
	}

	writeJSON(w, status, RejectionResponse{
		Accepted: false,
		Reason:   reason,
		Message:  err.Error(),
	})
}

// HandleGetGame handles GET /api/games/{id}
func (h *GameHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	game, err := h.app.GetGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrGameNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to get game")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.gameResponse(r.Context(), game, true))
}

// HandleListOpenGames handles GET /api/games
func (h *GameHandler) HandleListOpenGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.app.ListOpenGames(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list open games")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]GameResponse, 0, len(games))
	for i := range games {
		resp = append(resp, h.gameResponse(r.Context(), &games[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListClicks handles GET /api/games/{id}/clicks
func (h *GameHandler) HandleListClicks(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	clicks, err := h.app.ListClicks(r.Context(), gameID, int32(limit))
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to list clicks")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if clicks == nil {
		clicks = []models.Click{}
	}
	writeJSON(w, http.StatusOK, clicks)
}

// HandleCreateGame handles POST /api/games
func (h *GameHandler) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	game, err := h.app.CreateGame(r.Context(), itemID, req.StartsAt, req.EndsAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, h.gameResponse(r.Context(), game, false))
}

// RegisterRoutes registers the JSON API routes with an HTTP mux
func (h *GameHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", h.HandleCreateGame)
	mux.HandleFunc("GET /api/games", h.HandleListOpenGames)
	mux.HandleFunc("GET /api/games/{id}", h.HandleGetGame)
	mux.HandleFunc("GET /api/games/{id}/clicks", h.HandleListClicks)
	mux.HandleFunc("POST /api/games/{id}/clicks", h.HandleSubmitClick)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
