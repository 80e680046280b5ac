package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/auction/repository"
	"github.com/pennyrush/pennyrush/go/internal/auctionerrors"
	"github.com/pennyrush/pennyrush/go/internal/clients"
	"github.com/pennyrush/pennyrush/go/internal/ledger"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeAuctionAPI struct {
	games    map[uuid.UUID]*models.Game
	clickErr error
}

func newFakeAuctionAPI() *fakeAuctionAPI {
	return &fakeAuctionAPI{games: make(map[uuid.UUID]*models.Game)}
}

func (f *fakeAuctionAPI) SubmitClick(ctx context.Context, gameID, userID uuid.UUID, requestID string) (*repository.ClickResult, error) {
	if f.clickErr != nil {
		return nil, f.clickErr
	}
	game, ok := f.games[gameID]
	if !ok {
		return nil, auctionerrors.ErrGameNotFound
	}
	game.TotalClicks++
	game.LastClickUserID = &userID
	return &repository.ClickResult{
		Game: *game,
		Click: models.Click{
			ID:        uuid.New(),
			GameID:    gameID,
			UserID:    userID,
			ClickedAt: time.Now(),
		},
	}, nil
}

func (f *fakeAuctionAPI) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	game, ok := f.games[id]
	if !ok {
		return nil, auctionerrors.ErrGameNotFound
	}
	return game, nil
}

func (f *fakeAuctionAPI) ListOpenGames(ctx context.Context) ([]models.Game, error) {
	var open []models.Game
	for _, g := range f.games {
		if g.Status.IsOpen() {
			open = append(open, *g)
		}
	}
	return open, nil
}

func (f *fakeAuctionAPI) ListClicks(ctx context.Context, gameID uuid.UUID, limit int32) ([]models.Click, error) {
	return nil, nil
}

func (f *fakeAuctionAPI) CreateGame(ctx context.Context, itemID uuid.UUID, startsAt, endsAt time.Time) (*models.Game, error) {
	game := &models.Game{
		ID:       uuid.New(),
		ItemID:   itemID,
		Status:   models.GameStatusActive,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}
	f.games[game.ID] = game
	return game, nil
}

type fakeEngine struct{}

func (fakeEngine) Remaining(game *models.Game, now time.Time) time.Duration {
	return game.EndsAt.Sub(now)
}

func (fakeEngine) Phase(game *models.Game, now time.Time) models.DisplayPhase {
	return models.DisplayPhaseNormal
}

type fakeCatalog struct {
	items map[uuid.UUID]*clients.Item
}

func (f *fakeCatalog) GetItem(ctx context.Context, itemID uuid.UUID) (*clients.Item, error) {
	if item, ok := f.items[itemID]; ok {
		return item, nil
	}
	return nil, errors.New("item not found")
}

func newTestMux(api *fakeAuctionAPI, catalog CatalogClient) *http.ServeMux {
	mux := http.NewServeMux()
	NewGameHandler(api, fakeEngine{}, catalog).RegisterRoutes(mux)
	return mux
}

func submitClickBody(t *testing.T, userID uuid.UUID) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(SubmitClickRequest{UserID: userID.String(), RequestID: "req-1"})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHandleSubmitClickAccepted(t *testing.T) {
	api := newFakeAuctionAPI()
	gameID := uuid.New()
	api.games[gameID] = &models.Game{ID: gameID, Status: models.GameStatusActive, EndsAt: time.Now().Add(time.Minute)}

	mux := newTestMux(api, &fakeCatalog{})
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/games/"+gameID.String()+"/clicks", submitClickBody(t, userID))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitClickResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Accepted)
	require.Equal(t, 1, resp.Game.TotalClicks)
	require.Equal(t, userID, resp.Click.UserID)
}

func TestHandleSubmitClickRejections(t *testing.T) {
	gameID := uuid.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"game not found", auctionerrors.ErrGameNotFound, http.StatusNotFound, "game_not_found"},
		{"game not open", auctionerrors.ErrGameNotOpen, http.StatusConflict, "game_not_open"},
		{"game expired", auctionerrors.ErrGameExpired, http.StatusConflict, "game_expired"},
		{"insufficient funds", ledger.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
		{"duplicate click", auctionerrors.ErrDuplicateClick, http.StatusConflict, "duplicate_click"},
		{"conflict retries exhausted", auctionerrors.ErrConflict, http.StatusServiceUnavailable, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAuctionAPI()
			api.clickErr = tt.err
			mux := newTestMux(api, &fakeCatalog{})

			req := httptest.NewRequest(http.MethodPost, "/api/games/"+gameID.String()+"/clicks", submitClickBody(t, uuid.New()))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp RejectionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.False(t, resp.Accepted)
			require.Equal(t, tt.wantReason, resp.Reason)
		})
	}
}

func TestHandleSubmitClickBadRequest(t *testing.T) {
	mux := newTestMux(newFakeAuctionAPI(), &fakeCatalog{})

	req := httptest.NewRequest(http.MethodPost, "/api/games/not-a-uuid/clicks", submitClickBody(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/games/"+uuid.New().String()+"/clicks", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetGame(t *testing.T) {
	api := newFakeAuctionAPI()
	itemID := uuid.New()
	gameID := uuid.New()
	api.games[gameID] = &models.Game{
		ID:     gameID,
		ItemID: itemID,
		Status: models.GameStatusActive,
		EndsAt: time.Now().Add(30 * time.Second),
	}

	catalog := &fakeCatalog{items: map[uuid.UUID]*clients.Item{
		itemID: {ID: itemID, Name: "Mechanical Keyboard", Value: 14900},
	}}
	mux := newTestMux(api, catalog)

	req := httptest.NewRequest(http.MethodGet, "/api/games/"+gameID.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp GameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, gameID, resp.ID)
	require.Equal(t, models.DisplayPhaseNormal, resp.DisplayPhase)
	require.NotNil(t, resp.Item)
	require.Equal(t, "Mechanical Keyboard", resp.Item.Name)
}

func TestHandleGetGameNotFound(t *testing.T) {
	mux := newTestMux(newFakeAuctionAPI(), &fakeCatalog{})

	req := httptest.NewRequest(http.MethodGet, "/api/games/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateGame(t *testing.T) {
	api := newFakeAuctionAPI()
	mux := newTestMux(api, &fakeCatalog{})

	body, err := json.Marshal(CreateGameRequest{
		ItemID:   uuid.New().String(),
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/games", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp GameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, api.games, 1)
	require.Equal(t, models.GameStatusActive, resp.Status)
}

func TestHandleListOpenGames(t *testing.T) {
	api := newFakeAuctionAPI()
	open := uuid.New()
	api.games[open] = &models.Game{ID: open, Status: models.GameStatusFinalPhase, EndsAt: time.Now().Add(time.Minute)}
	ended := uuid.New()
	api.games[ended] = &models.Game{ID: ended, Status: models.GameStatusEnded}

	mux := newTestMux(api, &fakeCatalog{})

	req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []GameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, open, resp[0].ID)
}
