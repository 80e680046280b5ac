package mirror

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/auction"
	"github.com/pennyrush/pennyrush/go/internal/events"
	"github.com/pennyrush/pennyrush/go/internal/gateway"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/stretchr/testify/require"
)

func testRules() auction.Rules {
	return auction.Rules{
		ClickCost:           1,
		FinalPhaseThreshold: 60 * time.Second,
		TimerReset:          90 * time.Second,
		CriticalThreshold:   10 * time.Second,
	}
}

func newClick(userID uuid.UUID, username string) models.Click {
	return models.Click{
		ID:       uuid.New(),
		UserID:   userID,
		Username: username,
	}
}

func activeGame(endsAt time.Time) *models.Game {
	return &models.Game{
		ID:          uuid.New(),
		Status:      models.GameStatusActive,
		EndsAt:      endsAt,
		TotalClicks: 10,
	}
}

func TestApplyOptimisticPredictsClick(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(5*time.Minute)), 20)

	userID := uuid.New()
	click := newClick(userID, "alice")
	require.True(t, m.ApplyOptimistic(click, now))

	view, balance := m.View(now)
	require.Equal(t, 11, view.TotalClicks)
	require.Equal(t, userID, *view.LastClickUserID)
	require.Equal(t, "alice", view.LastClickUsername)
	require.Equal(t, int64(19), balance)
	// Outside the final phase threshold the countdown does not move.
	require.Equal(t, models.GameStatusActive, view.Status)
	require.Equal(t, now.Add(5*time.Minute), view.EndsAt)
}

func TestApplyOptimisticFinalPhaseReset(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(30*time.Second)), 20)

	require.True(t, m.ApplyOptimistic(newClick(uuid.New(), "bob"), now))

	view, _ := m.View(now)
	require.Equal(t, models.GameStatusFinalPhase, view.Status)
	require.Equal(t, now.Add(90*time.Second), view.EndsAt)
}

func TestApplyOptimisticRejectsClosedGame(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(time.Minute))
	game.Status = models.GameStatusEnded
	m.SyncAuthoritative(game, 20)

	require.False(t, m.ApplyOptimistic(newClick(uuid.New(), "bob"), now))

	view, balance := m.View(now)
	require.Equal(t, 10, view.TotalClicks)
	require.Equal(t, int64(20), balance)
}

func TestApplyOptimisticRejectsWhenBroke(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(time.Minute)), 0)

	require.False(t, m.ApplyOptimistic(newClick(uuid.New(), "bob"), now))
}

func TestRejectReversesExactly(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(5*time.Minute)), 20)

	click := newClick(uuid.New(), "alice")
	require.True(t, m.ApplyOptimistic(click, now))
	require.Len(t, m.PendingClicks(), 1)

	m.Reject(click.ID)

	view, balance := m.View(now)
	require.Equal(t, 10, view.TotalClicks)
	require.Nil(t, view.LastClickUserID)
	require.Equal(t, int64(20), balance)
	require.Empty(t, m.PendingClicks())
}

func TestConfirmAdoptsServerState(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(5*time.Minute)), 20)

	click := newClick(uuid.New(), "alice")
	require.True(t, m.ApplyOptimistic(click, now))

	server := activeGame(now.Add(5 * time.Minute))
	server.TotalClicks = 11
	m.Confirm(click.ID, server)

	view, balance := m.View(now)
	require.Equal(t, 11, view.TotalClicks)
	require.Equal(t, int64(19), balance)
	require.Empty(t, m.PendingClicks())
}

func TestSyncKeepsPendingReplayed(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(5*time.Minute)), 20)

	click := newClick(uuid.New(), "alice")
	require.True(t, m.ApplyOptimistic(click, now))

	// Another user's click arrives over the event stream before our response.
	server := activeGame(now.Add(5 * time.Minute))
	server.TotalClicks = 12
	m.SyncAuthoritative(server, 20)

	view, _ := m.View(now)
	require.Equal(t, 13, view.TotalClicks)
	require.Equal(t, "alice", view.LastClickUsername)
}

func gameEvent(t *testing.T, gameID uuid.UUID, eventType gateway.EventType, payload interface{}) *gateway.GameEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &gateway.GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID.String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func TestProcessEventFoldsClickAccepted(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(5 * time.Minute))
	m.SyncAuthoritative(game, 20)

	rival := uuid.New()
	endsAt := now.Add(90 * time.Second).UTC().Truncate(time.Millisecond)
	err := m.ProcessEvent(gameEvent(t, game.ID, gateway.EventTypeClickAccepted, events.ClickAcceptedPayload{
		ClickID:     uuid.New().String(),
		GameID:      game.ID.String(),
		UserID:      rival.String(),
		Username:    "rival",
		TotalClicks: 11,
		Status:      string(models.GameStatusFinalPhase),
		EndsAt:      endsAt,
		ClickedAt:   now,
	}))
	require.NoError(t, err)

	view, balance := m.View(now)
	require.Equal(t, 11, view.TotalClicks)
	require.Equal(t, models.GameStatusFinalPhase, view.Status)
	require.Equal(t, endsAt, view.EndsAt)
	require.Equal(t, rival, *view.LastClickUserID)
	require.Equal(t, "rival", view.LastClickUsername)
	require.Equal(t, int64(20), balance)
}

func TestProcessEventFinalPhaseEntered(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(time.Minute))
	m.SyncAuthoritative(game, 20)

	endsAt := now.Add(90 * time.Second).UTC().Truncate(time.Millisecond)
	err := m.ProcessEvent(gameEvent(t, game.ID, gateway.EventTypeFinalPhaseEntered, events.FinalPhaseEnteredPayload{
		GameID:    game.ID.String(),
		EnteredAt: now,
		EndsAt:    endsAt,
	}))
	require.NoError(t, err)

	view, _ := m.View(now)
	require.Equal(t, models.GameStatusFinalPhase, view.Status)
	require.Equal(t, endsAt, view.EndsAt)
}

func TestProcessEventGameEndedDropsPending(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(time.Minute))
	m.SyncAuthoritative(game, 20)

	require.True(t, m.ApplyOptimistic(newClick(uuid.New(), "alice"), now))

	winner := uuid.New()
	err := m.ProcessEvent(gameEvent(t, game.ID, gateway.EventTypeGameEnded, events.GameEndedPayload{
		GameID:         game.ID.String(),
		WinnerID:       winner.String(),
		WinnerUsername: "rival",
		TotalClicks:    42,
		EndedAt:        now,
	}))
	require.NoError(t, err)

	view, balance := m.View(now)
	require.Equal(t, models.GameStatusEnded, view.Status)
	require.Equal(t, winner, *view.WinnerID)
	require.Equal(t, 42, view.TotalClicks)
	// The speculative click can never be confirmed now; its debit is undone.
	require.Equal(t, int64(20), balance)
	require.Empty(t, m.PendingClicks())
}

func TestProcessEventGameEndedWithoutWinner(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(time.Minute))
	m.SyncAuthoritative(game, 20)

	err := m.ProcessEvent(gameEvent(t, game.ID, gateway.EventTypeGameEnded, events.GameEndedPayload{
		GameID:      game.ID.String(),
		TotalClicks: 0,
		EndedAt:     now,
	}))
	require.NoError(t, err)

	view, _ := m.View(now)
	require.Equal(t, models.GameStatusEnded, view.Status)
	require.Nil(t, view.WinnerID)
}

func TestProcessEventGameStarted(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	game := activeGame(now.Add(time.Minute))
	game.Status = models.GameStatusWaiting
	m.SyncAuthoritative(game, 20)

	endsAt := now.Add(10 * time.Minute).UTC().Truncate(time.Millisecond)
	err := m.ProcessEvent(gameEvent(t, game.ID, gateway.EventTypeGameStarted, events.GameStartedPayload{
		GameID:    game.ID.String(),
		ItemID:    game.ItemID.String(),
		StartedAt: now,
		EndsAt:    endsAt,
	}))
	require.NoError(t, err)

	view, _ := m.View(now)
	require.Equal(t, models.GameStatusActive, view.Status)
	require.Equal(t, endsAt, view.EndsAt)
}

func TestAbandonDiscardsSpeculativeState(t *testing.T) {
	now := time.Now()
	m := New(testRules())
	m.SyncAuthoritative(activeGame(now.Add(5*time.Minute)), 20)

	click := newClick(uuid.New(), "alice")
	require.True(t, m.ApplyOptimistic(click, now))

	m.Abandon(click.ID)

	_, balance := m.View(now)
	require.Equal(t, int64(20), balance)
	require.Empty(t, m.PendingClicks())
}
