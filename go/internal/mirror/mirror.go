package mirror

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/auction"
	"github.com/pennyrush/pennyrush/go/internal/events"
	"github.com/pennyrush/pennyrush/go/internal/gateway"
	"github.com/pennyrush/pennyrush/go/internal/models"
)

// Mirror is a client-local copy of one game plus the viewer's credit display.
// Clicks are applied speculatively for instant feedback and reconciled against
// the server's response: confirmed clicks collapse into the authoritative
// state, rejected clicks are reversed exactly. The mirror is presentation
// state only; winner determination always comes from the server.
type Mirror struct {
	mu sync.Mutex

	rules auction.Rules

	// Last authoritative snapshot from the server.
	confirmed models.Game
	balance   int64

	// Speculative clicks not yet confirmed or rejected, in submission order.
	pending []pendingClick
}

type pendingClick struct {
	click models.Click
	cost  int64
}

func New(rules auction.Rules) *Mirror {
	return &Mirror{rules: rules}
}

// SyncAuthoritative replaces the confirmed state with a server snapshot. Any
// pending clicks stay queued and are replayed on top of the new snapshot in
// View; the server echoing a pending click back will drop it via Confirm.
func (m *Mirror) SyncAuthoritative(game *models.Game, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmed = *game
	m.balance = balance
}

// ApplyOptimistic records a speculative click and immediately debits the
// local credit display. Returns false without mutating anything when the
// mirrored game is not open or the displayed balance cannot cover the cost,
// mirroring the admission checks the server will run.
func (m *Mirror) ApplyOptimistic(click models.Click, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	game := m.project(m.confirmed, now)
	if !game.Status.IsOpen() || now.After(game.EndsAt) {
		return false
	}
	if m.displayBalance() < m.rules.ClickCost {
		return false
	}

	m.pending = append(m.pending, pendingClick{click: click, cost: m.rules.ClickCost})
	return true
}

// Confirm drops the speculative entry for clickID and adopts the server's
// snapshot as the new confirmed state. The speculative debit becomes real: it
// is folded into the stored balance rather than reversed.
func (m *Mirror) Confirm(clickID uuid.UUID, game *models.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.remove(clickID); ok {
		m.balance -= p.cost
	}
	m.confirmed = *game
}

// Reject reverses exactly the speculative effects of clickID: the click
// disappears from the rendered list and the credit display is restored. The
// confirmed game state is untouched.
func (m *Mirror) Reject(clickID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(clickID)
}

// Abandon discards a speculative click that will never get a server response,
// e.g. the user navigated away mid-request. Local effect is identical to a
// rejection; it never un-sends the request.
func (m *Mirror) Abandon(clickID uuid.UUID) {
	m.Reject(clickID)
}

// View returns the game as the client should render it right now: the
// confirmed snapshot with all pending clicks replayed on top, and the credit
// display net of speculative debits.
func (m *Mirror) View(now time.Time) (models.Game, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.project(m.confirmed, now), m.displayBalance()
}

// ProcessEvent folds an incoming WebSocket event into the confirmed state, so
// a client stays in sync between polls. Pending clicks stay queued; the
// server's reply to our own request drops them via Confirm or Reject.
func (m *Mirror) ProcessEvent(event *gateway.GameEvent) error {
	payload, err := gateway.ParseEventPayload(event)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch p := payload.(type) {
	case events.GameStartedPayload:
		m.confirmed.Status = models.GameStatusActive
		m.confirmed.StartsAt = p.StartedAt
		m.confirmed.EndsAt = p.EndsAt

	case events.ClickAcceptedPayload:
		m.confirmed.TotalClicks = p.TotalClicks
		m.confirmed.Status = models.GameStatus(p.Status)
		m.confirmed.EndsAt = p.EndsAt
		if userID, err := uuid.Parse(p.UserID); err == nil {
			m.confirmed.LastClickUserID = &userID
		}
		m.confirmed.LastClickUsername = p.Username

	case events.FinalPhaseEnteredPayload:
		m.confirmed.Status = models.GameStatusFinalPhase
		m.confirmed.EndsAt = p.EndsAt

	case events.GameEndedPayload:
		m.confirmed.Status = models.GameStatusEnded
		m.confirmed.TotalClicks = p.TotalClicks
		m.confirmed.LastClickUsername = p.WinnerUsername
		if p.WinnerID != "" {
			if winnerID, err := uuid.Parse(p.WinnerID); err == nil {
				m.confirmed.WinnerID = &winnerID
			}
		}
		// The game is over; no speculative click can be confirmed anymore,
		// so restore the credit display now rather than waiting for the
		// rejection response.
		m.pending = nil
	}
	return nil
}

// PendingClicks returns the speculative clicks awaiting reconciliation.
func (m *Mirror) PendingClicks() []models.Click {
	m.mu.Lock()
	defer m.mu.Unlock()

	clicks := make([]models.Click, 0, len(m.pending))
	for _, p := range m.pending {
		clicks = append(clicks, p.click)
	}
	return clicks
}

// project replays pending clicks onto a snapshot using the same final-phase
// rule the server applies: a click inside the threshold resets the countdown.
func (m *Mirror) project(game models.Game, now time.Time) models.Game {
	for _, p := range m.pending {
		if !game.Status.IsOpen() {
			break
		}
		game.TotalClicks++
		userID := p.click.UserID
		game.LastClickUserID = &userID
		game.LastClickUsername = p.click.Username

		if game.Status == models.GameStatusFinalPhase || game.EndsAt.Sub(now) <= m.rules.FinalPhaseThreshold {
			game.Status = models.GameStatusFinalPhase
			game.EndsAt = now.Add(m.rules.TimerReset)
		}
	}
	return game
}

func (m *Mirror) displayBalance() int64 {
	b := m.balance
	for _, p := range m.pending {
		b -= p.cost
	}
	return b
}

func (m *Mirror) remove(clickID uuid.UUID) (pendingClick, bool) {
	for i, p := range m.pending {
		if p.click.ID == clickID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return p, true
		}
	}
	return pendingClick{}, false
}
