package events

import (
	"time"
)

// Event payload types shared between the auction, outbox and gateway packages

// Event type names as they appear in the outbox table and on the bus.
const (
	TypeGameStarted       = "GameStarted"
	TypeClickAccepted     = "ClickAccepted"
	TypeFinalPhaseEntered = "FinalPhaseEntered"
	TypeGameEnded         = "GameEnded"
)

// GameStartedPayload is the payload for a GameStarted event
type GameStartedPayload struct {
	GameID    string    `json:"game_id"`
	ItemID    string    `json:"item_id"`
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// ClickAcceptedPayload is the payload for a ClickAccepted event
type ClickAcceptedPayload struct {
	ClickID     string    `json:"click_id"`
	GameID      string    `json:"game_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	TotalClicks int       `json:"total_clicks"`
	Status      string    `json:"status"`
	EndsAt      time.Time `json:"ends_at"`
	ClickedAt   time.Time `json:"clicked_at"`
}

// FinalPhaseEnteredPayload is the payload for a FinalPhaseEntered event
type FinalPhaseEnteredPayload struct {
	GameID    string    `json:"game_id"`
	EnteredAt time.Time `json:"entered_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// GameEndedPayload is the payload for a GameEnded event. WinnerID is empty
// when the game expired without a single click.
type GameEndedPayload struct {
	GameID         string    `json:"game_id"`
	WinnerID       string    `json:"winner_id,omitempty"`
	WinnerUsername string    `json:"winner_username,omitempty"`
	TotalClicks    int       `json:"total_clicks"`
	EndedAt        time.Time `json:"ended_at"`
}
