package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle status of a game.
type GameStatus string

const (
	GameStatusWaiting    GameStatus = "WAITING"
	GameStatusActive     GameStatus = "ACTIVE"
	GameStatusFinalPhase GameStatus = "FINAL_PHASE"
	GameStatusEnded      GameStatus = "ENDED"
)

// IsOpen reports whether the game currently accepts clicks.
func (s GameStatus) IsOpen() bool {
	return s == GameStatusActive || s == GameStatusFinalPhase
}

// DisplayPhase classifies remaining time for UI urgency cues. It is derived
// from the countdown and never drives a state transition.
type DisplayPhase string

const (
	DisplayPhaseWaiting  DisplayPhase = "WAITING"
	DisplayPhaseNormal   DisplayPhase = "NORMAL"
	DisplayPhaseUrgent   DisplayPhase = "URGENT"
	DisplayPhaseCritical DisplayPhase = "CRITICAL"
	DisplayPhaseEnded    DisplayPhase = "ENDED"
)

// Game represents one last-click-wins auction instance.
//
// EndsAt is the authoritative expiry; it only ever moves forward, except
// through the final-phase reset. WinnerID stays nil until the game ends and
// is immutable afterwards (nil at the end means nobody clicked).
type Game struct {
	ID                uuid.UUID  `json:"id"`
	ItemID            uuid.UUID  `json:"item_id"`
	Status            GameStatus `json:"status"`
	StartsAt          time.Time  `json:"starts_at"`
	EndsAt            time.Time  `json:"ends_at"`
	TotalClicks       int        `json:"total_clicks"`
	LastClickUserID   *uuid.UUID `json:"last_click_user_id,omitempty"`
	LastClickUsername string     `json:"last_click_username,omitempty"`
	WinnerID          *uuid.UUID `json:"winner_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
