package models

import (
	"time"

	"github.com/google/uuid"
)

// Click represents a single accepted bid on a game. Clicks are created
// atomically with the game mutation they cause and are never updated.
type Click struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	ClickedAt time.Time `json:"clicked_at"`
}
