package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance is a user's spendable click budget. Balance never goes
// negative; debits are conditional on sufficient funds.
type CreditBalance struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
