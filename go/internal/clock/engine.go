package clock

import (
	"time"

	"github.com/pennyrush/pennyrush/go/internal/auction"
	"github.com/pennyrush/pennyrush/go/internal/models"
)

// Engine classifies a game's countdown for presentation. It is read-only:
// it never mutates game state, only reads the authoritative ends_at.
type Engine struct {
	rules auction.Rules
}

func NewEngine(rules auction.Rules) *Engine {
	return &Engine{rules: rules}
}

// Remaining returns the time left on the countdown at now, floored at zero.
func (e *Engine) Remaining(game *models.Game, now time.Time) time.Duration {
	if game.Status == models.GameStatusEnded {
		return 0
	}
	remaining := game.EndsAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Phase classifies the countdown for UI urgency cues. Display phases never
// drive state transitions; the authoritative status lives on the game row.
func (e *Engine) Phase(game *models.Game, now time.Time) models.DisplayPhase {
	switch game.Status {
	case models.GameStatusWaiting:
		return models.DisplayPhaseWaiting
	case models.GameStatusEnded:
		return models.DisplayPhaseEnded
	}

	remaining := e.Remaining(game, now)
	switch {
	case remaining <= 0:
		return models.DisplayPhaseEnded
	case remaining <= e.rules.CriticalThreshold:
		return models.DisplayPhaseCritical
	case remaining <= e.rules.FinalPhaseThreshold:
		return models.DisplayPhaseUrgent
	default:
		return models.DisplayPhaseNormal
	}
}
