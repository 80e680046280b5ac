package auction

import "time"

// Rules holds the tunable game mechanics. One set of rules applies to every
// game served by a deployment.
type Rules struct {
	// ClickCost is debited from the user's credit balance per accepted click.
	ClickCost int64 `yaml:"click_cost"`

	// FinalPhaseThreshold: a click landing with remaining time at or below
	// this moves the game into the final phase.
	FinalPhaseThreshold time.Duration `yaml:"final_phase_threshold"`

	// TimerReset is the countdown value every final-phase click resets to.
	// The anti-sniping rule: no click can be the true last click unless no
	// one answers within this window.
	TimerReset time.Duration `yaml:"timer_reset"`

	// CriticalThreshold is a display-only classification bound; it never
	// drives a state transition.
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

// DefaultRules returns the standard production mechanics.
func DefaultRules() Rules {
	return Rules{
		ClickCost:           1,
		FinalPhaseThreshold: 60 * time.Second,
		TimerReset:          90 * time.Second,
		CriticalThreshold:   10 * time.Second,
	}
}
