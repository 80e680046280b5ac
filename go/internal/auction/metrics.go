package auction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clicksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pennyrush_clicks_accepted_total",
		Help: "Number of clicks accepted and applied to a game.",
	})

	clicksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pennyrush_clicks_rejected_total",
		Help: "Number of clicks rejected, by reason.",
	}, []string{"reason"})

	gamesEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pennyrush_games_ended_total",
		Help: "Number of games transitioned to ended.",
	})

	finalPhaseEntered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pennyrush_final_phase_entered_total",
		Help: "Number of games that entered the final phase.",
	})
)
