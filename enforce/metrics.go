package enforce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_enforcement_actions",
	Help: "Number of executed enforcement intents",
}, []string{"kind", "outcome"})

var notifyCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_notifications_delivered",
	Help: "Number of account notifications by delivery channel",
}, []string{"channel"})

var sweepReversedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_expiry_reversals",
	Help: "Number of timed actions reversed by the expiry reconciler",
})
