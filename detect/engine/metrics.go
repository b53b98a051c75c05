package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_eval_duration_sec",
	Help: "Total duration of decision evaluations",
})

var evalCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_eval_decisions",
	Help: "Number of decisions produced",
}, []string{"verdict", "class"})

var checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_check_duration_sec",
	Help: "Duration of individual check executions",
}, []string{"check"})

var checkErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_check_errors",
	Help: "Number of check executions degraded to neutral results",
}, []string{"check"})

var autoEnforceCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_auto_enforcements",
	Help: "Number of decisions that triggered automatic enforcement",
})
