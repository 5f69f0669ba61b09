package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_sessions_created_total",
			Help: "Total number of payment sessions created",
		},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_session_transitions_total",
			Help: "Total number of committed payment session transitions by target status",
		},
		[]string{"to"},
	)

	EntitlementsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_entitlements_granted_total",
			Help: "Total number of entitlements granted",
		},
		[]string{"source"}, // paid, free
	)

	SessionResolution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paywall_session_resolution_seconds",
			Help:    "Time from session creation to terminal status",
			Buckets: []float64{1, 3, 5, 10, 30, 60, 300, 900, 1800},
		},
	)

	VerifyJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_verify_jobs_processed_total",
			Help: "Total number of simulated payment jobs handled by the worker",
		},
		[]string{"result"}, // ok, error
	)
)
