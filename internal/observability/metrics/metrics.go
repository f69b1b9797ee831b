package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	KeyVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_key_verifications_total",
			Help: "Key verification attempts by game and outcome.",
		},
		[]string{"game", "outcome"},
	)

	KeysIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_keys_issued_total",
			Help: "Keys minted by game.",
		},
		[]string{"game"},
	)

	CreditsAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keygate_credits_added_total",
			Help: "Credits granted to resellers by the administrator.",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_registrations_total",
			Help: "Reseller registration attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// MustRegister registers all collectors with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		KeyVerificationsTotal,
		KeysIssuedTotal,
		CreditsAddedTotal,
		RegistrationsTotal,
	)
}
