package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the application.
type Metrics struct {
	UsersRegistered    prometheus.Counter
	Logins             prometheus.Counter
	EventsCreated      prometheus.Counter
	RegistrationsTotal *prometheus.CounterVec
	CertificatesIssued prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "certo_users_registered_total",
			Help: "Total number of user accounts created",
		}),
		Logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "certo_logins_total",
			Help: "Total number of successful logins",
		}),
		EventsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "certo_events_created_total",
			Help: "Total number of events created",
		}),
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certo_registrations_total",
			Help: "Registration state transitions by outcome",
		}, []string{"outcome"}),
		CertificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "certo_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certo_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}

// Registration outcomes recorded on RegistrationsTotal.
const (
	OutcomeCreated     = "created"
	OutcomeReactivated = "reactivated"
	OutcomeDuplicate   = "duplicate"
	OutcomeCancelled   = "cancelled"
	OutcomeCompleted   = "completed"
)
