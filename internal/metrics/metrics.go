package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	NoncesIssued      *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	IdentitiesCreated prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NoncesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siwegate_nonces_issued_total",
			Help: "Nonces issued, by flow.",
		}, []string{"flow"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siwegate_verifications_total",
			Help: "Signed-message verifications, by flow and outcome.",
		}, []string{"flow", "outcome"}),
		IdentitiesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "siwegate_identities_created_total",
			Help: "Users created on first sign-in.",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siwegate_http_request_duration_seconds",
			Help:    "HTTP request latency, by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) NonceIssued(flow string) {
	if m == nil {
		return
	}
	m.NoncesIssued.WithLabelValues(flow).Inc()
}

func (m *Metrics) Verified(flow string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Verifications.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) IdentityCreated() {
	if m == nil {
		return
	}
	m.IdentitiesCreated.Inc()
}

func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}
