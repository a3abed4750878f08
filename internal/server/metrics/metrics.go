// Package metrics exposes prometheus counters for the development back end.
// Every Metrics value owns its registry so tests and multiple servers in one
// process do not collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	Registry *prometheus.Registry

	IdentityRequests    *prometheus.CounterVec
	NoncesIssued        prometheus.Counter
	SessionsEstablished *prometheus.CounterVec
	SessionsRevoked     prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		IdentityRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_identity_requests_total",
			Help: "Identity provider requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		NoncesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "atlas_sandbox_nonces_issued_total",
			Help: "Nonces handed out by the messaging sandbox",
		}),
		SessionsEstablished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_sandbox_session_requests_total",
			Help: "Session establishment attempts by outcome",
		}, []string{"outcome"}),
		SessionsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "atlas_sandbox_sessions_revoked_total",
			Help: "Sessions revoked by clients",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_http_requests_total",
			Help: "HTTP requests by server, route pattern and status code",
		}, []string{"server", "route", "code"}),
	}
}

// Identity records an identity provider operation.
func (m *Metrics) Identity(operation, outcome string) {
	m.IdentityRequests.WithLabelValues(operation, outcome).Inc()
}

// Session records a session establishment attempt.
func (m *Metrics) Session(outcome string) {
	m.SessionsEstablished.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
