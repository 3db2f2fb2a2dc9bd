// Package metrics exposes Prometheus counters for the auth core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the auth core reports to.
type Recorder interface {
	RecordLoginOutcome(state string)
	RecordSessionApply(source string)
	RecordRoleLookupFailure()
}

// Collector records into Prometheus counters.
type Collector struct {
	loginOutcomes      *prometheus.CounterVec
	sessionApplies     *prometheus.CounterVec
	roleLookupFailures prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_login_outcomes_total",
			Help: "Login attempts by final state",
		}, []string{"state"}),
		sessionApplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_session_applies_total",
			Help: "Sessions applied to the store by source",
		}, []string{"source"}),
		roleLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusauth_role_lookup_failures_total",
			Help: "Admin role lookups that failed and were treated as non-admin",
		}),
	}

	reg.MustRegister(
		c.loginOutcomes,
		c.sessionApplies,
		c.roleLookupFailures,
	)
	return c
}

func (c *Collector) RecordLoginOutcome(state string) {
	c.loginOutcomes.WithLabelValues(state).Inc()
}

func (c *Collector) RecordSessionApply(source string) {
	c.sessionApplies.WithLabelValues(source).Inc()
}

func (c *Collector) RecordRoleLookupFailure() {
	c.roleLookupFailures.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordLoginOutcome(string) {}
func (Nop) RecordSessionApply(string) {}
func (Nop) RecordRoleLookupFailure()  {}
