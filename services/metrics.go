package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the platform's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FragmentsCreated prometheus.Counter
	FragmentSets     prometheus.Counter
	AuthDecisions    *prometheus.CounterVec // label: outcome (accepted, rejected)
	Missions         *prometheus.CounterVec // label: status (created, completed, failed, expired)
	Reconstructions  *prometheus.CounterVec // label: outcome (ok, insufficient, unrecoverable, integrity)
}

// NewMetrics creates and registers the platform metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		FragmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mwrasp_fragments_created_total",
			Help: "Fragments created across all sets.",
		}),
		FragmentSets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mwrasp_fragment_sets_total",
			Help: "Fragment sets created.",
		}),
		AuthDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwrasp_auth_decisions_total",
			Help: "Authentication decisions by outcome.",
		}, []string{"outcome"}),
		Missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwrasp_missions_total",
			Help: "Mission lifecycle transitions observed by the platform.",
		}, []string{"status"}),
		Reconstructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwrasp_reconstructions_total",
			Help: "Reconstruction attempts by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.FragmentsCreated,
		m.FragmentSets,
		m.AuthDecisions,
		m.Missions,
		m.Reconstructions,
	)
	return m
}

// Handler returns the scrape handler for the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
