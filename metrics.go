package sic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the dispatcher does. A nil Registerer gives working
// but unregistered counters.
type Metrics struct {
	Lines    *prometheus.CounterVec
	Ignored  prometheus.Counter
	Failures *prometheus.CounterVec
	Drops    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sic_lines_total",
				Help: "Inbound lines dispatched, by command.",
			},
			[]string{"command"},
		),
		Ignored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sic_lines_ignored_total",
				Help: "Inbound lines that were empty or could not be parsed.",
			},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sic_dispatch_failures_total",
				Help: "Inbound lines whose handling failed, by reason.",
			},
			[]string{"reason"},
		),
		Drops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sic_store_drops_total",
				Help: "Entries dropped or evicted by capacity limits, by store.",
			},
			[]string{"store"},
		),
	}
}
