// Package metrics exposes the core's read-only counter set (spec §6.4) as
// a small prometheus.Registry the application may scrape or snapshot; the
// core never serves an HTTP exposition endpoint itself, per §1's
// "CLI, configuration loading, metrics display" non-goal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Recorder owns the counters/gauges the connection manager and HTTP/2
// engine update as they work.
type Recorder struct {
	Registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	RequestsTotal       prometheus.Counter
	BytesIn             prometheus.Counter
	BytesOut            prometheus.Counter
	H2StreamsActive     prometheus.Gauge
}

// New creates a Recorder with a private registry (never the global default
// registry, so multiple Server instances in one process do not collide).
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		Registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connections_accepted_total",
			Help: "Total TCP connections accepted by the core.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Connections currently open.",
		}),
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total requests dispatched to the handler.",
		}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytes_in_total",
			Help: "Total bytes read from the network.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytes_out_total",
			Help: "Total bytes written to the network.",
		}),
		H2StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "h2_streams_active",
			Help: "HTTP/2 streams currently open across all connections.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.RequestsTotal,
		r.BytesIn,
		r.BytesOut,
		r.H2StreamsActive,
	)
	return r
}

// Snapshot is a point-in-time read of every counter, for tests and for
// embedders who want a plain struct instead of walking the registry.
type Snapshot struct {
	ConnectionsAccepted uint64
	ConnectionsActive   float64
	RequestsTotal       uint64
	BytesIn             uint64
	BytesOut            uint64
	H2StreamsActive     float64
}

// Snapshot reads every counter/gauge into a plain struct.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: counterValue(r.ConnectionsAccepted),
		ConnectionsActive:   gaugeValue(r.ConnectionsActive),
		RequestsTotal:       counterValue(r.RequestsTotal),
		BytesIn:             counterValue(r.BytesIn),
		BytesOut:            counterValue(r.BytesOut),
		H2StreamsActive:     gaugeValue(r.H2StreamsActive),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
