// Package telemetry exposes engine activity counters to Prometheus. All
// methods are nil-safe so the core can run without a registry wired in.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's Prometheus instruments.
type Metrics struct {
	TicksTotal          prometheus.Counter
	SnapshotsDropped    prometheus.Counter
	FaultsInjected      *prometheus.CounterVec
	LinesTripped        prometheus.Counter
	UnmetDemandTicks    prometheus.Counter
	ActiveSimulations   prometheus.Gauge
	SimulationsCreated  prometheus.Counter
	SimulationsSwept    prometheus.Counter
}

// New builds the instrument set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_ticks_total",
			Help: "Total simulation ticks advanced across all simulations",
		}),
		SnapshotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_snapshots_dropped_total",
			Help: "Snapshots overwritten in a metrics ring before being read",
		}),
		FaultsInjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltedge_faults_injected_total",
			Help: "Fault injections accepted, by kind",
		}, []string{"kind"}),
		LinesTripped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_lines_tripped_total",
			Help: "Line trips observed in snapshots",
		}),
		UnmetDemandTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_unmet_demand_ticks_total",
			Help: "Ticks that ended with an unmet-demand alert",
		}),
		ActiveSimulations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voltedge_active_simulations",
			Help: "Simulations currently owned by the orchestrator",
		}),
		SimulationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_simulations_created_total",
			Help: "Simulations created since process start",
		}),
		SimulationsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltedge_simulations_swept_total",
			Help: "Terminal simulations removed by the retention sweep",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TicksTotal, m.SnapshotsDropped, m.FaultsInjected, m.LinesTripped,
			m.UnmetDemandTicks, m.ActiveSimulations, m.SimulationsCreated, m.SimulationsSwept,
		)
	}
	return m
}

// ObserveTick records a completed tick and its alert outcomes.
func (m *Metrics) ObserveTick(unmetDemand bool, dropped bool) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	if unmetDemand {
		m.UnmetDemandTicks.Inc()
	}
	if dropped {
		m.SnapshotsDropped.Inc()
	}
}

// ObserveLineTrips records n newly tripped lines observed in a snapshot.
func (m *Metrics) ObserveLineTrips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinesTripped.Add(float64(n))
}

// ObserveFault records an accepted fault injection.
func (m *Metrics) ObserveFault(kind string) {
	if m == nil {
		return
	}
	m.FaultsInjected.WithLabelValues(kind).Inc()
}

// SetActive records the current simulation count.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSimulations.Set(float64(n))
}

// ObserveCreated records a simulation creation.
func (m *Metrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.SimulationsCreated.Inc()
}

// ObserveSwept records a retention-sweep removal.
func (m *Metrics) ObserveSwept() {
	if m == nil {
		return
	}
	m.SimulationsSwept.Inc()
}
