package telemetry

import (
	"time"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "emergence"

// Metrics holds the Prometheus instruments of one simulation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// TickDuration measures wall time per completed tick.
	TickDuration prometheus.Histogram

	// PhaseDuration measures wall time per step phase.
	// Labels: phase
	PhaseDuration *prometheus.HistogramVec

	// Ticks counts completed ticks.
	Ticks prometheus.Counter

	// Agents tracks the population size.
	Agents prometheus.Gauge

	// Kinds tracks agents per density kind.
	// Labels: kind
	Kinds *prometheus.GaugeVec

	// MeanNeighbours tracks the mean tally n.
	MeanNeighbours prometheus.Gauge

	// Clusters tracks the latest census.
	// Labels: type (all, spore, cell)
	Clusters *prometheus.GaugeVec

	// ClusterDuration measures clustering passes.
	ClusterDuration prometheus.Histogram

	// Reconfigurations counts parameter changes.
	// Labels: respawned (true, false)
	Reconfigurations *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time per simulation tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time per simulation step phase",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"phase"}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Completed simulation ticks",
		}),
		Agents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "agents",
			Help:      "Number of agents",
		}),
		Kinds: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "agents_by_kind",
			Help:      "Number of agents per density kind",
		}, []string{"kind"}),
		MeanNeighbours: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mean_neighbours",
			Help:      "Mean number of neighbours within scope",
		}),
		Clusters: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "clusters",
			Help:      "Clusters found by the latest clustering pass",
		}, []string{"type"}),
		ClusterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cluster_duration_seconds",
			Help:      "Wall time per clustering pass",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Reconfigurations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconfigurations_total",
			Help:      "Parameter changes applied",
		}, []string{"respawned"}),
	}
}

// ObserveTick records a completed tick.
func (m *Metrics) ObserveTick(sample PerfSample, a *state.Agents) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(sample.TickDuration.Seconds())
	for phase, d := range sample.Phases {
		m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}

	n := a.Len()
	m.Agents.Set(float64(n))
	counts := analysis.CountKinds(a.Kind)
	for k, c := range counts {
		m.Kinds.WithLabelValues(state.Kind(k).String()).Set(float64(c))
	}
	var sum uint64
	for _, v := range a.N {
		sum += uint64(v)
	}
	if n > 0 {
		m.MeanNeighbours.Set(float64(sum) / float64(n))
	} else {
		m.MeanNeighbours.Set(0)
	}
}

// ObserveCensus records a clustering pass.
func (m *Metrics) ObserveCensus(c analysis.Census, d time.Duration) {
	if m == nil {
		return
	}
	m.ClusterDuration.Observe(d.Seconds())
	m.Clusters.WithLabelValues("all").Set(float64(c.Clusters))
	m.Clusters.WithLabelValues("spore").Set(float64(c.SporeClusters))
	m.Clusters.WithLabelValues("cell").Set(float64(c.CellClusters))
}

// ObserveReconfigure records a parameter change.
func (m *Metrics) ObserveReconfigure(respawned bool) {
	if m == nil {
		return
	}
	label := "false"
	if respawned {
		label = "true"
	}
	m.Reconfigurations.WithLabelValues(label).Inc()
}
