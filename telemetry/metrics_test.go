package telemetry

import (
	"testing"
	"time"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestMetricsObserveTick(t *testing.T) {
	m := newTestMetrics(t)
	a := testAgents(
		[]uint32{2, 4, 40},
		[]state.Kind{state.KindNutrient, state.KindNutrient, state.KindCellCore},
	)
	sample := PerfSample{
		TickDuration: time.Millisecond,
		Phases:       map[string]time.Duration{PhaseSeek: 500 * time.Microsecond},
	}

	m.ObserveTick(sample, a)
	m.ObserveTick(sample, a)

	if got := testutil.ToFloat64(m.Ticks); got != 2 {
		t.Errorf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Agents); got != 3 {
		t.Errorf("agents = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.MeanNeighbours); got != 46.0/3 {
		t.Errorf("mean neighbours = %v", got)
	}
	if got := testutil.ToFloat64(m.Kinds.WithLabelValues("nutrient")); got != 2 {
		t.Errorf("nutrients = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Kinds.WithLabelValues("cell_core")); got != 1 {
		t.Errorf("cell cores = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.PhaseDuration); got != 1 {
		t.Errorf("phase series = %d, want 1", got)
	}
}

func TestMetricsObserveCensusAndReconfigure(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveCensus(analysis.Census{Clusters: 5, SporeClusters: 2, CellClusters: 1}, time.Millisecond)
	m.ObserveReconfigure(true)
	m.ObserveReconfigure(false)
	m.ObserveReconfigure(false)

	for label, want := range map[string]float64{"all": 5, "spore": 2, "cell": 1} {
		if got := testutil.ToFloat64(m.Clusters.WithLabelValues(label)); got != want {
			t.Errorf("clusters[%s] = %v, want %v", label, got, want)
		}
	}
	if got := testutil.ToFloat64(m.Reconfigurations.WithLabelValues("true")); got != 1 {
		t.Errorf("respawning reconfigurations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Reconfigurations.WithLabelValues("false")); got != 2 {
		t.Errorf("in-place reconfigurations = %v, want 2", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTick(PerfSample{}, &state.Agents{})
	m.ObserveCensus(analysis.Census{}, 0)
	m.ObserveReconfigure(true)
}

func TestMetricsRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}
