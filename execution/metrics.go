package execution

import (
	"time"

	"github.com/dsbsim/dsb/model"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the execution manager's Prometheus instrumentation
// (SPEC_FULL.md §4.5 domain-stack addition), grounded on the gauge/counter
// pattern C360Studio-semstreams/natsclient/jetstream_metrics.go uses for
// connection and consumer state.
type metrics struct {
	slavesByState   *prometheus.GaugeVec
	barriersTotal   *prometheus.CounterVec
	barrierDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		slavesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dsb",
			Subsystem: "execution",
			Name:      "slaves",
			Help:      "Number of slaves currently in each lifecycle state.",
		}, []string{"state"}),
		barriersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsb",
			Subsystem: "execution",
			Name:      "barriers_completed_total",
			Help:      "Completed barriers, by the logical transition they concluded.",
		}, []string{"transition"}),
		barrierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsb",
			Subsystem: "execution",
			Name:      "barrier_duration_seconds",
			Help:      "Wall-clock duration of a barrier, by command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
	}
	reg.MustRegister(m.slavesByState, m.barriersTotal, m.barrierDuration)
	return m
}

func (m *metrics) setSlaveCounts(slaves map[model.SlaveID]*slaveRecord) {
	counts := map[model.SlaveLifecycleState]int{}
	for _, s := range slaves {
		counts[s.lifecycle]++
	}
	for _, state := range []model.SlaveLifecycleState{
		model.SlaveNotConnected, model.SlaveConnected, model.SlaveReady,
		model.SlaveStepping, model.SlaveStepOk, model.SlaveStepFailed,
		model.SlaveTerminated, model.SlaveDisconnected,
	} {
		m.slavesByState.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
}

func (m *metrics) observeBarrier(transition string, started time.Time) {
	m.barriersTotal.WithLabelValues(transition).Inc()
	m.barrierDuration.WithLabelValues(transition).Observe(time.Since(started).Seconds())
}
