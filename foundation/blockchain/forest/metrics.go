package forest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the collectors the forest reports through. A nil value
// records nothing.
type metrics struct {
	accepted prometheus.Counter
	rejected *prometheus.CounterVec
	frontier prometheus.Gauge
	nodes    prometheus.Gauge
	height   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockforest",
			Subsystem: "forest",
			Name:      "blocks_accepted_total",
			Help:      "Number of blocks added to the forest.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockforest",
			Subsystem: "forest",
			Name:      "blocks_rejected_total",
			Help:      "Number of blocks rejected by the forest, by reason.",
		}, []string{"reason"}),
		frontier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockforest",
			Subsystem: "forest",
			Name:      "frontier_size",
			Help:      "Number of leaves that can still be extended.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockforest",
			Subsystem: "forest",
			Name:      "live_nodes",
			Help:      "Number of nodes held after pruning.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockforest",
			Subsystem: "forest",
			Name:      "max_height",
			Help:      "Height of the tallest branch.",
		}),
	}

	for _, c := range []prometheus.Collector{m.accepted, m.rejected, m.frontier, m.nodes, m.height} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func (m *metrics) accept() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *metrics) reject(err error) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(Reason(err)).Inc()
}

// observe must be called with a lock held.
func (m *metrics) observe(f *Forest) {
	if m == nil {
		return
	}
	m.frontier.Set(float64(len(f.frontier)))
	m.nodes.Set(float64(len(f.nodes)))
	m.height.Set(float64(f.maxHeight))
}
