package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalhook",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Open ledger stream subscriptions",
		},
	)

	StreamDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalhook",
			Subsystem: "stream",
			Name:      "dropped_frames_total",
			Help:      "Ledger updates dropped because a subscriber was too slow",
		},
	)
)

// Register adds the stream collectors to reg once. A nil reg uses the default registerer.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(StreamSubscribers, StreamDropped)
	})
}
