package netlink

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vrouter/nlengine/types"
)

// counters are the engine's lifecycle tallies. They back both Stats and the
// exported metrics.
type counters struct {
	sent                 atomic.Uint64
	received             atomic.Uint64
	completed            atomic.Uint64
	failed               atomic.Uint64
	expired              atomic.Uint64
	rejected             atomic.Uint64
	notifications        atomic.Uint64
	notificationsDropped atomic.Uint64
	unknownSeq           atomic.Uint64
	malformed            atomic.Uint64
}

type metrics struct {
	Sent                 prometheus.CounterFunc
	Received             prometheus.CounterFunc
	Completed            prometheus.CounterFunc
	Failed               prometheus.CounterFunc
	Expired              prometheus.CounterFunc
	Rejected             prometheus.CounterFunc
	Notifications        prometheus.CounterFunc
	NotificationsDropped prometheus.CounterFunc
	UnknownSeq           prometheus.CounterFunc
	Malformed            prometheus.CounterFunc

	Pending          prometheus.GaugeFunc
	BuffersAvailable prometheus.GaugeFunc

	Latency prometheus.Histogram
}

func counterFunc(name, help string, c *atomic.Uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "nlengine",
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(c.Load()) })
}

func newMetrics(e *Engine) *metrics {
	c := &e.counters
	return &metrics{
		Sent:                 counterFunc("requests_sent_total", "Requests written to the socket", &c.sent),
		Received:             counterFunc("frames_received_total", "Frames read from the socket", &c.received),
		Completed:            counterFunc("requests_completed_total", "Requests completed successfully", &c.completed),
		Failed:               counterFunc("requests_failed_total", "Requests failed with a protocol or transport error", &c.failed),
		Expired:              counterFunc("requests_expired_total", "Requests that got no reply in time", &c.expired),
		Rejected:             counterFunc("requests_rejected_total", "Requests rejected at admission", &c.rejected),
		Notifications:        counterFunc("notifications_total", "Notifications handed to the handler", &c.notifications),
		NotificationsDropped: counterFunc("notifications_dropped_total", "Notifications dropped by the throttling guards", &c.notificationsDropped),
		UnknownSeq:           counterFunc("unknown_seq_total", "Replies for sequence numbers not in flight", &c.unknownSeq),
		Malformed:            counterFunc("malformed_frames_total", "Frames skipped or abandoned as malformed", &c.malformed),

		Pending: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nlengine",
			Name:      "requests_pending",
			Help:      "Requests currently in flight",
		}, func() float64 { return float64(e.table.len()) }),
		BuffersAvailable: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nlengine",
			Name:      "buffers_available",
			Help:      "Buffers left in the pool",
		}, func() float64 { return float64(e.pool.Available()) }),

		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nlengine",
			Name:      "request_duration_seconds",
			Help:      "Time between admission and terminal transition",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer, logger *slog.Logger) error {
	v := reflect.ValueOf(*m)

	i := 0
	for i = 0; i < v.NumField(); i++ {
		vv, ok := v.Field(i).Interface().(prometheus.Collector)
		if !ok {
			return fmt.Errorf("error casting the interface for index %d", i)
		}
		if err := reg.Register(vv); err != nil {
			return fmt.Errorf("error registering index %d: %w", i, err)
		}
	}
	logger.Log(context.Background(), types.LevelTrace, "registered collectors", "i", i)

	return nil
}
