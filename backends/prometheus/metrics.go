package prometheus

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vrouter/nlengine/types"
)

// metrics describes the exporter itself. Engines register their own
// collectors on the same registry.
type metrics struct {
	BuildInfo *prometheus.GaugeVec
	Up        prometheus.Gauge
	Scrapes   prometheus.Counter
	Process   prometheus.Collector
}

func newMetrics() *metrics {
	return &metrics{
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nlengine",
			Name:      "build_info",
			Help:      "Build information, always 1",
		}, []string{"version", "goversion"}),

		Up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nlengine",
			Name:      "up",
			Help:      "Whether the engine is running",
		}),

		Scrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlengine",
			Name:      "exporter_scrapes_total",
			Help:      "Number of times the metrics endpoint was hit",
		}),

		Process: collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
}

// (Nastily) use reflection to avoid having to manually register everything.
func (m *metrics) register(reg prometheus.Registerer) error {
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

func (m *metrics) setBuildInfo(version string) {
	m.BuildInfo.With(prometheus.Labels{"version": version, "goversion": runtime.Version()}).Set(1)
}
