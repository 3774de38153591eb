// Package prometheus exports the metrics of the engines running in the
// daemon over HTTP.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger *slog.Logger

type Exporter struct {
	Config

	reg    *prometheus.Registry
	m      *metrics
	server *http.Server
}

func (e *Exporter) String() string {
	return "Prometheus"
}

func NewExporter(c *Config, version string) (*Exporter, error) {
	if c == nil {
		c = &DefaultConfig
	}

	if c.Log {
		logger = slog.Default().With("t", "prometheus")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the prometheus exporter")

	e := Exporter{Config: *c}

	// Create a non-global registry.
	e.reg = prometheus.NewRegistry()

	e.m = newMetrics()
	if err := e.m.register(e.reg); err != nil {
		return nil, fmt.Errorf("error registering the metrics: %w", err)
	}
	e.m.setBuildInfo(version)

	handler := http.NewServeMux()
	handler.Handle(e.Path, e.Handler())

	e.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", e.BindAddress, e.Port),
		Handler: handler,
	}

	return &e, nil
}

// Registerer is where engines register their collectors.
func (e *Exporter) Registerer() prometheus.Registerer {
	return e.reg
}

// SetUp flags whether the engine is running.
func (e *Exporter) SetUp(up bool) {
	if up {
		e.m.Up.Set(1)
	} else {
		e.m.Up.Set(0)
	}
}

func (e *Exporter) Handler() http.Handler {
	h := promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.m.Scrapes.Inc()
		h.ServeHTTP(w, r)
	})
}

func (e *Exporter) Run(ctx context.Context) error {
	logger.Debug("running the prometheus exporter", "addr", e.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("error serving metrics: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Debug("cleanly exiting the prometheus exporter")
		return nil
	}
}

func (e *Exporter) Cleanup() error {
	logger.Debug("cleaning up the prometheus exporter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down the metrics server: %w", err)
	}
	return nil
}
