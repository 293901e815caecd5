// Package metrics exports run outcomes as Prometheus metrics.
//
// The Collector is a bus subscriber. At the end of a run its registry is
// written in the text exposition format, ready for the node_exporter
// textfile collector or a Pushgateway.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/cuke/internal/event"
)

// Collector captures metrics for a run.
type Collector struct {
	registry         *prometheus.Registry
	scenariosTotal   *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	hooksTotal       *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec
	runDuration      prometheus.Gauge
	runInfo          *prometheus.GaugeVec

	runStarted int64
}

// NewCollector initializes a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		scenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cuke_scenarios_total", Help: "Total number of finished scenarios"},
			[]string{"status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cuke_steps_total", Help: "Total number of finished steps"},
			[]string{"status"},
		),
		hooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cuke_hooks_total", Help: "Total number of finished hooks"},
			[]string{"phase", "status"},
		),
		scenarioDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cuke_scenario_duration_seconds",
				Help:    "Scenario duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"uri", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cuke_step_duration_seconds",
				Help:    "Step duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "cuke_run_duration_seconds", Help: "Duration of the last run in seconds"},
		),
		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "cuke_run_info", Help: "Run metadata for traceability"},
			[]string{"run_id"},
		),
	}

	registry.MustRegister(
		c.scenariosTotal, c.stepsTotal, c.hooksTotal,
		c.scenarioDuration, c.stepDuration,
		c.runDuration, c.runInfo,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Subscribe registers the collector on b.
func (c *Collector) Subscribe(b event.Bus) {
	event.On(b, func(e event.RunStarted) {
		c.runStarted = e.Timestamp()
		c.runInfo.WithLabelValues(e.RunID).Set(1)
	})
	event.On(b, func(e event.RunFinished) {
		c.runDuration.Set(time.Duration(e.Timestamp() - c.runStarted).Seconds())
	})
	event.On(b, func(e event.ScenarioFinished) {
		status := e.Result.Status.String()
		c.scenariosTotal.WithLabelValues(status).Inc()
		c.scenarioDuration.WithLabelValues(e.Pickle.URI, status).Observe(e.Result.Duration.Seconds())
	})
	event.On(b, func(e event.StepFinished) {
		status := e.Result.Status.String()
		c.stepsTotal.WithLabelValues(status).Inc()
		c.stepDuration.WithLabelValues(status).Observe(e.Result.Duration.Seconds())
	})
	event.On(b, func(e event.HookFinished) {
		c.hooksTotal.WithLabelValues(string(e.Phase), e.Result.Status.String()).Inc()
	})
}

// WriteTo writes all metrics in the Prometheus text format.
func (c *Collector) WriteTo(w io.Writer) (int64, error) {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return 0, fmt.Errorf("encode metrics: %w", err)
		}
	}
	return buf.WriteTo(w)
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
