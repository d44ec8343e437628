// Package metrics exposes Prometheus collectors for delay apply/remove
// outcomes. A Recorder owns its own registry so one CLI run can dump exactly
// its own samples to a node-exporter textfile.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clusterbed/clusterbed/testbed"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoOp    = "noop"
)

// Recorder groups the collectors for one run.
type Recorder struct {
	registry *prometheus.Registry

	// LinkAppliesTotal counts link apply attempts by result and failure stage.
	LinkAppliesTotal *prometheus.CounterVec
	// NodeRemovalsTotal counts node removal attempts by result.
	NodeRemovalsTotal *prometheus.CounterVec
	// BackendCallDuration tracks shaping backend calls in seconds.
	BackendCallDuration *prometheus.HistogramVec
	// LinkDelay holds the currently applied delay per link in milliseconds.
	LinkDelay *prometheus.GaugeVec
	// AppliedLinks is the number of links with applied delay.
	AppliedLinks prometheus.Gauge
}

// NewRecorder registers a fresh set of collectors on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		LinkAppliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterbed_link_applies_total",
				Help: "Total number of link delay apply attempts",
			},
			[]string{"result", "stage"},
		),
		NodeRemovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterbed_node_removals_total",
				Help: "Total number of node shaping removal attempts",
			},
			[]string{"result"},
		),
		BackendCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clusterbed_backend_call_duration_seconds",
				Help:    "Duration of shaping backend calls in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
			},
			[]string{"op"},
		),
		LinkDelay: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clusterbed_link_delay_ms",
				Help: "Currently applied one-way delay per link in milliseconds",
			},
			[]string{"src", "dst"},
		),
		AppliedLinks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "clusterbed_applied_links",
				Help: "Number of links with applied delay",
			},
		),
	}
}

// RecordLinkApply counts one link outcome. stage is empty on success.
func (r *Recorder) RecordLinkApply(result, stage string) {
	if r == nil {
		return
	}
	r.LinkAppliesTotal.WithLabelValues(result, stage).Inc()
}

// RecordNodeRemoval counts one node outcome.
func (r *Recorder) RecordNodeRemoval(result string) {
	if r == nil {
		return
	}
	r.NodeRemovalsTotal.WithLabelValues(result).Inc()
}

// ObserveBackendCall records the duration of one backend call.
func (r *Recorder) ObserveBackendCall(op string, seconds float64) {
	if r == nil {
		return
	}
	r.BackendCallDuration.WithLabelValues(op).Observe(seconds)
}

// SetAppliedState mirrors the applied delay state into the gauges.
func (r *Recorder) SetAppliedState(state map[testbed.Link]int) {
	if r == nil {
		return
	}
	r.LinkDelay.Reset()
	for l, ms := range state {
		r.LinkDelay.WithLabelValues(strconv.Itoa(int(l.A)), strconv.Itoa(int(l.B))).Set(float64(ms))
	}
	r.AppliedLinks.Set(float64(len(state)))
}

// WriteTextfile writes every sample in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
