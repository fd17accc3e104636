// Package metric exposes Prometheus metrics for the datafeed: packet
// and byte counters per device and packet type, plus run counts. Attach
// a Metrics' Callback to a session to have its streams counted.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acqkit/acqkit-go/pkg/acq"
)

// Metrics holds the datafeed metrics and their registry.
type Metrics struct {
	registry *prometheus.Registry

	PacketsTotal *prometheus.CounterVec
	BytesTotal   *prometheus.CounterVec
	SamplesTotal *prometheus.CounterVec
	RunsTotal    prometheus.Counter
	RunsActive   prometheus.Gauge
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acqkit",
				Subsystem: "datafeed",
				Name:      "packets_total",
				Help:      "Total number of datafeed packets delivered",
			},
			[]string{"device", "type"},
		),

		BytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acqkit",
				Subsystem: "datafeed",
				Name:      "bytes_total",
				Help:      "Total payload bytes delivered",
			},
			[]string{"device", "type"},
		),

		SamplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acqkit",
				Subsystem: "datafeed",
				Name:      "samples_total",
				Help:      "Total samples delivered",
			},
			[]string{"device", "type"},
		),

		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "acqkit",
				Subsystem: "session",
				Name:      "runs_total",
				Help:      "Total number of acquisition runs started",
			},
		),

		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "acqkit",
				Subsystem: "session",
				Name:      "runs_active",
				Help:      "Number of acquisition runs currently streaming",
			},
		),
	}

	m.registry.MustRegister(
		m.PacketsTotal,
		m.BytesTotal,
		m.SamplesTotal,
		m.RunsTotal,
		m.RunsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Callback returns a datafeed callback that counts every delivered
// packet. Header packets mark the start of a device stream and end
// packets its close, which drives the active-runs gauge.
func (m *Metrics) Callback() acq.DatafeedCallback {
	return func(dev *acq.Device, pkt *acq.Packet) {
		device := dev.String()
		ptype := pkt.Type().String()
		m.PacketsTotal.WithLabelValues(device, ptype).Inc()

		switch p := pkt.Payload().(type) {
		case *acq.LogicPayload:
			m.BytesTotal.WithLabelValues(device, ptype).Add(float64(len(p.Data())))
			m.SamplesTotal.WithLabelValues(device, ptype).Add(float64(p.SampleCount()))
		case *acq.AnalogPayload:
			m.BytesTotal.WithLabelValues(device, ptype).Add(float64(len(p.Data()) * 4))
			m.SamplesTotal.WithLabelValues(device, ptype).Add(float64(p.SampleCount()))
		}

		switch pkt.Type() {
		case acq.PacketHeader:
			m.RunsTotal.Inc()
			m.RunsActive.Inc()
		case acq.PacketEnd:
			m.RunsActive.Dec()
		}
	}
}
