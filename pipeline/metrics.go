package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the decode element. Optional: a nil
// *Metrics is safe to use and records nothing.
type Metrics struct {
	unitsTotal    prometheus.Counter
	errorsTotal   prometheus.Counter
	bytesInTotal  prometheus.Counter
	bytesOutTotal prometheus.Counter

	// Registration tracking
	registered bool
	mu         sync.Mutex
}

// MetricsConfig holds configuration for decode metrics.
type MetricsConfig struct {
	// Namespace is the prometheus namespace for metrics.
	Namespace string
	// Subsystem is the prometheus subsystem for metrics. Defaults to "gzdec".
	Subsystem string
	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gzdec"
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}

	return &Metrics{
		unitsTotal:    counter("units_total", "Total number of input units processed"),
		errorsTotal:   counter("errors_total", "Total number of units that failed to decode"),
		bytesInTotal:  counter("bytes_in_total", "Total compressed bytes received"),
		bytesOutTotal: counter("bytes_out_total", "Total decompressed bytes produced"),
	}
}

// Register registers the metrics with the provided registerer.
// If registerer is nil, the default prometheus registerer is used.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	collectors := []prometheus.Collector{
		m.unitsTotal,
		m.errorsTotal,
		m.bytesInTotal,
		m.bytesOutTotal,
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			// Unregister any previously registered collectors
			for _, r := range collectors {
				registerer.Unregister(r)
			}

			return err
		}
	}

	m.registered = true

	return nil
}

// Unregister removes the metrics from the provided registerer.
func (m *Metrics) Unregister(registerer prometheus.Registerer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registered {
		return
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	registerer.Unregister(m.unitsTotal)
	registerer.Unregister(m.errorsTotal)
	registerer.Unregister(m.bytesInTotal)
	registerer.Unregister(m.bytesOutTotal)

	m.registered = false
}

// IncUnits increments the processed-units counter.
func (m *Metrics) IncUnits() {
	if m == nil {
		return
	}
	m.unitsTotal.Inc()
}

// IncErrors increments the failed-units counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// AddBytesIn records compressed bytes received.
func (m *Metrics) AddBytesIn(n int) {
	if m == nil {
		return
	}
	m.bytesInTotal.Add(float64(n))
}

// AddBytesOut records decompressed bytes produced.
func (m *Metrics) AddBytesOut(n int) {
	if m == nil {
		return
	}
	m.bytesOutTotal.Add(float64(n))
}
