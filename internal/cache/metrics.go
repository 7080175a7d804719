package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for one cache.
type Metrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	sets        prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter

	size prometheus.Gauge
}

// NewMetrics creates the collectors for the cache called name and registers
// them with reg. Collectors already registered under the same name are reused.
func NewMetrics(reg prometheus.Registerer, name string) (*Metrics, error) {
	labels := prometheus.Labels{"cache": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "eventgraph",
			Subsystem:   "cache",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &Metrics{
		hits:        counter("hits_total", "Total number of cache hits"),
		misses:      counter("misses_total", "Total number of cache misses"),
		sets:        counter("sets_total", "Total number of cache set operations"),
		evictions:   counter("evictions_total", "Total number of capacity evictions"),
		expirations: counter("expirations_total", "Total number of TTL expirations"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "eventgraph",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of entries in cache",
		}),
	}

	m.hits = registerCounter(reg, m.hits)
	m.misses = registerCounter(reg, m.misses)
	m.sets = registerCounter(reg, m.sets)
	m.evictions = registerCounter(reg, m.evictions)
	m.expirations = registerCounter(reg, m.expirations)

	if err := reg.Register(m.size); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.size = are.ExistingCollector.(prometheus.Gauge)
	}
	return m, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

// WithMetrics exports cache activity through m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// The record helpers accept a nil receiver so caches without metrics need no checks.

func (m *Metrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *Metrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) recordExpiration() {
	if m != nil {
		m.expirations.Inc()
	}
}

func (m *Metrics) updateSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
