package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics by registering counters/histograms/
// gauges lazily against a prometheus.Registerer. It is the Observability
// Emitter's Prometheus-pull sink (spec §4.8 fanout).
type PrometheusMetrics struct {
	reg        prometheus.Registerer
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics constructs a Metrics sink registered against reg. Pass
// prometheus.DefaultRegisterer to expose metrics on the default /metrics
// handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func tagLabels(tags []string) (names []string, values []string) {
	for i := 0; i+1 < len(tags); i += 2 {
		names = append(names, tags[i])
		values = append(values, tags[i+1])
	}
	return names, values
}

func (p *PrometheusMetrics) IncCounter(name string, value float64, tags ...string) {
	names, values := tagLabels(tags)
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitize(name)}, names)
		_ = p.reg.Register(c)
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.WithLabelValues(values...).Add(value)
}

func (p *PrometheusMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	names, values := tagLabels(tags)
	p.mu.Lock()
	h, ok := p.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: sanitize(name)}, names)
		_ = p.reg.Register(h)
		p.histograms[name] = h
	}
	p.mu.Unlock()
	h.WithLabelValues(values...).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) RecordGauge(name string, value float64, tags ...string) {
	names, values := tagLabels(tags)
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: sanitize(name)}, names)
		_ = p.reg.Register(g)
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.WithLabelValues(values...).Set(value)
}

// sanitize replaces dots with underscores since Prometheus metric names
// disallow them; the rest of the harness names metrics dotted
// ("step.duration_ms") following the teacher's OTEL convention.
func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' || name[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}
