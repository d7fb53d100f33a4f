// Package prometheus adapts metrics.Provider to Prometheus collectors.
//
// Each instrument name maps to one collector vector whose label names are the sorted keys of the
// instrument's attributes. Pools that share a registry and differ only in attribute values (for
// example, the "pool" attribute) therefore share a collector and export distinct series.
package prometheus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ygrebnov/threadpool/metrics"
)

// Options controls collector configuration.
type Options struct {
	// Namespace prefixes every metric name. Default: "threadpool".
	Namespace string
	// Buckets are the histogram buckets. Default: prom.DefBuckets.
	Buckets []float64
}

// Provider creates Prometheus-backed instruments and registers them on first use.
type Provider struct {
	reg       prom.Registerer
	namespace string
	buckets   []float64

	mu   sync.Mutex
	vecs map[string]prom.Collector
	errs []error
}

var _ metrics.Provider = (*Provider)(nil)

// NewProvider returns a Provider registering into reg (prom.DefaultRegisterer when nil).
func NewProvider(reg prom.Registerer, opts Options) *Provider {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if opts.Namespace == "" {
		opts.Namespace = "threadpool"
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prom.DefBuckets
	}
	return &Provider{
		reg:       reg,
		namespace: opts.Namespace,
		buckets:   opts.Buckets,
		vecs:      make(map[string]prom.Collector),
	}
}

// Counter returns a counter exported as <namespace>_<name>_total.
func (p *Provider) Counter(name string, opts ...metrics.InstrumentOption) metrics.Counter {
	cfg := metrics.Resolve(opts)
	keys, values := labels(cfg.Attributes)
	vec, ok := instrument(p, name, func() *prom.CounterVec {
		return prom.NewCounterVec(prom.CounterOpts{
			Namespace: p.namespace,
			Name:      name + "_total",
			Help:      help(cfg, name),
		}, keys)
	})
	if !ok {
		return metrics.NoopProvider{}.Counter(name)
	}
	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.fail(name, err)
		return metrics.NoopProvider{}.Counter(name)
	}
	return counter{c: c}
}

// UpDownCounter returns a gauge exported as <namespace>_<name>.
func (p *Provider) UpDownCounter(name string, opts ...metrics.InstrumentOption) metrics.UpDownCounter {
	cfg := metrics.Resolve(opts)
	keys, values := labels(cfg.Attributes)
	vec, ok := instrument(p, name, func() *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      help(cfg, name),
		}, keys)
	})
	if !ok {
		return metrics.NoopProvider{}.UpDownCounter(name)
	}
	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.fail(name, err)
		return metrics.NoopProvider{}.UpDownCounter(name)
	}
	return gauge{g: g}
}

// Histogram returns a histogram exported as <namespace>_<name>.
func (p *Provider) Histogram(name string, opts ...metrics.InstrumentOption) metrics.Histogram {
	cfg := metrics.Resolve(opts)
	keys, values := labels(cfg.Attributes)
	vec, ok := instrument(p, name, func() *prom.HistogramVec {
		return prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      help(cfg, name),
			Buckets:   p.buckets,
		}, keys)
	})
	if !ok {
		return metrics.NoopProvider{}.Histogram(name)
	}
	o, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.fail(name, err)
		return metrics.NoopProvider{}.Histogram(name)
	}
	return histogram{o: o}
}

// Err reports every registration failure seen so far, joined.
// Instruments whose registration failed discard their measurements.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

func (p *Provider) fail(name string, err error) {
	p.mu.Lock()
	p.errs = append(p.errs, fmt.Errorf("instrument %q: %w", name, err))
	p.mu.Unlock()
}

// instrument returns the cached vector for name, creating and registering it on first use.
// It reports false when the name is taken by a vector of another kind or label set.
func instrument[T prom.Collector](p *Provider, name string, mk func() T) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.vecs[name]; ok {
		v, ok := c.(T)
		if !ok {
			p.errs = append(p.errs, fmt.Errorf("instrument %q already registered as %T", name, c))
		}
		return v, ok
	}

	v, err := registerCollector(p.reg, mk())
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("register %q: %w", name, err))
		return v, false
	}
	p.vecs[name] = v
	return v, true
}

// registerCollector registers collector, reusing an identical collector already on reg.
func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

// labels splits attrs into label names sorted by key and the matching values.
func labels(attrs map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = attrs[k]
	}
	return keys, values
}

func help(cfg metrics.InstrumentConfig, name string) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return name
}

type counter struct{ c prom.Counter }

func (c counter) Add(n int64) {
	// Prometheus counters panic on negative increments.
	if n > 0 {
		c.c.Add(float64(n))
	}
}

type gauge struct{ g prom.Gauge }

func (g gauge) Add(n int64) { g.g.Add(float64(n)) }

type histogram struct{ o prom.Observer }

func (h histogram) Record(v float64) { h.o.Observe(v) }
