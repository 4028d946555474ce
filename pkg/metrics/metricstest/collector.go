// Package metricstest provides an in-memory metrics.Collector for tests.
package metricstest

import (
	"sync"

	"github.com/exploopio/mvtreport/pkg/metrics"
)

// Collector stores metrics in memory.
type Collector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

var _ metrics.Collector = (*Collector)(nil)

// New creates an empty Collector.
func New() *Collector {
	return &Collector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func key(name string, labels []string) string {
	k := name
	for i := 0; i+1 < len(labels); i += 2 {
		k += "," + labels[i] + "=" + labels[i+1]
	}
	return k
}

func (c *Collector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *Collector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key(name, labels)] += value
}

func (c *Collector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[key(name, labels)] = value
}

func (c *Collector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(name, labels)
	c.histograms[k] = append(c.histograms[k], value)
}

// Counter returns the value of a counter.
func (c *Collector) Counter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[key(name, labels)]
}

// Gauge returns the value of a gauge and whether it was ever set.
func (c *Collector) Gauge(name string, labels ...string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.gauges[key(name, labels)]
	return v, ok
}

// Observations returns every value observed by a histogram.
func (c *Collector) Observations(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.histograms[key(name, labels)]...)
}
