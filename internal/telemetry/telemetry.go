// Package telemetry provides a hand-rolled Prometheus-text metrics
// registry used to observe the connection core: command latency, event
// throughput, and refresh activity.
package telemetry

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Registry provides thread-safe metrics collection using simple in-memory
// counters, gauges, and histograms, exportable in Prometheus text format.
type Registry struct {
	counters   map[string]*counter
	histograms map[string]*histogram
	gauges     map[string]*gauge
	mu         sync.RWMutex
}

type counter struct {
	values map[string]uint64
	mu     sync.RWMutex
}

type histogram struct {
	counts  map[string][]uint64
	sums    map[string]float64
	totals  map[string]uint64
	buckets []float64
	mu      sync.RWMutex
}

type gauge struct {
	values map[string]float64
	mu     sync.RWMutex
}

// defaultLatencyBuckets covers a single accessibility call's expected
// range: sub-millisecond for a cache hit up to several seconds for a
// frozen target application bumping into the messaging timeout.
var defaultLatencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
}

// NewRegistry creates a Registry with the core's standard metrics
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
		gauges:     make(map[string]*gauge),
	}
	r.registerCounter("axcore_commands_total")
	r.registerCounter("axcore_refreshes_total")
	r.registerHistogram("axcore_command_duration_seconds", defaultLatencyBuckets)
	r.registerGauge("axcore_event_channel_depth")
	r.registerGauge("axcore_tracked_windows")
	r.registerGauge("axcore_tracked_apps")
	return r
}

func (r *Registry) registerCounter(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] = &counter{values: make(map[string]uint64)}
}

func (r *Registry) registerHistogram(name string, buckets []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name] = &histogram{
		buckets: buckets,
		counts:  make(map[string][]uint64),
		sums:    make(map[string]float64),
		totals:  make(map[string]uint64),
	}
}

func (r *Registry) registerGauge(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = &gauge{values: make(map[string]float64)}
}

// IncrementCounter increments a counter by 1 for the given label string
// (formatted as key1="value1",key2="value2"; empty for no labels).
func (r *Registry) IncrementCounter(name, labels string) {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.values[labels]++
	c.mu.Unlock()
}

// ObserveHistogram records value in the named histogram.
func (r *Registry) ObserveHistogram(name, labels string, value float64) {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.counts[labels]; !exists {
		h.counts[labels] = make([]uint64, len(h.buckets)+1)
		h.sums[labels] = 0
		h.totals[labels] = 0
	}
	h.sums[labels] += value
	h.totals[labels]++
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[labels][i]++
			return
		}
	}
	h.counts[labels][len(h.buckets)]++
}

// SetGauge sets a gauge to an absolute value.
func (r *Registry) SetGauge(name, labels string, value float64) {
	r.mu.RLock()
	g, ok := r.gauges[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	g.values[labels] = value
	g.mu.Unlock()
}

// IncrementGauge adjusts a gauge by delta relative to its current value.
func (r *Registry) IncrementGauge(name, labels string, delta float64) {
	r.mu.RLock()
	g, ok := r.gauges[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	g.values[labels] += delta
	g.mu.Unlock()
}

// StartTimer records the duration until the returned func is called,
// into axcore_command_duration_seconds and axcore_commands_total labeled
// by op.
func (r *Registry) StartTimer(op string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start).Seconds()
		labels := fmt.Sprintf(`op=%q`, op)
		r.ObserveHistogram("axcore_command_duration_seconds", labels, d)
		r.IncrementCounter("axcore_commands_total", labels)
	}
}

// RecordRefresh increments the refresh counter, tagged by trigger (every
// caller today passes "state": conn.State.UpdateKnownAppsAndWindows is
// the sole writer of the apps/windows maps and records the refresh the
// same way whether it was provoked by a lookup miss, an event, or
// cmd/axcored's scheduled refresh ticker).
func (r *Registry) RecordRefresh(trigger string) {
	r.IncrementCounter("axcore_refreshes_total", fmt.Sprintf(`trigger=%q`, trigger))
}

// SetEventChannelDepth reports the current backlog of the event channel.
func (r *Registry) SetEventChannelDepth(depth int) {
	r.SetGauge("axcore_event_channel_depth", "", float64(depth))
}

// SetTrackedCounts reports the current size of the connection state maps.
func (r *Registry) SetTrackedCounts(windows, apps int) {
	r.SetGauge("axcore_tracked_windows", "", float64(windows))
	r.SetGauge("axcore_tracked_apps", "", float64(apps))
}

// WritePrometheus writes every registered metric in Prometheus text
// format.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counterNames := sortedKeys(r.counters)
	for _, name := range counterNames {
		c := r.counters[name]
		c.mu.RLock()
		if err := writeCounter(w, name, c); err != nil {
			c.mu.RUnlock()
			return err
		}
		c.mu.RUnlock()
	}

	gaugeNames := make([]string, 0, len(r.gauges))
	for name := range r.gauges {
		gaugeNames = append(gaugeNames, name)
	}
	sort.Strings(gaugeNames)
	for _, name := range gaugeNames {
		g := r.gauges[name]
		g.mu.RLock()
		if err := writeGauge(w, name, g); err != nil {
			g.mu.RUnlock()
			return err
		}
		g.mu.RUnlock()
	}

	histogramNames := make([]string, 0, len(r.histograms))
	for name := range r.histograms {
		histogramNames = append(histogramNames, name)
	}
	sort.Strings(histogramNames)
	for _, name := range histogramNames {
		h := r.histograms[name]
		h.mu.RLock()
		if err := writeHistogram(w, name, h); err != nil {
			h.mu.RUnlock()
			return err
		}
		h.mu.RUnlock()
	}
	return nil
}

func sortedKeys(m map[string]*counter) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeCounter(w io.Writer, name string, c *counter) error {
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", name); err != nil {
		return err
	}
	labels := make([]string, 0, len(c.values))
	for l := range c.values {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		v := c.values[l]
		if l == "" {
			if _, err := fmt.Fprintf(w, "%s %d\n", name, v); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintf(w, "%s{%s} %d\n", name, l, v); err != nil {
			return err
		}
	}
	return nil
}

func writeGauge(w io.Writer, name string, g *gauge) error {
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", name); err != nil {
		return err
	}
	labels := make([]string, 0, len(g.values))
	for l := range g.values {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		v := g.values[l]
		if l == "" {
			if _, err := fmt.Fprintf(w, "%s %g\n", name, v); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintf(w, "%s{%s} %g\n", name, l, v); err != nil {
			return err
		}
	}
	return nil
}

func writeHistogram(w io.Writer, name string, h *histogram) error {
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", name); err != nil {
		return err
	}
	labels := make([]string, 0, len(h.counts))
	for l := range h.counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		counts := h.counts[l]
		sum := h.sums[l]
		total := h.totals[l]
		labelPrefix := ""
		if l != "" {
			labelPrefix = l + ","
		}
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += counts[i]
			if _, err := fmt.Fprintf(w, "%s_bucket{%sle=\"%g\"} %d\n", name, labelPrefix, bound, cumulative); err != nil {
				return err
			}
		}
		cumulative += counts[len(h.buckets)]
		if _, err := fmt.Fprintf(w, "%s_bucket{%sle=\"+Inf\"} %d\n", name, labelPrefix, cumulative); err != nil {
			return err
		}
		if l == "" {
			if _, err := fmt.Fprintf(w, "%s_sum %g\n", name, sum); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s_count %d\n", name, total); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, "%s_sum{%s} %g\n", name, l, sum); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s_count{%s} %d\n", name, l, total); err != nil {
				return err
			}
		}
	}
	return nil
}
