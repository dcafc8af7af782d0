package status

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Registry is the central metrics facade
// Components cache pointers during construction; hot paths write directly to atomics
type Registry struct {
	Counters *MetricMap[atomic.Int64]
	Gauges   *MetricMap[AtomicFloat]
}

// NewRegistry creates an initialized Registry
func NewRegistry() *Registry {
	return &Registry{
		Counters: NewMetricMap[atomic.Int64](),
		Gauges:   NewMetricMap[AtomicFloat](),
	}
}

// Counter returns the counter for key, creating it on first use
func (r *Registry) Counter(key string) *atomic.Int64 {
	return r.Counters.Get(key)
}

// Gauge returns the gauge for key, creating it on first use
func (r *Registry) Gauge(key string) *AtomicFloat {
	return r.Gauges.Get(key)
}

// TotalCount returns total metrics across all types
func (r *Registry) TotalCount() int {
	return r.Counters.Count() + r.Gauges.Count()
}

// Snapshot renders all metrics as sorted "key=value" pairs, counters first
func (r *Registry) Snapshot() []string {
	out := make([]string, 0, r.TotalCount())
	r.Counters.Range(func(key string, v *atomic.Int64) {
		out = append(out, key+"="+strconv.FormatInt(v.Load(), 10))
	})
	r.Gauges.Range(func(key string, v *AtomicFloat) {
		out = append(out, fmt.Sprintf("%s=%.4g", key, v.Get()))
	})
	return out
}

// String joins the snapshot on a single line
func (r *Registry) String() string {
	return strings.Join(r.Snapshot(), " ")
}
