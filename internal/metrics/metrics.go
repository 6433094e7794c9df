// Package metrics exposes Prometheus counters and histograms for the task
// processor and search engine. Grounded on infinite-experiment-politburo's
// use of prometheus/client_golang, the only example repo carrying a metrics
// library.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder wraps the process's metric instruments.
type Recorder struct {
	tasksTotal     *prometheus.CounterVec
	queuePopLatency prometheus.Histogram
	searchDuration  prometheus.Histogram
}

// NewRecorder builds and registers a Recorder against reg. Pass
// prometheus.DefaultRegisterer for the global registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_tasks_total",
			Help: "Total tasks processed, by action, terminal status, and rationale.",
		}, []string{"action", "status", "rationale"}),
		queuePopLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "scheduler_queue_pop_latency_seconds",
			Help: "Time spent blocked in PopMinBlocking before a task was available.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "scheduler_search_duration_seconds",
			Help: "Wall-clock time spent in one itinerary search invocation.",
		}),
	}
	reg.MustRegister(r.tasksTotal, r.queuePopLatency, r.searchDuration)
	return r
}

// RecordTaskOutcome increments the terminal-status counter for one task.
func (r *Recorder) RecordTaskOutcome(action, status, rationale string) {
	r.tasksTotal.WithLabelValues(action, status, rationale).Inc()
}

// ObserveQueuePopLatency records how long a PopMinBlocking call waited.
func (r *Recorder) ObserveQueuePopLatency(seconds float64) {
	r.queuePopLatency.Observe(seconds)
}

// ObserveSearchDuration records how long one search took.
func (r *Recorder) ObserveSearchDuration(seconds float64) {
	r.searchDuration.Observe(seconds)
}
