package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Kernel metrics
	EventsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_events_emitted_total",
			Help: "Total number of events emitted into the simulation",
		},
	)

	EventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_events_delivered_total",
			Help: "Total number of events delivered to handlers",
		},
	)

	EventsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_events_cancelled_total",
			Help: "Total number of events cancelled before delivery",
		},
	)

	EventsUndelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_events_undelivered_total",
			Help: "Total number of events dropped due to a missing handler",
		},
	)

	PendingEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warp_pending_events",
			Help: "Current number of events in the pending queue",
		},
	)

	// Async executor metrics
	TasksSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_tasks_spawned_total",
			Help: "Total number of asynchronous tasks spawned",
		},
	)

	TimersFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_timers_fired_total",
			Help: "Total number of task timers fired",
		},
	)

	PromisesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_promises_completed_total",
			Help: "Total number of event promises completed by matching events",
		},
	)

	// Model-checker metrics
	McStatesVisited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_mc_states_visited_total",
			Help: "Total number of states visited by the model checker",
		},
	)

	McStatesPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_mc_states_pruned_total",
			Help: "Total number of subtrees pruned by the model checker",
		},
	)

	McRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warp_mc_runs_total",
			Help: "Total number of model-checker runs by outcome",
		},
		[]string{"outcome"},
	)

	McRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warp_mc_run_duration_seconds",
			Help:    "Wall-clock duration of model-checker runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800}, // 100ms to 30min
		},
	)

	// Network model metrics
	TransfersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warp_transfers_active",
			Help: "Current number of active data transfers",
		},
	)

	TransfersCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_transfers_completed_total",
			Help: "Total number of completed data transfers",
		},
	)

	ThroughputRecalcDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warp_throughput_recalc_duration_seconds",
			Help:    "Wall-clock duration of throughput recomputations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register kernel metrics
	prometheus.MustRegister(EventsEmitted)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(EventsCancelled)
	prometheus.MustRegister(EventsUndelivered)
	prometheus.MustRegister(PendingEvents)

	// Register async executor metrics
	prometheus.MustRegister(TasksSpawned)
	prometheus.MustRegister(TimersFired)
	prometheus.MustRegister(PromisesCompleted)

	// Register model-checker metrics
	prometheus.MustRegister(McStatesVisited)
	prometheus.MustRegister(McStatesPruned)
	prometheus.MustRegister(McRunsTotal)
	prometheus.MustRegister(McRunDuration)

	// Register network model metrics
	prometheus.MustRegister(TransfersActive)
	prometheus.MustRegister(TransfersCompleted)
	prometheus.MustRegister(ThroughputRecalcDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
