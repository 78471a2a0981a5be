/*
Package metrics provides Prometheus metrics for Warp's simulation core.

The metrics package exposes counters, gauges, and histograms covering the
simulation kernel (event lifecycle, pending-queue depth), the asynchronous
task executor (spawned tasks, fired timers, completed promises), the model
checker (visited and pruned states, run outcomes and durations), and the
network model (active and completed transfers, recomputation cost).

Virtual-time quantities never appear here: metrics measure the simulator
itself (how much work it did and how long it took in wall-clock terms), not
the simulated system. Simulated-system observables belong in the event trace.

# Usage

Metrics are package-level collectors registered in init(), matching the
pattern used across the codebase:

	metrics.EventsEmitted.Inc()
	metrics.PendingEvents.Set(float64(queueLen))

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.McRunDuration)

Expose them over HTTP with the standard handler:

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
