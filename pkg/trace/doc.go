/*
Package trace defines Warp's structured simulation trace and an in-memory
broker for streaming it to subscribers.

A trace record captures one observation of simulation activity: an event
delivery, a model-checker message or timer transition, a node crash, a
network fault change, or a data-transfer lifecycle step. Records carry the
virtual time, the record kind, component names, and the JSON-serialized
payload, so external tools can replay and visualize runs without linking
against the simulator.

# Architecture

The broker fans records out synchronously into per-subscriber ring
buffers; consumers pull in batches:

	┌──────────────────── TRACE PIPELINE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Producers                        │          │
	│  │  - Simulation kernel (delivered and         │          │
	│  │    undelivered events)                      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ Publish (synchronous, never blocks)  │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Broker                         │          │
	│  │  per-subscription ring buffer               │          │
	│  │  - lagging consumer loses oldest records    │          │
	│  │  - overwrites counted via Lost()            │          │
	│  │  - coalesced wakeup signal via Wait()       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ Drain (batch pull)                   │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │  - Log sinks                                │          │
	│  │  - Visualization front-ends                 │          │
	│  │  - Test assertions on observed activity     │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Because publication is synchronous, everything published before a Drain is
visible to it — trace assertions in tests need no sleeps or timeouts — and
an idle broker holds no goroutines.

The simulation kernel is the only package that publishes to a broker. The
model checker uses Record directly, without the broker, as the entry type
of the per-state trace it reports with counterexamples. The transfer kinds
are defined here, but the network model publishes no records.
*/
package trace
