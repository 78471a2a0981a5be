/*
Package simulation implements Warp's deterministic discrete-event
simulation kernel.

The kernel owns virtual time, the pending event heap, the component
registry, the seeded random number generator, and the cooperative task
executor. Components obtain a Context and use it to emit typed events with
a relative delay; the kernel timestamps each event, assigns it a monotonic
id, and heap-inserts it. Each Step pops the earliest event by (time, id),
advances virtual time to its timestamp, and dispatches it to the
destination's handler.

# Architecture

	┌──────────────────── SIMULATION KERNEL ───────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Component Registry                 │          │
	│  │  - name ↔ dense id tables                   │          │
	│  │  - handler per id (optional)                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Pending Event Heap                 │          │
	│  │  - min-heap on (timestamp, id)              │          │
	│  │  - cancellable until popped                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ Step                                 │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Dispatch                         │          │
	│  │  - ready task?   → run to suspension        │          │
	│  │  - timer ≤ event → fire timer               │          │
	│  │  - promise match → complete await           │          │
	│  │  - otherwise     → handler.On(event)        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Task Executor (async mode)           │          │
	│  │  - FIFO ready queue, strict handoff         │          │
	│  │  - suspension: Sleep / Recv / Receive       │          │
	│  │  - sloppy cancellation via ErrCancelled     │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Determinism

Runs are reproducible from the seed: events are delivered strictly in
(timestamp, id) order, ties broken by emission order; the executor's ready
queue is FIFO; and task goroutines execute only between the executor's
resume signal and their next suspension point, so no two tasks ever run
concurrently. A task observes virtual-time changes only across its own
suspension points.

# Usage

	sim := simulation.New(123)
	ctx := sim.CreateContext("comp")
	sim.AddHandler("comp", comp)
	ctx.EmitSelf(StartEvent{}, 1.2)
	sim.StepUntilNoEvents()
*/
package simulation
