/*
Package network implements Warp's topology-aware network model.

The model maintains a weighted graph of hosts, switches, and links, resolves
routes with a pluggable routing algorithm (all-pairs shortest path by latency
by default), and computes per-transfer throughput under max-min fairness each
time the set of concurrent transfers changes.

# Architecture

	┌──────────────────── NETWORK MODEL ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             Topology                        │          │
	│  │  - hosts (local bandwidth/latency)          │          │
	│  │  - switches                                 │          │
	│  │  - links (bandwidth, latency, sharing)      │          │
	│  │  - YAML manifest loader                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Routing                         │          │
	│  │  - Floyd-Warshall by summed latency         │          │
	│  │  - re-initialized on topology change        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │       Max-Min Fair Throughput               │          │
	│  │  - link-usage min-heap by fair share        │          │
	│  │  - lazy stale-entry resolution              │          │
	│  │  - incremental affected-set recomputation   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Completion Scheduling                │          │
	│  │  - earliest expected finish wins            │          │
	│  │  - DataTransferCompleted to requester       │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Fairness

Each link divides its residual bandwidth among the transfers crossing it
(equally for shared links, in full for non-shared ones). The assignment
repeatedly satisfies the most constrained link first, so no transfer's rate
can be raised without lowering an equal-or-smaller transfer sharing a
bottleneck.

# Usage

	topo := network.NewTopology()
	topo.AddHost("a", 0, 0)
	topo.AddHost("b", 0, 0)
	topo.AddLink("a", "b", network.Link{Bandwidth: 100, Latency: 0.001})

	model := network.NewModel(sim, "network", topo)
	model.StartTransfer(topo.NodeID("a"), topo.NodeID("b"), 50, clientID)
	// ... the client receives DataTransferCompleted when done.
*/
package network
