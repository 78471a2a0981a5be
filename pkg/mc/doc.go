/*
Package mc implements Warp's model-checking engine for message-passing
protocols.

Instead of running one seeded execution, the checker explores every
admissible interleaving of the pending events: message deliveries, timer
firings, node crashes, and network faults. The dependency resolver keeps
the exploration semantically honest by forbidding orderings no real
execution could produce.

# Architecture

	┌──────────────────── MODEL CHECKER ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             System                          │          │
	│  │  - named Process implementations            │          │
	│  │  - local inputs, crash/partition controls   │          │
	│  │  - network delivery configuration           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ snapshot                             │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Pending Events + Resolver            │          │
	│  │  - per-node timer ordering                  │          │
	│  │  - reliable messages block later timers     │          │
	│  │  - available set = admissible next steps    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Checker                         │          │
	│  │  - strategy-ordered traversal (BFS/DFS)     │          │
	│  │  - per-event branches: deliver, drop,       │          │
	│  │    duplicate, corrupt                       │          │
	│  │  - content-hash state deduplication         │          │
	│  │  - goal / invariant / prune / collect       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Reporting                       │          │
	│  │  - Stats with collected states              │          │
	│  │  - RunError with counterexample trace       │          │
	│  │  - optional BoltDB trace archive            │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Dependency resolver

On a single node, a timer scheduled for time T must not fire before a timer
scheduled for T' < T, and a reliable message due by deadline D must not be
overtaken by a timer scheduled past D. The resolver maintains per-node
ordered indexes of pending timers and reliable messages and exposes the set
of event ids currently permitted to fire. Popping an unavailable event is a
programmer error.

# Usage

	sys := mc.NewSystem()
	sys.AddProcess("a", procA)
	sys.AddProcess("b", procB)
	sys.SendLocal("a", mc.NewMessage("START", struct{}{}))

	checker := mc.NewChecker(sys)
	stats, err := checker.Run(mc.NewBFS(), mc.Config{
		Goal:      mc.GoalGotLocalMessages("b", 1),
		Invariant: mc.InvariantStateDepthLimit(20),
		Prune:     mc.PruneStateDepth(10),
	})
	if err != nil {
		var runErr *mc.RunError
		if errors.As(err, &runErr) {
			fmt.Print(runErr.FormatTrace())
		}
	}
*/
package mc
