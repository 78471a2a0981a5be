package mc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/trace"
)

// Stats summarizes a completed exploration run.
type Stats struct {
	RunID         string
	StatesVisited uint64
	StatesPruned  uint64
	Collected     []*State
}

// RunError is a failed exploration: an invariant violation or a terminal
// state that misses the goal. It carries the trace of the offending
// execution for post-mortem analysis.
type RunError struct {
	RunID  string
	Reason string
	Trace  []trace.Record
}

func (e *RunError) Error() string {
	return fmt.Sprintf("model checking run %s failed: %s", e.RunID, e.Reason)
}

// FormatTrace renders the offending trace, one record per line.
func (e *RunError) FormatTrace() string {
	var b strings.Builder
	for _, rec := range e.Trace {
		fmt.Fprintf(&b, "[%8.3f] %-20s src=%-12s dst=%-12s %s %s\n",
			rec.Time, rec.Kind, rec.Src, rec.Dst, rec.Type, rec.Message)
	}
	return b.String()
}

// Checker explores the state space of a message-passing system. Starting
// from a system snapshot, it enumerates every admissible interleaving of
// the pending events (per the dependency resolver), applies the configured
// predicates, and reports either collected statistics or a counterexample.
type Checker struct {
	root   *State
	store  *TraceStore
	logger zerolog.Logger
}

// NewChecker snapshots the system's current state as the exploration root.
func NewChecker(sys *System) *Checker {
	return &Checker{
		root:   sys.State().Clone(),
		logger: log.WithComponent("mc"),
	}
}

// WithTraceStore attaches a persistent archive: run summaries and failure
// traces are saved under the run id.
func (c *Checker) WithTraceStore(store *TraceStore) *Checker {
	c.store = store
	return c
}

// Run explores from the snapshot under the given strategy and predicates.
func (c *Checker) Run(strategy Strategy, cfg Config) (*Stats, error) {
	return c.explore(strategy, cfg, []*State{c.root.Clone()})
}

// RunFromStatesWithChange resumes exploration from each of the given states
// after applying the change callback, which receives a System wrapping the
// cloned state. Used to stage multi-phase scenarios such as "partition,
// then query".
func (c *Checker) RunFromStatesWithChange(strategy Strategy, cfg Config, states []*State, change func(*System)) (*Stats, error) {
	roots := make([]*State, 0, len(states))
	for _, state := range states {
		clone := state.Clone()
		change(&System{state: clone})
		roots = append(roots, clone)
	}
	return c.explore(strategy, cfg, roots)
}

func (c *Checker) explore(strategy Strategy, cfg Config, roots []*State) (*Stats, error) {
	stats := &Stats{RunID: uuid.NewString()}
	logger := log.WithRunID(stats.RunID)
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.McRunDuration)

	visited := make(map[uint64]struct{})
	strategy.Reset()
	for _, root := range roots {
		hash := root.Hash()
		if _, seen := visited[hash]; seen {
			continue
		}
		visited[hash] = struct{}{}
		strategy.Add(root)
	}

	for {
		state, ok := strategy.Next()
		if !ok {
			break
		}
		stats.StatesVisited++
		metrics.McStatesVisited.Inc()

		if cfg.Invariant != nil {
			if err := cfg.Invariant(state); err != nil {
				return nil, c.fail(stats, logger, state, fmt.Sprintf("invariant violated: %v", err))
			}
		}
		if cfg.Goal != nil {
			if _, reached := cfg.Goal(state); reached {
				continue
			}
		}
		if cfg.Prune != nil {
			if _, pruned := cfg.Prune(state); pruned {
				stats.StatesPruned++
				metrics.McStatesPruned.Inc()
				continue
			}
		}
		if cfg.Collect != nil && cfg.Collect(state) {
			stats.Collected = append(stats.Collected, state)
		}

		available := state.pending.Available()
		if len(available) == 0 {
			if cfg.Goal != nil {
				return nil, c.fail(stats, logger, state, "terminal state does not satisfy the goal")
			}
			continue
		}

		for _, id := range available {
			event, _ := state.pending.Get(id)
			for _, successor := range c.expand(state, id, event) {
				hash := successor.Hash()
				if _, seen := visited[hash]; seen {
					continue
				}
				visited[hash] = struct{}{}
				strategy.Add(successor)
			}
		}
	}

	logger.Debug().
		Uint64("visited", stats.StatesVisited).
		Uint64("pruned", stats.StatesPruned).
		Int("collected", len(stats.Collected)).
		Msg("exploration finished")
	metrics.McRunsTotal.WithLabelValues("ok").Inc()
	if c.store != nil {
		if err := c.store.SaveRun(stats, ""); err != nil {
			logger.Warn().Err(err).Msg("failed to archive run summary")
		}
	}
	return stats, nil
}

func (c *Checker) fail(stats *Stats, logger zerolog.Logger, state *State, reason string) error {
	runErr := &RunError{RunID: stats.RunID, Reason: reason, Trace: state.Trace()}
	logger.Error().
		Uint64("visited", stats.StatesVisited).
		Str("reason", reason).
		Msg("exploration failed")
	metrics.McRunsTotal.WithLabelValues("failed").Inc()
	if c.store != nil {
		if err := c.store.SaveFailure(runErr); err != nil {
			logger.Warn().Err(err).Msg("failed to archive failure trace")
		}
		if err := c.store.SaveRun(stats, reason); err != nil {
			logger.Warn().Err(err).Msg("failed to archive run summary")
		}
	}
	return runErr
}

// expand produces every successor of firing one available event: the normal
// delivery, plus one branch per permitted network fault.
func (c *Checker) expand(state *State, id EventID, event Event) []*State {
	switch ev := event.(type) {
	case MessageReceived:
		successors := []*State{c.deliverBranch(state, id)}
		if ev.Options.CanDrop {
			successors = append(successors, c.dropBranch(state, id))
		}
		if ev.Options.CanDuplicate {
			successors = append(successors, c.duplicateBranch(state, id))
		}
		if ev.Options.CanCorrupt {
			successors = append(successors, c.corruptBranch(state, id))
		}
		return successors
	case TimerFired:
		return []*State{c.timerBranch(state, id)}
	default:
		panic(fmt.Sprintf("mc: unknown event kind %T", event))
	}
}

// deliverBranch fires a message through the destination's handler.
func (c *Checker) deliverBranch(state *State, id EventID) *State {
	successor := state.Clone()
	successor.depth++
	ev := successor.pending.Pop(id).(MessageReceived)
	deliverMessage(successor, ev, ev.Msg)
	return successor
}

// dropBranch loses the message in transit.
func (c *Checker) dropBranch(state *State, id EventID) *State {
	successor := state.Clone()
	successor.depth++
	ev := successor.pending.Pop(id).(MessageReceived)
	successor.record(trace.Record{
		Time: successor.pending.globalTime[ev.Dst],
		Kind: trace.MessageDropped,
		Src:  ev.Src,
		Dst:  ev.Dst,
		Type: ev.Msg.Type,
	})
	return successor
}

// duplicateBranch delivers the message and re-enqueues a second copy that
// cannot duplicate again.
func (c *Checker) duplicateBranch(state *State, id EventID) *State {
	successor := state.Clone()
	successor.depth++
	ev := successor.pending.Pop(id).(MessageReceived)
	deliverMessage(successor, ev, ev.Msg)
	copyOptions := ev.Options
	copyOptions.CanDuplicate = false
	successor.pending.Push(MessageReceived{
		Msg:     ev.Msg,
		Src:     ev.Src,
		Dst:     ev.Dst,
		Options: copyOptions,
	})
	successor.record(trace.Record{
		Time: successor.pending.globalTime[ev.Dst],
		Kind: trace.MessageDuplicated,
		Src:  ev.Src,
		Dst:  ev.Dst,
		Type: ev.Msg.Type,
	})
	return successor
}

// corruptBranch delivers the message with a degraded payload.
func (c *Checker) corruptBranch(state *State, id EventID) *State {
	successor := state.Clone()
	successor.depth++
	ev := successor.pending.Pop(id).(MessageReceived)
	successor.record(trace.Record{
		Time: successor.pending.globalTime[ev.Dst],
		Kind: trace.MessageCorrupted,
		Src:  ev.Src,
		Dst:  ev.Dst,
		Type: ev.Msg.Type,
	})
	deliverMessage(successor, ev, ev.Msg.corrupted())
	return successor
}

// timerBranch fires a timer through the owner's handler.
func (c *Checker) timerBranch(state *State, id EventID) *State {
	successor := state.Clone()
	successor.depth++
	ev := successor.pending.Pop(id).(TimerFired)
	node := successor.mustNode(ev.Process)
	successor.record(trace.Record{
		Time:    successor.pending.globalTime[ev.Process],
		Kind:    trace.TimerFired,
		Src:     ev.Process,
		Message: ev.Timer,
	})
	if node.crashed {
		return successor
	}
	ctx := &ProcessContext{proc: ev.Process, time: successor.pending.globalTime[ev.Process]}
	node.proc.OnTimer(ctx, ev.Timer)
	applyOutputs(successor, ev.Process, ctx)
	return successor
}

// deliverMessage fires a message event through the destination process,
// capturing its outputs into the successor state.
func deliverMessage(st *State, ev MessageReceived, msg Message) {
	node := st.mustNode(ev.Dst)
	if node.crashed || !st.net.reachable(ev.Src, ev.Dst) {
		st.record(trace.Record{
			Time: st.pending.globalTime[ev.Dst],
			Kind: trace.MessageDropped,
			Src:  ev.Src,
			Dst:  ev.Dst,
			Type: msg.Type,
		})
		return
	}
	st.record(trace.Record{
		Time:    st.pending.globalTime[ev.Dst],
		Kind:    trace.MessageReceived,
		Src:     ev.Src,
		Dst:     ev.Dst,
		Type:    msg.Type,
		Message: msg.Data,
	})
	ctx := &ProcessContext{proc: ev.Dst, time: st.pending.globalTime[ev.Dst]}
	node.proc.OnMessage(ctx, msg, ev.Src)
	applyOutputs(st, ev.Dst, ctx)
}
