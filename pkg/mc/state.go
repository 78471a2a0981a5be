package mc

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/cuemby/warp/pkg/trace"
)

// nodeState is one node's slice of a model-checker state.
type nodeState struct {
	proc        Process
	crashed     bool
	localOutbox []Message
}

func (n *nodeState) clone() *nodeState {
	return &nodeState{
		proc:        n.proc.Clone(),
		crashed:     n.crashed,
		localOutbox: append([]Message(nil), n.localOutbox...),
	}
}

// netState is the network fault state: per-node connectivity and the
// delivery options stamped on newly sent messages.
type netState struct {
	disconnected map[string]bool
	options      DeliveryOptions
}

func newNetState() *netState {
	return &netState{
		disconnected: make(map[string]bool),
		// Stable network with a unit delivery bound by default.
		options: DeliveryOptions{Guaranteed: true, MaxDelay: 1.0},
	}
}

func (n *netState) clone() *netState {
	c := &netState{
		disconnected: make(map[string]bool, len(n.disconnected)),
		options:      n.options,
	}
	for proc := range n.disconnected {
		c.disconnected[proc] = true
	}
	return c
}

func (n *netState) reachable(src, dst string) bool {
	return !n.disconnected[src] && !n.disconnected[dst]
}

// State is one vertex of the explored state space: the cloned process
// states, the pending-events bag, the network fault state, and the trace
// that produced it. States are deduplicated by content hash.
type State struct {
	nodes   map[string]*nodeState
	pending *PendingEvents
	net     *netState
	trace   []trace.Record
	depth   int
}

func newState() *State {
	return &State{
		nodes:   make(map[string]*nodeState),
		pending: NewPendingEvents(),
		net:     newNetState(),
	}
}

// Clone produces an independent deep copy for branching.
func (s *State) Clone() *State {
	c := &State{
		nodes:   make(map[string]*nodeState, len(s.nodes)),
		pending: s.pending.Clone(),
		net:     s.net.clone(),
		trace:   append([]trace.Record(nil), s.trace...),
		depth:   s.depth,
	}
	for name, node := range s.nodes {
		c.nodes[name] = node.clone()
	}
	return c
}

// Depth returns the number of transitions from the root state.
func (s *State) Depth() int { return s.depth }

// Trace returns the log entries that produced this state.
func (s *State) Trace() []trace.Record { return s.trace }

// Pending returns the state's pending-events bag.
func (s *State) Pending() *PendingEvents { return s.pending }

// ProcNames returns the registered process names in sorted order.
func (s *State) ProcNames() []string {
	names := make([]string, 0, len(s.nodes))
	for name := range s.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Proc returns the process instance for name, for predicate inspection.
// Panics on unknown name.
func (s *State) Proc(name string) Process {
	return s.mustNode(name).proc
}

// LocalOutbox returns the local messages emitted by name so far.
func (s *State) LocalOutbox(name string) []Message {
	return s.mustNode(name).localOutbox
}

// Crashed reports whether the node is crashed.
func (s *State) Crashed(name string) bool {
	return s.mustNode(name).crashed
}

func (s *State) mustNode(name string) *nodeState {
	node, exists := s.nodes[name]
	if !exists {
		panic(fmt.Sprintf("mc: unknown process %q", name))
	}
	return node
}

func (s *State) record(rec trace.Record) {
	s.trace = append(s.trace, rec)
}

// Hash returns the state's content hash: process fingerprints, crash flags,
// outboxes, pending events, and network fault state. The trace and depth
// are excluded, so states reached by different routes deduplicate.
func (s *State) Hash() uint64 {
	h := fnv.New64a()
	for _, name := range s.ProcNames() {
		node := s.nodes[name]
		fmt.Fprintf(h, "proc:%s|crashed=%v|", name, node.crashed)
		for _, msg := range node.localOutbox {
			fmt.Fprintf(h, "out:%s:%s|", msg.Type, msg.Data)
		}
		node.proc.StateHash(h)
	}
	s.pending.hashInto(h)
	procs := make([]string, 0, len(s.net.disconnected))
	for proc := range s.net.disconnected {
		procs = append(procs, proc)
	}
	sort.Strings(procs)
	for _, proc := range procs {
		fmt.Fprintf(h, "disc:%s|", proc)
	}
	fmt.Fprintf(h, "net:%v:%g:%v:%v:%v",
		s.net.options.Guaranteed, s.net.options.MaxDelay,
		s.net.options.CanDrop, s.net.options.CanDuplicate, s.net.options.CanCorrupt)
	return h.Sum64()
}
