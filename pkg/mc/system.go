package mc

import (
	"fmt"

	"github.com/cuemby/warp/pkg/trace"
)

// System assembles the initial state for model checking: processes, their
// startup inputs, and the network configuration. The same surface drives
// staged scenarios via RunFromStatesWithChange, where the mutation callback
// receives a System wrapping an intermediate state.
type System struct {
	state *State
}

// NewSystem creates an empty system.
func NewSystem() *System {
	return &System{state: newState()}
}

// AddProcess registers a named process.
func (s *System) AddProcess(name string, proc Process) {
	if _, exists := s.state.nodes[name]; exists {
		panic(fmt.Sprintf("mc: duplicate process name %q", name))
	}
	s.state.nodes[name] = &nodeState{proc: proc}
}

// ProcNames returns the registered process names in sorted order.
func (s *System) ProcNames() []string {
	return s.state.ProcNames()
}

// State returns the system's current state.
func (s *System) State() *State {
	return s.state
}

// SetDeliveryBound configures reliable message delivery: every message sent
// after this call is guaranteed to arrive within maxDelay of its send time,
// and the dependency resolver forbids later timers from overtaking it.
func (s *System) SetDeliveryBound(maxDelay float64) {
	s.state.net.options = DeliveryOptions{Guaranteed: true, MaxDelay: maxDelay}
}

// SetUnreliable configures best-effort delivery with the given fault
// branches explored per message.
func (s *System) SetUnreliable(canDrop, canDuplicate, canCorrupt bool) {
	s.state.net.options = DeliveryOptions{
		CanDrop:      canDrop,
		CanDuplicate: canDuplicate,
		CanCorrupt:   canCorrupt,
	}
}

// SendLocal delivers a local message to a process, capturing the messages,
// timers, and local outputs it produces into the pending state.
func (s *System) SendLocal(name string, msg Message) {
	deliverLocal(s.state, name, msg)
}

// CrashNode crashes a process: its pending timers and in-flight messages
// are removed and future deliveries to it are dropped.
func (s *System) CrashNode(name string) {
	node := s.state.mustNode(name)
	node.crashed = true
	s.state.pending.RemoveProc(name)
	s.state.record(trace.Record{
		Time: s.state.pending.globalTime[name],
		Kind: trace.NodeCrashed,
		Src:  name,
	})
}

// RecoverNode recovers a crashed process with its state intact.
func (s *System) RecoverNode(name string) {
	node := s.state.mustNode(name)
	node.crashed = false
	s.state.record(trace.Record{
		Time: s.state.pending.globalTime[name],
		Kind: trace.NodeRecovered,
		Src:  name,
	})
}

// DisconnectNode detaches a process from the network: messages it sends or
// should receive are dropped while disconnected.
func (s *System) DisconnectNode(name string) {
	s.state.mustNode(name)
	s.state.net.disconnected[name] = true
	s.state.record(trace.Record{
		Time: s.state.pending.globalTime[name],
		Kind: trace.NetworkPartitioned,
		Src:  name,
	})
}

// ConnectNode reattaches a disconnected process.
func (s *System) ConnectNode(name string) {
	s.state.mustNode(name)
	delete(s.state.net.disconnected, name)
	s.state.record(trace.Record{
		Time: s.state.pending.globalTime[name],
		Kind: trace.NetworkHealed,
		Src:  name,
	})
}

// deliverLocal invokes OnLocalMessage on a process and applies the captured
// outputs to the state.
func deliverLocal(st *State, name string, msg Message) {
	node := st.mustNode(name)
	if node.crashed {
		return
	}
	st.record(trace.Record{
		Time:    st.pending.globalTime[name],
		Kind:    trace.LocalMessageReceived,
		Dst:     name,
		Type:    msg.Type,
		Message: msg.Data,
	})
	ctx := &ProcessContext{proc: name, time: st.pending.globalTime[name]}
	node.proc.OnLocalMessage(ctx, msg)
	applyOutputs(st, name, ctx)
}

// applyOutputs pushes the messages and timer operations captured by one
// handler invocation into the pending state and records them in the trace.
func applyOutputs(st *State, from string, ctx *ProcessContext) {
	now := st.pending.globalTime[from]
	for _, out := range ctx.sent {
		dstNode := st.mustNode(out.dst)
		if dstNode.crashed || !st.net.reachable(from, out.dst) {
			st.record(trace.Record{
				Time: now,
				Kind: trace.MessageDropped,
				Src:  from,
				Dst:  out.dst,
				Type: out.msg.Type,
			})
			continue
		}
		st.pending.Push(MessageReceived{
			Msg:     out.msg,
			Src:     from,
			Dst:     out.dst,
			Options: st.net.options,
		})
		st.record(trace.Record{
			Time:    now,
			Kind:    trace.MessageSent,
			Src:     from,
			Dst:     out.dst,
			Type:    out.msg.Type,
			Message: out.msg.Data,
		})
	}
	for _, timer := range ctx.timersSet {
		st.pending.CancelTimer(from, timer.name)
		st.pending.Push(TimerFired{Process: from, Timer: timer.name, Duration: timer.delay})
		st.record(trace.Record{
			Time:    now,
			Kind:    trace.TimerSet,
			Src:     from,
			Message: timer.name,
		})
	}
	for _, timer := range ctx.timersCancelled {
		if st.pending.CancelTimer(from, timer) {
			st.record(trace.Record{
				Time:    now,
				Kind:    trace.TimerCancelled,
				Src:     from,
				Message: timer,
			})
		}
	}
	for _, local := range ctx.locals {
		st.mustNode(from).localOutbox = append(st.mustNode(from).localOutbox, local)
		st.record(trace.Record{
			Time:    now,
			Kind:    trace.LocalMessageSent,
			Src:     from,
			Type:    local.Type,
			Message: local.Data,
		})
	}
}
