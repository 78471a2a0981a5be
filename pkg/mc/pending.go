package mc

import (
	"fmt"
	"io"
	"sort"
)

// timeMapping is a bidirectional index between event ids and their times:
// ordered time → id-set lookup in one direction, id → time in the other.
type timeMapping struct {
	times  []float64 // sorted, unique
	byTime map[float64][]EventID
	byID   map[EventID]float64
}

func newTimeMapping() *timeMapping {
	return &timeMapping{
		byTime: make(map[float64][]EventID),
		byID:   make(map[EventID]float64),
	}
}

func (m *timeMapping) add(id EventID, t float64) {
	if _, exists := m.byID[id]; exists {
		panic(fmt.Sprintf("mc: event %d already indexed", id))
	}
	m.byID[id] = t
	group, exists := m.byTime[t]
	if !exists {
		idx := sort.SearchFloat64s(m.times, t)
		m.times = append(m.times, 0)
		copy(m.times[idx+1:], m.times[idx:])
		m.times[idx] = t
	}
	idx := sort.Search(len(group), func(i int) bool { return group[i] >= id })
	group = append(group, 0)
	copy(group[idx+1:], group[idx:])
	group[idx] = id
	m.byTime[t] = group
}

func (m *timeMapping) remove(id EventID) bool {
	t, exists := m.byID[id]
	if !exists {
		return false
	}
	delete(m.byID, id)
	group := m.byTime[t]
	for i, g := range group {
		if g == id {
			group = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(group) == 0 {
		delete(m.byTime, t)
		idx := sort.SearchFloat64s(m.times, t)
		m.times = append(m.times[:idx], m.times[idx+1:]...)
	} else {
		m.byTime[t] = group
	}
	return true
}

func (m *timeMapping) contains(id EventID) bool {
	_, exists := m.byID[id]
	return exists
}

func (m *timeMapping) minTime() (float64, bool) {
	if len(m.times) == 0 {
		return 0, false
	}
	return m.times[0], true
}

// minGroup returns the ids at the earliest time.
func (m *timeMapping) minGroup() []EventID {
	if len(m.times) == 0 {
		return nil
	}
	return m.byTime[m.times[0]]
}

// hasBefore reports whether any entry exists strictly before t.
func (m *timeMapping) hasBefore(t float64) bool {
	return len(m.times) > 0 && m.times[0] < t
}

// firstAfter returns the ids at the smallest time strictly after t.
func (m *timeMapping) firstAfter(t float64) []EventID {
	idx := sort.SearchFloat64s(m.times, t)
	for idx < len(m.times) && m.times[idx] == t {
		idx++
	}
	if idx == len(m.times) {
		return nil
	}
	return m.byTime[m.times[idx]]
}

// allIDs returns every indexed id in ascending order.
func (m *timeMapping) allIDs() []EventID {
	ids := make([]EventID, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *timeMapping) clone() *timeMapping {
	c := newTimeMapping()
	c.times = append([]float64(nil), m.times...)
	for t, group := range m.byTime {
		c.byTime[t] = append([]EventID(nil), group...)
	}
	for id, t := range m.byID {
		c.byID[id] = t
	}
	return c
}

// dependencyResolver tracks and enforces per-node causal constraints among
// pending events: a timer may not fire before an earlier timer on the same
// node, and a reliable message may not be overtaken by a timer scheduled
// past its delivery deadline.
type dependencyResolver struct {
	procTimers   map[string]*timeMapping
	procMessages map[string]*timeMapping
	eventToProc  map[EventID]string
	// bestEffort marks messages with no delivery guarantee: always
	// available, never blocking.
	bestEffort map[EventID]bool
}

func newDependencyResolver() *dependencyResolver {
	return &dependencyResolver{
		procTimers:   make(map[string]*timeMapping),
		procMessages: make(map[string]*timeMapping),
		eventToProc:  make(map[EventID]string),
		bestEffort:   make(map[EventID]bool),
	}
}

func (r *dependencyResolver) timersAt(proc string) *timeMapping {
	m, exists := r.procTimers[proc]
	if !exists {
		m = newTimeMapping()
		r.procTimers[proc] = m
	}
	return m
}

func (r *dependencyResolver) messagesAt(proc string) *timeMapping {
	m, exists := r.procMessages[proc]
	if !exists {
		m = newTimeMapping()
		r.procMessages[proc] = m
	}
	return m
}

func (r *dependencyResolver) mapEvent(proc string, id EventID) {
	if _, dup := r.eventToProc[id]; dup {
		panic(fmt.Sprintf("mc: duplicate event id %d", id))
	}
	r.eventToProc[id] = proc
}

// availableAt returns the events currently permitted to fire at proc: every
// pending message, plus the earliest-time timer group unless a message
// deadline precedes it.
func (r *dependencyResolver) availableAt(proc string) []EventID {
	messages := r.messagesAt(proc)
	timers := r.timersAt(proc)
	ids := append([]EventID(nil), messages.allIDs()...)
	if timerTime, ok := timers.minTime(); ok {
		minMsg, hasMsg := messages.minTime()
		if !hasMsg || minMsg >= timerTime {
			ids = append(ids, timers.minGroup()...)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// addTimer registers a timer at the given absolute time. Returns whether it
// is immediately available and the set of later timers it blocks.
func (r *dependencyResolver) addTimer(proc string, t float64, id EventID) (bool, []EventID) {
	r.mapEvent(proc, id)
	timers := r.timersAt(proc)
	timers.add(id, t)

	available := !timers.hasBefore(t)
	if msgTime, ok := r.messagesAt(proc).minTime(); ok && msgTime < t {
		available = false
	}
	blocked := timers.firstAfter(t)
	return available, blocked
}

// addMessage registers a reliable message with the given delivery deadline.
// Returns the timers it blocks (the node's earliest timer group, when that
// group is scheduled past the deadline).
func (r *dependencyResolver) addMessage(proc string, deadline float64, id EventID) []EventID {
	r.mapEvent(proc, id)
	r.messagesAt(proc).add(id, deadline)

	timers := r.timersAt(proc)
	if timerTime, ok := timers.minTime(); ok && timerTime > deadline {
		return timers.minGroup()
	}
	return nil
}

// addBestEffort registers a message with no delivery guarantee. It is
// always available and constrains nothing.
func (r *dependencyResolver) addBestEffort(proc string, id EventID) {
	r.mapEvent(proc, id)
	r.bestEffort[id] = true
}

// cancelTimer drops a pending timer and returns the recomputed availability
// at its node.
func (r *dependencyResolver) cancelTimer(proc string, id EventID) []EventID {
	r.timersAt(proc).remove(id)
	delete(r.eventToProc, id)
	return r.availableAt(proc)
}

// removeMessage drops a pending message without firing it and returns the
// recomputed availability at its node.
func (r *dependencyResolver) removeMessage(proc string, id EventID) []EventID {
	if r.bestEffort[id] {
		delete(r.bestEffort, id)
		delete(r.eventToProc, id)
		return r.availableAt(proc)
	}
	r.messagesAt(proc).remove(id)
	delete(r.eventToProc, id)
	return r.availableAt(proc)
}

// pop fires an event. Popping a timer that is not the node's earliest, or
// one blocked by a reliable message, is a programmer error. Returns the
// recomputed availability at the node.
func (r *dependencyResolver) pop(id EventID) []EventID {
	proc, exists := r.eventToProc[id]
	if !exists {
		panic(fmt.Sprintf("mc: pop of unknown event %d", id))
	}
	delete(r.eventToProc, id)

	if r.bestEffort[id] {
		delete(r.bestEffort, id)
		return r.availableAt(proc)
	}
	if r.messagesAt(proc).contains(id) {
		r.messagesAt(proc).remove(id)
		return r.availableAt(proc)
	}

	timers := r.timersAt(proc)
	timerTime, ok := timers.minTime()
	if !ok {
		panic(fmt.Sprintf("mc: pop of untracked event %d", id))
	}
	if msgTime, hasMsg := r.messagesAt(proc).minTime(); hasMsg && timerTime > msgTime {
		panic("mc: timer is blocked by message")
	}
	group := timers.minGroup()
	found := false
	for _, g := range group {
		if g == id {
			found = true
			break
		}
	}
	if !found {
		panic("mc: event to pop was not first in queue")
	}
	timers.remove(id)
	return r.availableAt(proc)
}

func (r *dependencyResolver) clone() *dependencyResolver {
	c := newDependencyResolver()
	for proc, m := range r.procTimers {
		c.procTimers[proc] = m.clone()
	}
	for proc, m := range r.procMessages {
		c.procMessages[proc] = m.clone()
	}
	for id, proc := range r.eventToProc {
		c.eventToProc[id] = proc
	}
	for id := range r.bestEffort {
		c.bestEffort[id] = true
	}
	return c
}

type timerKey struct {
	proc  string
	timer string
}

type timedEvent struct {
	event     Event
	startTime float64
}

// PendingEvents is the model checker's replacement for the kernel's event
// heap: a bag of pending events plus the subset currently admissible as the
// next step, maintained by the dependency resolver.
type PendingEvents struct {
	events     map[EventID]timedEvent
	timerIndex map[timerKey]EventID
	available  map[EventID]struct{}
	resolver   *dependencyResolver
	counter    EventID
	globalTime map[string]float64
}

// NewPendingEvents creates an empty pending-events bag.
func NewPendingEvents() *PendingEvents {
	return &PendingEvents{
		events:     make(map[EventID]timedEvent),
		timerIndex: make(map[timerKey]EventID),
		available:  make(map[EventID]struct{}),
		resolver:   newDependencyResolver(),
		globalTime: make(map[string]float64),
	}
}

// Push registers a pending event and returns its id.
func (p *PendingEvents) Push(event Event) EventID {
	id := p.counter
	p.counter++
	proc := event.Proc()
	start := p.globalTime[proc]

	switch ev := event.(type) {
	case MessageReceived:
		if ev.Options.Guaranteed {
			blocked := p.resolver.addMessage(proc, start+ev.Options.MaxDelay, id)
			for _, b := range blocked {
				delete(p.available, b)
			}
		} else {
			p.resolver.addBestEffort(proc, id)
		}
		p.available[id] = struct{}{}
	case TimerFired:
		p.timerIndex[timerKey{proc: ev.Process, timer: ev.Timer}] = id
		available, blocked := p.resolver.addTimer(proc, start+ev.Duration, id)
		if available {
			p.available[id] = struct{}{}
		}
		for _, b := range blocked {
			delete(p.available, b)
		}
	default:
		panic(fmt.Sprintf("mc: unknown event kind %T", event))
	}

	p.events[id] = timedEvent{event: event, startTime: start}
	return id
}

// CancelTimer removes the pending timer (proc, timer), if any, and updates
// availability at the node.
func (p *PendingEvents) CancelTimer(proc, timer string) bool {
	key := timerKey{proc: proc, timer: timer}
	id, exists := p.timerIndex[key]
	if !exists {
		return false
	}
	if _, pending := p.events[id]; !pending {
		return false
	}
	delete(p.timerIndex, key)
	delete(p.events, id)
	delete(p.available, id)
	unblocked := p.resolver.cancelTimer(proc, id)
	p.extendAvailable(unblocked)
	return true
}

// Drop removes a pending message without delivering it (lost in transit)
// and updates availability at the node.
func (p *PendingEvents) Drop(id EventID) Event {
	te, exists := p.events[id]
	if !exists {
		panic(fmt.Sprintf("mc: drop of unknown event %d", id))
	}
	if _, isMsg := te.event.(MessageReceived); !isMsg {
		panic(fmt.Sprintf("mc: drop of non-message event %d", id))
	}
	delete(p.events, id)
	delete(p.available, id)
	unblocked := p.resolver.removeMessage(te.event.Proc(), id)
	p.extendAvailable(unblocked)
	return te.event
}

// RemoveProc drops every pending event belonging to proc, modeling a node
// crash.
func (p *PendingEvents) RemoveProc(proc string) {
	ids := make([]EventID, 0)
	for id, te := range p.events {
		if te.event.Proc() == proc {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		te := p.events[id]
		delete(p.events, id)
		delete(p.available, id)
		switch ev := te.event.(type) {
		case MessageReceived:
			p.resolver.removeMessage(proc, id)
		case TimerFired:
			delete(p.timerIndex, timerKey{proc: ev.Process, timer: ev.Timer})
			p.resolver.cancelTimer(proc, id)
		}
	}
}

// Available returns the ids currently permitted to fire, in ascending order.
func (p *PendingEvents) Available() []EventID {
	ids := make([]EventID, 0, len(p.available))
	for id := range p.available {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns a pending event by id.
func (p *PendingEvents) Get(id EventID) (Event, bool) {
	te, exists := p.events[id]
	return te.event, exists
}

// Len returns the number of pending events.
func (p *PendingEvents) Len() int {
	return len(p.events)
}

// Pop fires an available event, advancing the node's local time for timers.
// Popping an event that is not available is a programmer error.
func (p *PendingEvents) Pop(id EventID) Event {
	if _, ok := p.available[id]; !ok {
		panic(fmt.Sprintf("mc: pop of unavailable event %d", id))
	}
	delete(p.available, id)
	unblocked := p.resolver.pop(id)
	p.extendAvailable(unblocked)

	te := p.events[id]
	delete(p.events, id)
	if timer, isTimer := te.event.(TimerFired); isTimer {
		delete(p.timerIndex, timerKey{proc: timer.Process, timer: timer.Timer})
		fireTime := te.startTime + timer.Duration
		if p.globalTime[timer.Process] > fireTime {
			panic(fmt.Sprintf("mc: node %s time moved backwards (%g > %g)",
				timer.Process, p.globalTime[timer.Process], fireTime))
		}
		p.globalTime[timer.Process] = fireTime
	}
	return te.event
}

// extendAvailable marks the given still-pending ids available.
func (p *PendingEvents) extendAvailable(ids []EventID) {
	for _, id := range ids {
		if _, pending := p.events[id]; pending {
			p.available[id] = struct{}{}
		}
	}
}

func (p *PendingEvents) Clone() *PendingEvents {
	c := &PendingEvents{
		events:     make(map[EventID]timedEvent, len(p.events)),
		timerIndex: make(map[timerKey]EventID, len(p.timerIndex)),
		available:  make(map[EventID]struct{}, len(p.available)),
		resolver:   p.resolver.clone(),
		counter:    p.counter,
		globalTime: make(map[string]float64, len(p.globalTime)),
	}
	for id, te := range p.events {
		c.events[id] = te
	}
	for key, id := range p.timerIndex {
		c.timerIndex[key] = id
	}
	for id := range p.available {
		c.available[id] = struct{}{}
	}
	for proc, t := range p.globalTime {
		c.globalTime[proc] = t
	}
	return c
}

// hashInto writes a stable fingerprint of the pending-events bag.
func (p *PendingEvents) hashInto(w io.Writer) {
	ids := make([]EventID, 0, len(p.events))
	for id := range p.events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		te := p.events[id]
		fmt.Fprintf(w, "|%d@%g:", id, te.startTime)
		te.event.hashInto(w)
	}
	procs := make([]string, 0, len(p.globalTime))
	for proc := range p.globalTime {
		procs = append(procs, proc)
	}
	sort.Strings(procs)
	for _, proc := range procs {
		fmt.Fprintf(w, "|gt:%s=%g", proc, p.globalTime[proc])
	}
}
