package simulation

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/metrics"
)

// promiseKey routes an incoming event to a waiting task. Matching is exact:
// the event's source, destination, payload type, and (when a key getter is
// registered for the type) correlation key must all agree.
type promiseKey struct {
	src    ComponentID
	dst    ComponentID
	typ    reflect.Type
	key    EventKey
	hasKey bool
}

// awaitSlot is the one-shot suspension slot shared between a waiting task
// and the kernel path that completes it.
type awaitSlot struct {
	task      *task
	event     Event
	completed bool
	cancelled bool
}

// state owns all mutable kernel data: the virtual clock, the pending event
// heap, component tables, the RNG, and the async wait-sets. It is accessed
// from exactly one goroutine at a time; the task executor's handoff protocol
// preserves this discipline for spawned tasks.
type state struct {
	clock      float64
	rnd        *rand.Rand
	eventCount uint64

	queue     eventHeap
	cancelled map[EventID]struct{}

	names []string
	ids   map[string]ComponentID

	asyncEnabled bool
	timers       timerHeap
	timerSeq     uint64
	promises     map[promiseKey]*awaitSlot
	keyGetters   map[reflect.Type]func(any) EventKey
	ownerCancels map[ComponentID][]func()

	logger zerolog.Logger
}

func newState(seed uint64, asyncEnabled bool) *state {
	return &state{
		rnd:          rand.New(rand.NewSource(int64(seed))),
		cancelled:    make(map[EventID]struct{}),
		ids:          make(map[string]ComponentID),
		asyncEnabled: asyncEnabled,
		promises:     make(map[promiseKey]*awaitSlot),
		keyGetters:   make(map[reflect.Type]func(any) EventKey),
		ownerCancels: make(map[ComponentID][]func()),
		logger:       log.WithComponent("simulation"),
	}
}

// register assigns a dense id to name, reusing the existing id if the name
// is already known.
func (st *state) register(name string) ComponentID {
	if id, ok := st.ids[name]; ok {
		return id
	}
	id := ComponentID(len(st.names))
	st.names = append(st.names, name)
	st.ids[name] = id
	return id
}

// lookupID panics on an unknown name: resolving a component that was never
// registered is a programmer error.
func (st *state) lookupID(name string) ComponentID {
	id, ok := st.ids[name]
	if !ok {
		panic(fmt.Sprintf("lookup_id: unknown component name %q at t=%g", name, st.clock))
	}
	return id
}

func (st *state) lookupName(id ComponentID) string {
	if id < 0 || int(id) >= len(st.names) {
		panic(fmt.Sprintf("lookup_name: unknown component id %d at t=%g", id, st.clock))
	}
	return st.names[int(id)]
}

// displayName renders an id for the trace without panicking on NoComponent.
func (st *state) displayName(id ComponentID) string {
	if id < 0 || int(id) >= len(st.names) {
		return fmt.Sprintf("#%d", id)
	}
	return st.names[int(id)]
}

// emit timestamps and enqueues an event, returning its id. A negative or
// NaN delay is a programmer error.
func (st *state) emit(data any, src, dst ComponentID, delay float64) EventID {
	if delay < 0 || math.IsNaN(delay) {
		panic(fmt.Sprintf("emit: invalid delay %v from %s to %s at t=%g",
			delay, st.displayName(src), st.displayName(dst), st.clock))
	}
	id := EventID(st.eventCount)
	st.eventCount++
	heap.Push(&st.queue, Event{
		ID:   id,
		Time: st.clock + delay,
		Src:  src,
		Dst:  dst,
		Data: data,
	})
	metrics.EventsEmitted.Inc()
	metrics.PendingEvents.Set(float64(len(st.queue) - len(st.cancelled)))
	return id
}

// peekEvent returns the earliest pending event without consuming it,
// discarding cancelled entries that have reached the top of the heap.
func (st *state) peekEvent() (Event, bool) {
	for len(st.queue) > 0 {
		top := st.queue[0]
		if _, dead := st.cancelled[top.ID]; !dead {
			return top, true
		}
		heap.Pop(&st.queue)
		delete(st.cancelled, top.ID)
	}
	return Event{}, false
}

// nextEvent pops the earliest pending event and advances the clock to its
// timestamp.
func (st *state) nextEvent() (Event, bool) {
	ev, ok := st.peekEvent()
	if !ok {
		return Event{}, false
	}
	heap.Pop(&st.queue)
	st.clock = ev.Time
	metrics.PendingEvents.Set(float64(len(st.queue) - len(st.cancelled)))
	return ev, true
}

// cancelEvent removes a single pending event by id. Cancelling an already
// consumed event is a no-op.
func (st *state) cancelEvent(id EventID) {
	for i := range st.queue {
		if st.queue[i].ID == id {
			st.cancelled[id] = struct{}{}
			metrics.EventsCancelled.Inc()
			metrics.PendingEvents.Set(float64(len(st.queue) - len(st.cancelled)))
			return
		}
	}
}

// cancelEvents removes all pending events matching pred.
func (st *state) cancelEvents(pred func(Event) bool) {
	st.cancelAndGetEvents(pred)
}

// cancelAndGetEvents removes all pending events matching pred and returns
// them sorted by (time, id).
func (st *state) cancelAndGetEvents(pred func(Event) bool) []Event {
	var removed []Event
	kept := st.queue[:0]
	for _, ev := range st.queue {
		if _, dead := st.cancelled[ev.ID]; dead {
			delete(st.cancelled, ev.ID)
			continue
		}
		if pred(ev) {
			removed = append(removed, ev)
			continue
		}
		kept = append(kept, ev)
	}
	st.queue = kept
	heap.Init(&st.queue)
	sort.Slice(removed, func(i, j int) bool {
		if removed[i].Time != removed[j].Time {
			return removed[i].Time < removed[j].Time
		}
		return removed[i].ID < removed[j].ID
	})
	metrics.EventsCancelled.Add(float64(len(removed)))
	metrics.PendingEvents.Set(float64(len(st.queue)))
	return removed
}

// dumpEvents returns a copy of the pending events sorted by (time, id).
func (st *state) dumpEvents() []Event {
	events := make([]Event, 0, len(st.queue))
	for _, ev := range st.queue {
		if _, dead := st.cancelled[ev.ID]; dead {
			continue
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].ID < events[j].ID
	})
	return events
}

// setTime advances the clock to t. The clock never moves backwards.
func (st *state) setTime(t float64) {
	if t > st.clock {
		st.clock = t
	}
}

// addTimer schedules a task timer at an absolute fire time.
func (st *state) addTimer(owner ComponentID, fireTime float64, slot *awaitSlot) *timerEntry {
	entry := &timerEntry{
		id:    st.timerSeq,
		owner: owner,
		time:  fireTime,
		slot:  slot,
	}
	st.timerSeq++
	heap.Push(&st.timers, entry)
	return entry
}

// peekTimer returns the earliest live timer, discarding cancelled entries.
func (st *state) peekTimer() (*timerEntry, bool) {
	for len(st.timers) > 0 {
		top := st.timers[0]
		if !top.cancelled {
			return top, true
		}
		heap.Pop(&st.timers)
	}
	return nil, false
}

// nextTimer pops the earliest live timer and advances the clock to its
// fire time.
func (st *state) nextTimer() (*timerEntry, bool) {
	entry, ok := st.peekTimer()
	if !ok {
		return nil, false
	}
	heap.Pop(&st.timers)
	st.clock = entry.time
	return entry, true
}

// installPromise records a one-shot await on key. At most one promise may
// exist per key; a duplicate is a programmer error.
func (st *state) installPromise(key promiseKey, slot *awaitSlot) {
	if _, exists := st.promises[key]; exists {
		panic(fmt.Sprintf("recv: duplicate promise for type %s from %s to %s at t=%g",
			key.typ, st.displayName(key.src), st.displayName(key.dst), st.clock))
	}
	st.promises[key] = slot
}

// takePromise consumes and returns the promise matching key, if any.
func (st *state) takePromise(key promiseKey) *awaitSlot {
	slot, ok := st.promises[key]
	if !ok {
		return nil
	}
	delete(st.promises, key)
	return slot
}

// registerKeyGetter associates a correlation-key extractor with a payload type.
func (st *state) registerKeyGetter(typ reflect.Type, getter func(any) EventKey) {
	st.keyGetters[typ] = getter
}

// awaitKeyFor builds the promise lookup key for an incoming event,
// including the correlation key when a getter is registered for its type.
func (st *state) awaitKeyFor(ev Event) promiseKey {
	key := promiseKey{src: ev.Src, dst: ev.Dst, typ: payloadType(ev.Data)}
	if getter, ok := st.keyGetters[key.typ]; ok {
		key.hasKey = true
		key.key = getter(ev.Data)
	}
	return key
}

// registerOwnerCancel adds a cancellation hook invoked when the owner's
// handler is removed. Used by blocking queues to release their waiters.
func (st *state) registerOwnerCancel(owner ComponentID, cancel func()) {
	st.ownerCancels[owner] = append(st.ownerCancels[owner], cancel)
}

// cancelComponentTimers cancels all unfired timers owned by id and returns
// the tasks that were waiting on them.
func (st *state) cancelComponentTimers(id ComponentID) []*task {
	var woken []*task
	for _, entry := range st.timers {
		if entry.cancelled || entry.owner != id {
			continue
		}
		entry.cancelled = true
		if entry.slot != nil {
			entry.slot.cancelled = true
			if entry.slot.task != nil {
				woken = append(woken, entry.slot.task)
			}
		}
	}
	return woken
}

// cancelComponentPromises cancels all promises owned by id and returns the
// tasks that were waiting on them.
func (st *state) cancelComponentPromises(id ComponentID) []*task {
	var woken []*task
	for key, slot := range st.promises {
		if key.dst != id {
			continue
		}
		delete(st.promises, key)
		slot.cancelled = true
		if slot.task != nil {
			woken = append(woken, slot.task)
		}
	}
	return woken
}
