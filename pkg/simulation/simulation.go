package simulation

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/trace"
)

// Config holds per-simulation configuration.
type Config struct {
	// Seed initializes the simulation-wide random number generator.
	Seed uint64
	// EnableAsync enables the cooperative task executor, task timers, and
	// event promises. When disabled, Spawn panics and Step dispatches
	// events through handlers only.
	EnableAsync bool
}

// Simulation is a deterministic discrete-event simulation. It owns virtual
// time, the pending event heap, the component registry, the seeded RNG, and
// (in async mode) the cooperative task executor.
//
// A simulation is single-threaded: all handler invocations and task polls
// happen on the goroutine driving Step and its variants.
type Simulation struct {
	st       *state
	exec     *executor
	handlers []Handler
	sink     *trace.Broker
}

// New creates a simulation with the specified random seed, at t=0, with
// async mode enabled.
func New(seed uint64) *Simulation {
	return NewWithConfig(Config{Seed: seed, EnableAsync: true})
}

// NewWithConfig creates a simulation from an explicit configuration.
func NewWithConfig(cfg Config) *Simulation {
	return &Simulation{
		st:   newState(cfg.Seed, cfg.EnableAsync),
		exec: newExecutor(),
	}
}

// SetTraceBroker attaches a broker that receives a record for every
// delivered and undelivered event. Pass nil to detach.
func (s *Simulation) SetTraceBroker(b *trace.Broker) {
	s.sink = b
}

func (s *Simulation) register(name string) ComponentID {
	id := s.st.register(name)
	if int(id) == len(s.handlers) {
		s.handlers = append(s.handlers, nil)
	}
	return id
}

// CreateContext creates a simulation context bound to the named component,
// registering the name if needed. Ids are assigned sequentially from 0.
func (s *Simulation) CreateContext(name string) *Context {
	ctx := &Context{
		id:   s.register(name),
		name: name,
		st:   s.st,
		exec: s.exec,
	}
	s.st.logger.Debug().
		Float64("t", s.st.clock).
		Str("name", name).
		Int32("id", int32(ctx.id)).
		Msg("created context")
	return ctx
}

// AddHandler registers the event handler for the named component and
// returns the component id. Registration is idempotent on name: adding a
// handler for an existing name reuses its id.
func (s *Simulation) AddHandler(name string, handler Handler) ComponentID {
	id := s.register(name)
	s.handlers[id] = handler
	s.st.logger.Debug().
		Float64("t", s.st.clock).
		Str("name", name).
		Int32("id", int32(id)).
		Msg("added handler")
	return id
}

// RemoveHandler removes the event handler for the named component. Pending
// events are cancelled according to policy. In async mode all timers and
// promises owned by the component are cancelled as well; their waiting
// tasks resolve with ErrCancelled at their next poll.
//
// Panics if the name was never registered.
func (s *Simulation) RemoveHandler(name string, policy CancelPolicy) {
	id := s.st.lookupID(name)
	s.handlers[id] = nil

	if s.st.asyncEnabled {
		woken := s.st.cancelComponentTimers(id)
		woken = append(woken, s.st.cancelComponentPromises(id)...)
		sort.Slice(woken, func(i, j int) bool { return woken[i].seq < woken[j].seq })
		for _, t := range woken {
			s.exec.pushReady(t)
		}
		for _, cancel := range s.st.ownerCancels[id] {
			cancel()
		}
		delete(s.st.ownerCancels, id)
	}

	switch policy {
	case CancelIncoming:
		s.st.cancelEvents(func(e Event) bool { return e.Dst == id })
	case CancelOutgoing:
		s.st.cancelEvents(func(e Event) bool { return e.Src == id })
	case CancelAll:
		s.st.cancelEvents(func(e Event) bool { return e.Src == id || e.Dst == id })
	}

	s.st.logger.Debug().
		Float64("t", s.st.clock).
		Str("name", name).
		Int32("id", int32(id)).
		Msg("removed handler")
}

// LookupID returns the id of the named component. Panics on unknown name.
func (s *Simulation) LookupID(name string) ComponentID {
	return s.st.lookupID(name)
}

// LookupName returns the name of the component with the given id. Panics
// on unknown id.
func (s *Simulation) LookupName(id ComponentID) string {
	return s.st.lookupName(id)
}

// Time returns the current virtual time.
func (s *Simulation) Time() float64 {
	return s.st.clock
}

// EventCount returns the total number of events ever emitted, including
// cancelled ones.
func (s *Simulation) EventCount() uint64 {
	return s.st.eventCount
}

// Step performs a single step through the simulation.
//
// In sync mode it pops the earliest pending event, advances virtual time to
// its timestamp, and delivers it. In async mode it runs one ready task if
// there is one and returns; otherwise it fires the earlier of the next
// timer and the next event.
//
// Returns true iff the step made progress; false means no pending events,
// timers, or ready tasks remain.
func (s *Simulation) Step() bool {
	if !s.st.asyncEnabled {
		ev, ok := s.st.nextEvent()
		if !ok {
			return false
		}
		s.deliver(ev)
		return true
	}

	if s.exec.processTask() {
		return true
	}

	timer, hasTimer := s.st.peekTimer()
	ev, hasEvent := s.st.peekEvent()
	switch {
	case !hasTimer && !hasEvent:
		return false
	case hasTimer && (!hasEvent || timer.time <= ev.Time):
		s.processTimer()
	default:
		s.processEvent()
	}
	return true
}

// Steps performs up to count steps, stopping early when no progress can be
// made. Returns true if there may be more pending work.
func (s *Simulation) Steps(count uint64) bool {
	for i := uint64(0); i < count; i++ {
		if !s.Step() {
			return false
		}
	}
	return true
}

// StepUntilNoEvents steps through the simulation until no pending events,
// timers, or ready tasks remain.
func (s *Simulation) StepUntilNoEvents() {
	for s.Step() {
	}
}

// StepUntilTime fires every pending event and timer with a stamp not above
// t (running any tasks they make ready), then advances virtual time to
// exactly t. Returns true if pending events or timers remain beyond t.
func (s *Simulation) StepUntilTime(t float64) bool {
	for {
		if s.st.asyncEnabled {
			for s.exec.processTask() {
			}
		}
		next, ok := s.nextStamp()
		if !ok {
			s.st.setTime(t)
			return false
		}
		if next > t {
			s.st.setTime(t)
			return true
		}
		s.Step()
	}
}

// StepForDuration is StepUntilTime relative to the current time.
func (s *Simulation) StepForDuration(duration float64) bool {
	return s.StepUntilTime(s.st.clock + duration)
}

// nextStamp returns the earliest stamp among pending events and timers.
func (s *Simulation) nextStamp() (float64, bool) {
	ev, hasEvent := s.st.peekEvent()
	if !s.st.asyncEnabled {
		return ev.Time, hasEvent
	}
	timer, hasTimer := s.st.peekTimer()
	switch {
	case hasEvent && hasTimer:
		if timer.time <= ev.Time {
			return timer.time, true
		}
		return ev.Time, true
	case hasEvent:
		return ev.Time, true
	case hasTimer:
		return timer.time, true
	}
	return 0, false
}

// processTimer fires the earliest timer and runs any task it made ready.
func (s *Simulation) processTimer() {
	timer, ok := s.st.nextTimer()
	if !ok {
		return
	}
	timer.slot.completed = true
	metrics.TimersFired.Inc()
	s.exec.pushReady(timer.slot.task)
	s.exec.processTask()
}

// processEvent pops the earliest event, advances time, and either completes
// a matching promise or delivers the event through the handler.
func (s *Simulation) processEvent() {
	ev, ok := s.st.nextEvent()
	if !ok {
		return
	}
	if slot := s.st.takePromise(s.st.awaitKeyFor(ev)); slot != nil {
		s.logTraceEvent(ev)
		slot.event = ev
		slot.completed = true
		metrics.PromisesCompleted.Inc()
		s.exec.pushReady(slot.task)
		s.exec.processTask()
		return
	}
	s.deliver(ev)
}

// deliver dispatches an event through its destination handler, or logs it
// as undelivered when no handler is registered.
func (s *Simulation) deliver(ev Event) {
	var handler Handler
	if int(ev.Dst) >= 0 && int(ev.Dst) < len(s.handlers) {
		handler = s.handlers[ev.Dst]
	}
	if handler == nil {
		s.logUndelivered(ev)
		return
	}
	s.logTraceEvent(ev)
	metrics.EventsDelivered.Inc()
	handler.On(ev)
}

// logTraceEvent emits the structured per-event trace record. Payload
// serialization is skipped unless trace logging or a broker is active.
func (s *Simulation) logTraceEvent(ev Event) {
	if !log.TraceEnabled() && s.sink == nil {
		return
	}
	payload := marshalPayload(ev.Data)
	src := s.st.displayName(ev.Src)
	dst := s.st.displayName(ev.Dst)
	if log.TraceEnabled() {
		s.st.logger.Trace().
			Float64("t", ev.Time).
			Uint64("event_id", uint64(ev.ID)).
			Str("type", TypeTag(ev.Data)).
			Str("src", src).
			Str("dst", dst).
			RawJSON("data", payload).
			Msg("event")
	}
	if s.sink != nil {
		s.sink.Publish(&trace.Record{
			Time:    ev.Time,
			Kind:    trace.EventDelivered,
			EventID: uint64(ev.ID),
			Type:    TypeTag(ev.Data),
			Src:     src,
			Dst:     dst,
			Payload: payload,
		})
	}
}

// logUndelivered records an event dropped due to a missing handler.
func (s *Simulation) logUndelivered(ev Event) {
	metrics.EventsUndelivered.Inc()
	s.st.logger.Warn().
		Float64("t", ev.Time).
		Uint64("event_id", uint64(ev.ID)).
		Str("type", TypeTag(ev.Data)).
		Str("src", s.st.displayName(ev.Src)).
		Str("dst", s.st.displayName(ev.Dst)).
		Msg("undelivered event")
	if s.sink != nil {
		s.sink.Publish(&trace.Record{
			Time:    ev.Time,
			Kind:    trace.EventUndelivered,
			EventID: uint64(ev.ID),
			Type:    TypeTag(ev.Data),
			Src:     s.st.displayName(ev.Src),
			Dst:     s.st.displayName(ev.Dst),
			Payload: marshalPayload(ev.Data),
		})
	}
}

// Spawn starts a detached asynchronous task not owned by any component.
// Detached tasks may sleep but are never cancelled by handler removal.
func (s *Simulation) Spawn(fn func(t *Task)) {
	if !s.st.asyncEnabled {
		panic(fmt.Sprintf("spawn: async mode is disabled (t=%g)", s.st.clock))
	}
	s.exec.spawn(fn)
}

// RegisterKeyGetter associates a correlation-key extractor with payload
// type T. This is a required step before using RecvByKey with T: the kernel
// invokes the getter on each event of that type to discriminate concurrent
// awaits.
func RegisterKeyGetter[T any](s *Simulation, getter func(T) EventKey) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	s.st.registerKeyGetter(typ, func(data any) EventKey {
		return getter(data.(T))
	})
}

// CancelEvents removes all pending events matching pred. Already consumed
// events cannot be cancelled.
func (s *Simulation) CancelEvents(pred func(Event) bool) {
	s.st.cancelEvents(pred)
}

// CancelAndGetEvents removes all pending events matching pred and returns
// them sorted by (time, id).
func (s *Simulation) CancelAndGetEvents(pred func(Event) bool) []Event {
	return s.st.cancelAndGetEvents(pred)
}

// DumpEvents returns a copy of the pending events sorted by (time, id).
func (s *Simulation) DumpEvents() []Event {
	return s.st.dumpEvents()
}

// Rand returns a random float in [0, 1) from the simulation-wide generator.
func (s *Simulation) Rand() float64 {
	return s.st.rnd.Float64()
}

// GenRange returns a random float in [lo, hi).
func (s *Simulation) GenRange(lo, hi float64) float64 {
	return lo + s.st.rnd.Float64()*(hi-lo)
}

// GenIntRange returns a random int in [lo, hi).
func (s *Simulation) GenIntRange(lo, hi int) int {
	return lo + s.st.rnd.Intn(hi-lo)
}

// Sample draws a value from the given distribution.
func (s *Simulation) Sample(dist Distribution) float64 {
	return dist.Sample(s.st.rnd)
}

// RandomString returns a random alphanumeric string of length n.
func (s *Simulation) RandomString(n int) string {
	return randomString(s.st.rnd, n)
}
