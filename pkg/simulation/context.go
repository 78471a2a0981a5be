package simulation

import (
	"fmt"
	"reflect"
)

// Context is a component's gateway to the kernel. Components and tasks
// interact with the simulation exclusively through their context; the raw
// kernel is never exposed.
type Context struct {
	id   ComponentID
	name string
	st   *state
	exec *executor
}

// ID returns the id of the component bound to this context.
func (c *Context) ID() ComponentID { return c.id }

// Name returns the name of the component bound to this context.
func (c *Context) Name() string { return c.name }

// Time returns the current virtual time.
func (c *Context) Time() float64 { return c.st.clock }

// Emit queues an event for dst after the given delay and returns its id.
// Panics on a negative delay.
func (c *Context) Emit(data any, dst ComponentID, delay float64) EventID {
	return c.st.emit(data, c.id, dst, delay)
}

// EmitSelf queues an event for this component after the given delay.
func (c *Context) EmitSelf(data any, delay float64) EventID {
	return c.st.emit(data, c.id, c.id, delay)
}

// EmitNow queues an event for dst at the current virtual time.
func (c *Context) EmitNow(data any, dst ComponentID) EventID {
	return c.st.emit(data, c.id, dst, 0)
}

// EmitAs queues an event on behalf of another source component. Used by
// infrastructure components that relay traffic, such as the network model.
func (c *Context) EmitAs(data any, src, dst ComponentID, delay float64) EventID {
	return c.st.emit(data, src, dst, delay)
}

// CancelEvent removes a pending event by id. Cancelling an already
// consumed event is a no-op.
func (c *Context) CancelEvent(id EventID) {
	c.st.cancelEvent(id)
}

// LookupName resolves a component id to its name. Panics on unknown id.
func (c *Context) LookupName(id ComponentID) string {
	return c.st.lookupName(id)
}

// LookupID resolves a component name to its id. Panics on unknown name.
func (c *Context) LookupID(name string) ComponentID {
	return c.st.lookupID(name)
}

// Rand returns a random float in [0, 1) from the simulation-wide generator.
func (c *Context) Rand() float64 {
	return c.st.rnd.Float64()
}

// GenRange returns a random float in [lo, hi).
func (c *Context) GenRange(lo, hi float64) float64 {
	return lo + c.st.rnd.Float64()*(hi-lo)
}

// GenIntRange returns a random int in [lo, hi).
func (c *Context) GenIntRange(lo, hi int) int {
	return lo + c.st.rnd.Intn(hi-lo)
}

// Sample draws a value from the given distribution.
func (c *Context) Sample(dist Distribution) float64 {
	return dist.Sample(c.st.rnd)
}

// RandomString returns a random alphanumeric string of length n.
func (c *Context) RandomString(n int) string {
	return randomString(c.st.rnd, n)
}

// Spawn starts an asynchronous task owned by this component. The task is
// cancelled (its pending waits resolve with ErrCancelled) when the
// component's handler is removed.
func (c *Context) Spawn(fn func(t *Task)) {
	if !c.st.asyncEnabled {
		panic(fmt.Sprintf("spawn: async mode is disabled (component %s, t=%g)", c.name, c.st.clock))
	}
	c.exec.spawn(fn)
}

// Sleep suspends the calling task until virtual time reaches
// Time() + duration. Returns ErrCancelled if the owning component is
// removed before the timer fires.
func (c *Context) Sleep(t *Task, duration float64) error {
	if duration < 0 {
		panic(fmt.Sprintf("sleep: invalid duration %v (component %s, t=%g)", duration, c.name, c.st.clock))
	}
	slot := &awaitSlot{task: t.inner}
	c.st.addTimer(c.id, c.st.clock+duration, slot)
	t.inner.suspend()
	if slot.cancelled {
		return ErrCancelled
	}
	return nil
}

// Recv suspends the calling task until an event with payload type T arrives
// from the given source. The matched event bypasses the component's handler
// and resolves the wait instead. Returns ErrCancelled if the owning
// component is removed first.
func Recv[T any](c *Context, t *Task, from ComponentID) (T, error) {
	return recvInner[T](c, t, from, 0, false)
}

// RecvByKey is Recv restricted to events whose registered key getter
// extracts the given correlation key. A key getter must be registered for T.
func RecvByKey[T any](c *Context, t *Task, from ComponentID, key EventKey) (T, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := c.st.keyGetters[typ]; !ok {
		panic(fmt.Sprintf("recv_by_key: no key getter registered for payload type %s", typ))
	}
	return recvInner[T](c, t, from, key, true)
}

func recvInner[T any](c *Context, t *Task, from ComponentID, key EventKey, hasKey bool) (T, error) {
	var zero T
	pk := promiseKey{
		src:    from,
		dst:    c.id,
		typ:    reflect.TypeOf((*T)(nil)).Elem(),
		key:    key,
		hasKey: hasKey,
	}
	slot := &awaitSlot{task: t.inner}
	c.st.installPromise(pk, slot)
	t.inner.suspend()
	if slot.cancelled {
		return zero, ErrCancelled
	}
	return slot.event.Data.(T), nil
}

// RecvEvent is Recv returning the full event envelope instead of just the
// payload, for callers that need the event id or timestamp.
func RecvEvent[T any](c *Context, t *Task, from ComponentID) (Event, error) {
	pk := promiseKey{
		src: from,
		dst: c.id,
		typ: reflect.TypeOf((*T)(nil)).Elem(),
	}
	slot := &awaitSlot{task: t.inner}
	c.st.installPromise(pk, slot)
	t.inner.suspend()
	if slot.cancelled {
		return Event{}, ErrCancelled
	}
	return slot.event, nil
}
