package simulation

import (
	"errors"

	"github.com/cuemby/warp/pkg/metrics"
)

// ErrCancelled is returned from a suspension point whose wait was cancelled,
// typically because the owning component was removed. Tasks are expected to
// propagate or absorb it; the usual reaction is to return.
var ErrCancelled = errors.New("simulation: wait cancelled")

// task is the executor-internal task record. The task body runs on its own
// goroutine, but the handoff protocol guarantees that at most one task
// goroutine executes at any moment, and only between the executor's resume
// signal and the task's next suspension point.
type task struct {
	seq      uint64
	resume   chan struct{}
	yield    chan struct{}
	finished bool
	panicked any
}

// Task is the handle passed to a spawned task body. Suspension points
// (Sleep, Recv, queue Receive) take it explicitly: it identifies which task
// to park and resume.
type Task struct {
	inner *task
}

// suspend parks the calling task goroutine until the executor schedules it
// again. Must only be called from the task's own goroutine.
func (t *task) suspend() {
	t.yield <- struct{}{}
	<-t.resume
}

// executor drives spawned tasks cooperatively. The ready queue is FIFO, so
// for a fixed seed and program the execution order is fully deterministic.
type executor struct {
	ready   []*task
	taskSeq uint64
}

func newExecutor() *executor {
	return &executor{}
}

// spawn starts fn as a new task and places it on the ready queue. The task
// body does not run until the executor first schedules it.
func (e *executor) spawn(fn func(t *Task)) {
	inner := &task{
		seq:    e.taskSeq,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	e.taskSeq++
	go func() {
		defer func() {
			// Panics inside a task are re-raised on the driving goroutine;
			// swallowing them here would deadlock the handoff.
			inner.panicked = recover()
			inner.finished = true
			inner.yield <- struct{}{}
		}()
		<-inner.resume
		fn(&Task{inner: inner})
	}()
	e.ready = append(e.ready, inner)
	metrics.TasksSpawned.Inc()
}

// pushReady marks a suspended task runnable. The task runs at the next
// processTask call, not immediately.
func (e *executor) pushReady(t *task) {
	if t == nil || t.finished {
		return
	}
	e.ready = append(e.ready, t)
}

// processTask runs at most one ready task to its next suspension point.
// Returns true iff a task was executed.
func (e *executor) processTask() bool {
	for len(e.ready) > 0 {
		t := e.ready[0]
		e.ready = e.ready[1:]
		if t.finished {
			continue
		}
		t.resume <- struct{}{}
		<-t.yield
		if t.panicked != nil {
			panic(t.panicked)
		}
		return true
	}
	return false
}

// hasReady reports whether any task is runnable.
func (e *executor) hasReady() bool {
	for _, t := range e.ready {
		if !t.finished {
			return true
		}
	}
	return false
}
