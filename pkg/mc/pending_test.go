package mc

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reliableMessage(src, dst string, maxDelay float64) MessageReceived {
	return MessageReceived{
		Msg:     Message{Type: "m", Data: "{}"},
		Src:     src,
		Dst:     dst,
		Options: DeliveryOptions{Guaranteed: true, MaxDelay: maxDelay},
	}
}

func bestEffortMessage(src, dst string) MessageReceived {
	return MessageReceived{
		Msg: Message{Type: "m", Data: "{}"},
		Src: src,
		Dst: dst,
	}
}

// TestResolverShuffledTimers inserts timers in random order on several
// nodes and pops random available events; per node, timers must fire in
// non-decreasing time order.
func TestResolverShuffledTimers(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		pending := NewPendingEvents()
		kind := make(map[EventID]int) // time*3 + node

		for node := 0; node < 3; node++ {
			times := rnd.Perm(3)
			for _, timerTime := range times {
				id := pending.Push(TimerFired{
					Process:  fmt.Sprintf("%d", node),
					Timer:    fmt.Sprintf("%d", timerTime),
					Duration: float64(timerTime),
				})
				kind[id] = timerTime*3 + node
			}
		}

		var sequence []int
		for {
			available := pending.Available()
			if len(available) == 0 {
				break
			}
			id := available[rnd.Intn(len(available))]
			sequence = append(sequence, kind[id])
			pending.Pop(id)
		}

		require.Len(t, sequence, 9)
		next := []int{0, 0, 0}
		for _, k := range sequence {
			timerTime, node := k/3, k%3
			assert.Equal(t, next[node], timerTime, "node %d fired out of order", node)
			next[node]++
		}
	}
}

// TestResolverRefillAfterPops removes most events, then adds more; the
// per-node ordering must hold across the refill.
func TestResolverRefillAfterPops(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for trial := 0; trial < 20; trial++ {
		pending := NewPendingEvents()
		kind := make(map[EventID]int)

		for node := 0; node < 3; node++ {
			for _, timerTime := range rnd.Perm(3) {
				id := pending.Push(TimerFired{
					Process:  fmt.Sprintf("%d", node),
					Timer:    fmt.Sprintf("%d", timerTime),
					Duration: 1.0 + float64(timerTime),
				})
				kind[id] = timerTime*3 + node
			}
		}

		var sequence []int
		for i := 0; i < 7; i++ {
			available := pending.Available()
			id := available[rnd.Intn(len(available))]
			sequence = append(sequence, kind[id])
			pending.Pop(id)
		}

		// Every node has moved its local clock at least once; these land last.
		for node := 0; node < 3; node++ {
			id := pending.Push(TimerFired{
				Process:  fmt.Sprintf("%d", node),
				Timer:    fmt.Sprintf("late-%d", node),
				Duration: 2.1,
			})
			kind[id] = 9 + node
		}

		for {
			available := pending.Available()
			if len(available) == 0 {
				break
			}
			id := available[rnd.Intn(len(available))]
			sequence = append(sequence, kind[id])
			pending.Pop(id)
		}

		require.Len(t, sequence, 12)
		next := []int{0, 0, 0}
		for _, k := range sequence {
			timerTime, node := k/3, k%3
			assert.Equal(t, next[node], timerTime, "node %d fired out of order", node)
			next[node]++
		}
	}
}

// TestResolverSameTimeGroups allows any order within a group of timers
// sharing one fire time, but never across groups.
func TestResolverSameTimeGroups(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	pending := NewPendingEvents()
	kind := make(map[EventID]int)

	for _, n := range rnd.Perm(100) {
		id := pending.Push(TimerFired{
			Process:  "0",
			Timer:    fmt.Sprintf("%d", n),
			Duration: float64(n / 5),
		})
		kind[id] = n
	}

	lastGroup := 0
	count := 0
	for {
		available := pending.Available()
		if len(available) == 0 {
			break
		}
		id := available[rnd.Intn(len(available))]
		group := kind[id] / 5
		assert.GreaterOrEqual(t, group, lastGroup)
		lastGroup = group
		count++
		pending.Pop(id)
	}
	assert.Equal(t, 100, count)
}

// TestResolverMessageBlocksTimer verifies that a reliable message with an
// early deadline blocks all timers scheduled past it.
func TestResolverMessageBlocksTimer(t *testing.T) {
	pending := NewPendingEvents()
	timerIDs := make(map[EventID]bool)

	// 10 timers at time 10, 10 timers at time 20.
	for timer := 0; timer < 20; timer++ {
		id := pending.Push(TimerFired{
			Process:  "0",
			Timer:    fmt.Sprintf("%d", timer),
			Duration: 10.0 * float64(1+timer/10),
		})
		timerIDs[id] = true
	}
	msgID := pending.Push(reliableMessage("0", "0", 1.0))

	countTimers := func() int {
		n := 0
		for _, id := range pending.Available() {
			if timerIDs[id] {
				n++
			}
		}
		return n
	}

	// The message deadline (1.0) precedes every timer: no timer available.
	assert.Equal(t, 0, countTimers())
	require.Len(t, pending.Available(), 1)

	pending.Pop(msgID)

	// The first group of 10 equal-time timers becomes available.
	assert.Equal(t, 10, countTimers())
	assert.Len(t, pending.Available(), 10)
}

// TestResolverAtMostOneTimerGroup checks that availability never exposes
// more than the earliest-time timer group per node.
func TestResolverAtMostOneTimerGroup(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	pending := NewPendingEvents()
	timerTime := make(map[EventID]float64)

	for _, n := range rnd.Perm(12) {
		id := pending.Push(TimerFired{
			Process:  "0",
			Timer:    fmt.Sprintf("%d", n),
			Duration: float64(n),
		})
		timerTime[id] = float64(n)
	}
	for i := 0; i < 5; i++ {
		pending.Push(bestEffortMessage("1", "0"))
	}

	for {
		available := pending.Available()
		if len(available) == 0 {
			break
		}
		// Exactly the earliest pending timer is exposed alongside messages.
		timers := 0
		for _, id := range available {
			if _, isTimer := timerTime[id]; isTimer {
				timers++
			}
		}
		assert.LessOrEqual(t, timers, 1)
		id := available[rnd.Intn(len(available))]
		pending.Pop(id)
	}
}

// TestScheduleEnumeration enumerates every admissible pop sequence for
// three timers and one reliable message on a single node and verifies the
// causal constraints on each.
func TestScheduleEnumeration(t *testing.T) {
	type labelled struct {
		label string
		event Event
	}
	events := []labelled{
		{"t1", TimerFired{Process: "n", Timer: "t1", Duration: 1}},
		{"t2", TimerFired{Process: "n", Timer: "t2", Duration: 2}},
		{"t3", TimerFired{Process: "n", Timer: "t3", Duration: 3}},
		{"msg", reliableMessage("m", "n", 2.5)},
	}

	// The admissible sequences must not depend on insertion order.
	insertionOrders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}

	var enumerate func(pending *PendingEvents, labels map[EventID]string, prefix []string, out *[][]string)
	enumerate = func(pending *PendingEvents, labels map[EventID]string, prefix []string, out *[][]string) {
		available := pending.Available()
		if len(available) == 0 {
			*out = append(*out, append([]string(nil), prefix...))
			return
		}
		for _, id := range available {
			branch := pending.Clone()
			branch.Pop(id)
			enumerate(branch, labels, append(prefix, labels[id]), out)
		}
	}

	var reference [][]string
	for _, order := range insertionOrders {
		pending := NewPendingEvents()
		labels := make(map[EventID]string)
		for _, idx := range order {
			labels[pending.Push(events[idx].event)] = events[idx].label
		}

		var sequences [][]string
		enumerate(pending, labels, nil, &sequences)

		// Timers fire in time order; the message lands anywhere before t3.
		require.Len(t, sequences, 3)
		for _, seq := range sequences {
			pos := make(map[string]int)
			for i, label := range seq {
				pos[label] = i
			}
			assert.Less(t, pos["t1"], pos["t2"])
			assert.Less(t, pos["t2"], pos["t3"])
			assert.Less(t, pos["msg"], pos["t3"])
		}

		if reference == nil {
			reference = sequences
		} else {
			assert.ElementsMatch(t, reference, sequences)
		}
	}
}

func TestPopUnavailablePanics(t *testing.T) {
	pending := NewPendingEvents()
	pending.Push(TimerFired{Process: "n", Timer: "a", Duration: 1})
	blocked := pending.Push(TimerFired{Process: "n", Timer: "b", Duration: 2})

	assert.Panics(t, func() { pending.Pop(blocked) })
}

func TestCancelTimerUnblocks(t *testing.T) {
	pending := NewPendingEvents()
	first := pending.Push(TimerFired{Process: "n", Timer: "a", Duration: 1})
	second := pending.Push(TimerFired{Process: "n", Timer: "b", Duration: 2})

	require.Equal(t, []EventID{first}, pending.Available())

	require.True(t, pending.CancelTimer("n", "a"))
	assert.Equal(t, []EventID{second}, pending.Available())

	// Cancelling an unknown timer is a no-op.
	assert.False(t, pending.CancelTimer("n", "missing"))
}

func TestBestEffortDoesNotBlock(t *testing.T) {
	pending := NewPendingEvents()
	timer := pending.Push(TimerFired{Process: "n", Timer: "a", Duration: 5})
	msg := pending.Push(bestEffortMessage("m", "n"))

	// Best-effort messages never block timers.
	assert.ElementsMatch(t, []EventID{timer, msg}, pending.Available())

	pending.Pop(timer)
	assert.Equal(t, []EventID{msg}, pending.Available())
}

func TestDropRemovesMessage(t *testing.T) {
	pending := NewPendingEvents()
	timer := pending.Push(TimerFired{Process: "n", Timer: "a", Duration: 5})
	msg := pending.Push(reliableMessage("m", "n", 1.0))

	// The reliable message blocks the later timer until consumed.
	assert.Equal(t, []EventID{msg}, pending.Available())

	pending.Drop(msg)
	assert.Equal(t, []EventID{timer}, pending.Available())
}

func TestGlobalTimeAdvancesOnTimerPop(t *testing.T) {
	pending := NewPendingEvents()
	first := pending.Push(TimerFired{Process: "n", Timer: "a", Duration: 1.5})
	pending.Pop(first)

	// A timer set after the pop starts from the advanced local time.
	second := pending.Push(TimerFired{Process: "n", Timer: "b", Duration: 1.0})
	ev, ok := pending.Get(second)
	require.True(t, ok)
	assert.Equal(t, "b", ev.(TimerFired).Timer)
	assert.Equal(t, 1.5, pending.globalTime["n"])
}
