package mc

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pinger sends PING on start and reports the PONG reply locally
type pinger struct {
	peer    string
	gotPong bool
}

func (p *pinger) OnLocalMessage(ctx *ProcessContext, msg Message) {
	if msg.Type == "START" {
		ctx.Send(Message{Type: "PING", Data: "{}"}, p.peer)
	}
}

func (p *pinger) OnMessage(ctx *ProcessContext, msg Message, from string) {
	if msg.Type == "PONG" && !p.gotPong {
		p.gotPong = true
		ctx.SendLocal(Message{Type: "PONG", Data: msg.Data})
	}
}

func (p *pinger) OnTimer(ctx *ProcessContext, timer string) {}

func (p *pinger) StateHash(w io.Writer) {
	fmt.Fprintf(w, "pinger|%s|%v", p.peer, p.gotPong)
}

func (p *pinger) Clone() Process {
	clone := *p
	return &clone
}

// ponger echoes every PING back to its sender
type ponger struct {
	pings int
}

func (p *ponger) OnLocalMessage(ctx *ProcessContext, msg Message) {}

func (p *ponger) OnMessage(ctx *ProcessContext, msg Message, from string) {
	if msg.Type == "PING" {
		p.pings++
		ctx.Send(Message{Type: "PONG", Data: msg.Data}, from)
	}
}

func (p *ponger) OnTimer(ctx *ProcessContext, timer string) {}

func (p *ponger) StateHash(w io.Writer) {
	fmt.Fprintf(w, "ponger|%d", p.pings)
}

func (p *ponger) Clone() Process {
	clone := *p
	return &clone
}

// ticker fires a local message from a timer
type ticker struct {
	ticks int
}

func (p *ticker) OnLocalMessage(ctx *ProcessContext, msg Message) {
	if msg.Type == "START" {
		ctx.SetTimer("tick", 1.0)
	}
}

func (p *ticker) OnMessage(ctx *ProcessContext, msg Message, from string) {}

func (p *ticker) OnTimer(ctx *ProcessContext, timer string) {
	if timer == "tick" {
		p.ticks++
		ctx.SendLocal(Message{Type: "TICK", Data: "{}"})
	}
}

func (p *ticker) StateHash(w io.Writer) {
	fmt.Fprintf(w, "ticker|%d", p.ticks)
}

func (p *ticker) Clone() Process {
	clone := *p
	return &clone
}

func pingPongSystem() *System {
	sys := NewSystem()
	sys.AddProcess("a", &pinger{peer: "b"})
	sys.AddProcess("b", &ponger{})
	sys.SendLocal("a", Message{Type: "START", Data: "{}"})
	return sys
}

func TestCheckerReachesGoal(t *testing.T) {
	checker := NewChecker(pingPongSystem())
	stats, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	// Root, after PING delivery, after PONG delivery.
	assert.Equal(t, uint64(3), stats.StatesVisited)
}

func TestCheckerDFSAgreesWithBFS(t *testing.T) {
	bfsStats, err := NewChecker(pingPongSystem()).Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})
	require.NoError(t, err)

	dfsStats, err := NewChecker(pingPongSystem()).Run(NewDFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, bfsStats.StatesVisited, dfsStats.StatesVisited)
}

func TestCheckerInvariantViolation(t *testing.T) {
	checker := NewChecker(pingPongSystem())
	_, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
		Invariant: func(s *State) error {
			if s.Proc("b").(*ponger).pings > 0 {
				return errors.New("b must never receive a ping")
			}
			return nil
		},
	})
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Reason, "b must never receive a ping")
	assert.NotEmpty(t, runErr.Trace)
	assert.NotEmpty(t, runErr.FormatTrace())
}

func TestCheckerDroppedMessageMissesGoal(t *testing.T) {
	sys := NewSystem()
	sys.AddProcess("a", &pinger{peer: "b"})
	sys.AddProcess("b", &ponger{})
	sys.SetUnreliable(true, false, false)
	sys.SendLocal("a", Message{Type: "START", Data: "{}"})

	checker := NewChecker(sys)
	_, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})

	// Some branch drops the PING or the PONG, reaching a terminal state
	// where the goal cannot hold.
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Reason, "goal")
}

func TestCheckerDuplicateDelivery(t *testing.T) {
	sys := NewSystem()
	sys.AddProcess("a", &pinger{peer: "b"})
	sys.AddProcess("b", &ponger{})
	sys.SetUnreliable(false, true, false)
	sys.SendLocal("a", Message{Type: "START", Data: "{}"})

	checker := NewChecker(sys)
	_, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
		Invariant: func(s *State) error {
			// Duplication may deliver PING twice.
			if s.Proc("b").(*ponger).pings > 2 {
				return errors.New("too many pings")
			}
			return nil
		},
	})
	require.NoError(t, err)
}

func TestCheckerTimerDriven(t *testing.T) {
	sys := NewSystem()
	sys.AddProcess("a", &ticker{})
	sys.SendLocal("a", Message{Type: "START", Data: "{}"})

	checker := NewChecker(sys)
	stats, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.StatesVisited)
}

func TestCheckerCollectAndResume(t *testing.T) {
	sys := pingPongSystem()
	checker := NewChecker(sys)

	stats, err := checker.Run(NewBFS(), Config{
		Goal:    GoalGotLocalMessages("a", 1),
		Collect: func(s *State) bool { return s.Proc("b").(*ponger).pings > 0 },
	})
	require.NoError(t, err)
	require.NotEmpty(t, stats.Collected)

	// Stage two: crash b in every collected state, then require quiescence.
	stats2, err := checker.RunFromStatesWithChange(NewBFS(), Config{
		Goal: GoalNoPendingEvents(),
	}, stats.Collected, func(sys *System) {
		sys.CrashNode("b")
	})
	require.NoError(t, err)
	assert.NotZero(t, stats2.StatesVisited)
}

func TestCheckerCrashDropsDeliveries(t *testing.T) {
	sys := pingPongSystem()
	sys.CrashNode("b")

	checker := NewChecker(sys)
	stats, err := checker.Run(NewBFS(), Config{})
	require.NoError(t, err)
	// The PING to the crashed node was removed at crash time, so only the
	// root state exists.
	assert.Equal(t, uint64(1), stats.StatesVisited)
}

func TestCheckerDisconnectedNodeDropsMessages(t *testing.T) {
	sys := pingPongSystem()
	sys.DisconnectNode("b")

	checker := NewChecker(sys)
	_, err := checker.Run(NewBFS(), Config{
		Goal: GoalGotLocalMessages("a", 1),
	})

	// The pending PING is dropped at delivery time; the goal is unreachable.
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
}

func TestCheckerDeduplicatesStates(t *testing.T) {
	// Two independent pingers: interleavings converge to identical states.
	sys := NewSystem()
	sys.AddProcess("a1", &pinger{peer: "b"})
	sys.AddProcess("a2", &pinger{peer: "b"})
	sys.AddProcess("b", &ponger{})
	sys.SendLocal("a1", Message{Type: "START", Data: "{}"})
	sys.SendLocal("a2", Message{Type: "START", Data: "{}"})

	checker := NewChecker(sys)
	stats, err := checker.Run(NewBFS(), Config{
		Goal: AllGoals(GoalGotLocalMessages("a1", 1), GoalGotLocalMessages("a2", 1)),
	})
	require.NoError(t, err)
	// Without deduplication the diamond-shaped interleavings would multiply.
	assert.Less(t, stats.StatesVisited, uint64(40))
}

func TestCheckerPrune(t *testing.T) {
	sys := pingPongSystem()
	checker := NewChecker(sys)
	stats, err := checker.Run(NewBFS(), Config{
		Prune: PruneStateDepth(1),
	})
	require.NoError(t, err)
	// Root, PING delivered, PONG delivered (pruned before expansion).
	assert.Equal(t, uint64(3), stats.StatesVisited)
	assert.Equal(t, uint64(1), stats.StatesPruned)

	// Pruning everything past the root stops all expansion beyond depth 1.
	stats, err = NewChecker(sys).Run(NewBFS(), Config{
		Prune: func(s *State) (string, bool) { return "everything", s.Depth() > 0 },
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.StatesVisited)
	assert.Equal(t, uint64(1), stats.StatesPruned)
}
