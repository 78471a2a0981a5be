package mc

import (
	"fmt"
	"time"
)

// GoalFn marks a state as terminal success. The returned string names the
// satisfied goal for reporting.
type GoalFn func(*State) (string, bool)

// InvariantFn must hold on every visited state; a non-nil error fails the
// run with the offending trace.
type InvariantFn func(*State) error

// PruneFn cuts a subtree without failing. The returned string names the
// prune reason.
type PruneFn func(*State) (string, bool)

// CollectFn tags a state for the caller's collected set.
type CollectFn func(*State) bool

// Config carries the predicates applied during one exploration run.
type Config struct {
	Goal      GoalFn
	Invariant InvariantFn
	Prune     PruneFn
	Collect   CollectFn
}

// AllGoals is satisfied when every sub-goal is satisfied.
func AllGoals(goals ...GoalFn) GoalFn {
	return func(s *State) (string, bool) {
		for _, goal := range goals {
			if _, ok := goal(s); !ok {
				return "", false
			}
		}
		return "all goals", true
	}
}

// AnyGoal is satisfied when any sub-goal is satisfied.
func AnyGoal(goals ...GoalFn) GoalFn {
	return func(s *State) (string, bool) {
		for _, goal := range goals {
			if desc, ok := goal(s); ok {
				return desc, true
			}
		}
		return "", false
	}
}

// AllInvariants checks every sub-invariant.
func AllInvariants(invariants ...InvariantFn) InvariantFn {
	return func(s *State) error {
		for _, invariant := range invariants {
			if err := invariant(s); err != nil {
				return err
			}
		}
		return nil
	}
}

// AnyPrune prunes when any sub-prune matches.
func AnyPrune(prunes ...PruneFn) PruneFn {
	return func(s *State) (string, bool) {
		for _, prune := range prunes {
			if desc, ok := prune(s); ok {
				return desc, true
			}
		}
		return "", false
	}
}

// AnyCollect collects when any sub-collect matches.
func AnyCollect(collects ...CollectFn) CollectFn {
	return func(s *State) bool {
		for _, collect := range collects {
			if collect(s) {
				return true
			}
		}
		return false
	}
}

// GoalGotLocalMessages is satisfied once a process has emitted at least n
// local messages.
func GoalGotLocalMessages(proc string, n int) GoalFn {
	return func(s *State) (string, bool) {
		if len(s.LocalOutbox(proc)) >= n {
			return fmt.Sprintf("%s got %d local messages", proc, n), true
		}
		return "", false
	}
}

// GoalNoPendingEvents is satisfied when nothing is left to fire.
func GoalNoPendingEvents() GoalFn {
	return func(s *State) (string, bool) {
		if s.pending.Len() == 0 {
			return "no pending events", true
		}
		return "", false
	}
}

// CollectGotLocalMessages collects states where a process has emitted at
// least n local messages.
func CollectGotLocalMessages(proc string, n int) CollectFn {
	return func(s *State) bool {
		return len(s.LocalOutbox(proc)) >= n
	}
}

// PruneStateDepth cuts subtrees beyond the given depth.
func PruneStateDepth(max int) PruneFn {
	return func(s *State) (string, bool) {
		if s.depth > max {
			return fmt.Sprintf("depth above %d", max), true
		}
		return "", false
	}
}

// InvariantStateDepthLimit fails the run when exploration exceeds the given
// depth, catching runaway state spaces.
func InvariantStateDepthLimit(max int) InvariantFn {
	return func(s *State) error {
		if s.depth > max {
			return fmt.Errorf("state depth exceeded limit %d", max)
		}
		return nil
	}
}

// InvariantTimeLimit fails the run when wall-clock exploration time exceeds
// the given duration.
func InvariantTimeLimit(limit time.Duration) InvariantFn {
	start := time.Now()
	return func(*State) error {
		if elapsed := time.Since(start); elapsed > limit {
			return fmt.Errorf("wall-clock limit %v exceeded (%v elapsed)", limit, elapsed)
		}
		return nil
	}
}
