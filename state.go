package polyphony

import "sync/atomic"

// FiberState is the lifecycle state of a [Fiber].
type FiberState uint32

const (
	// Runnable means the fiber is on the run queue (or newly created),
	// waiting for the scheduler to resume it.
	Runnable FiberState = iota
	// Executing means the fiber's body is currently the one running.
	Executing
	// Waiting means the fiber has suspended at a switch point and is not
	// on the run queue.
	Waiting
	// Dead is terminal: no further mailbox operations, no further
	// scheduling, children removed from the parent's set.
	Dead
)

func (s FiberState) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Executing:
		return "executing"
	case Waiting:
		return "waiting"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// fiberState is a small atomic CAS state machine guarding a fiber's
// lifecycle transitions. Runnable, Executing and Waiting follow one another
// in a cycle as the fiber is resumed, suspends and is rescheduled; Dead is
// the only terminal state.
type fiberState struct {
	v atomic.Uint32
}

func newFiberState() *fiberState {
	s := &fiberState{}
	s.v.Store(uint32(Runnable))
	return s
}

func (s *fiberState) Load() FiberState {
	return FiberState(s.v.Load())
}

func (s *fiberState) Store(state FiberState) {
	s.v.Store(uint32(state))
}

func (s *fiberState) TryTransition(from, to FiberState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *fiberState) IsDead() bool {
	return s.Load() == Dead
}
