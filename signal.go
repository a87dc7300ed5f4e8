package polyphony

import "fmt"

// Signal is an unwind reason delivered to a fiber at a suspension point. It
// is distinct from an ordinary failure: signals carry a priority used to
// resolve which of several pending signals targeting the same fiber is the
// one actually raised on resume.
//
// Precedence, highest first: Terminate > Cancel > Interrupt > MoveOn >
// an ordinary (non-signal) value.
type Signal interface {
	error
	priority() int
}

const (
	priorityValue     = 0
	priorityMoveOn    = 1
	priorityInterrupt = 2
	priorityCancel    = 3
	priorityTerminate = 4
)

// MoveOn is a silent unwind: it is caught at the [CancelScope] that armed
// it (or the timer behind [MoveOnAfter]) and converted into that scope's
// result value. If it escapes every scope it reaches the fiber root and
// becomes the fiber's ordinary (non-failure) result.
//
// scope identifies which [CancelScope] this signal originated from, so
// that nested scopes catch only their own signal and re-raise any other
// MoveOn untouched — a bare MoveOn with no originating scope (from
// [Fiber.Stop]) is caught only by the fiber's outermost frame.
type MoveOn struct {
	Value any
	scope *CancelScope
}

func (s MoveOn) Error() string { return fmt.Sprintf("polyphony: move on: %v", s.Value) }
func (MoveOn) priority() int   { return priorityMoveOn }

// Cancel is an unwind that surfaces like an ordinary error at the scope
// boundary unless caught by user code; a [CancelScope] in cancel mode never
// catches it itself, only guarantees its own resource is released as it
// passes through.
type Cancel struct{}

func (Cancel) Error() string { return "polyphony: cancelled" }
func (Cancel) priority() int { return priorityCancel }

// Interrupt is a user-initiated abort. No [CancelScope] catches it, so it is
// fatal to the fiber unless the fiber's own deferred code recovers it.
type Interrupt struct{ Value any }

func (s Interrupt) Error() string { return fmt.Sprintf("polyphony: interrupted: %v", s.Value) }
func (Interrupt) priority() int   { return priorityInterrupt }

// Terminate is requested by a supervisor (or [Fiber.Terminate]). No
// [CancelScope] and no frame of the runtime catches it: it unwinds to the
// fiber root and becomes the fiber's failure. It is delivered as a panic,
// so a deferred recover in the fiber's own code does see it, and the
// runtime does not stop such a recover from swallowing it.
type Terminate struct{}

func (Terminate) Error() string { return "polyphony: terminated" }
func (Terminate) priority() int { return priorityTerminate }

// mergePending resolves what a fiber's scheduled_value slot should hold
// after a new value or signal arrives, honoring the precedence above and
// the rule that a pending signal is sticky against a later ordinary value.
// It returns the item that should be stored.
func mergePending(existing, incoming any) any {
	if existing == nil {
		return incoming
	}
	if priorityOf(incoming) >= priorityOf(existing) {
		return incoming
	}
	return existing
}

func priorityOf(v any) int {
	if s, ok := v.(Signal); ok {
		return s.priority()
	}
	return priorityValue
}

// Outcome is the tagged-variant result of a fiber's body: either a value or
// a failure carrying the error that ended it (an ordinary error, a
// [PanicError], or an unrecovered [Signal]).
type Outcome struct {
	Value any
	Err   error
}

// Failed reports whether the outcome represents a failure.
func (o Outcome) Failed() bool { return o.Err != nil }
