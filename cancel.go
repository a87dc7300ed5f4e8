package polyphony

import "time"

// ScopeMode selects which [Signal] a [CancelScope] delivers.
type ScopeMode int

const (
	// ModeCancel delivers [Cancel]: the scope never catches it itself, it
	// only guarantees its timer (if any) is disarmed as the signal passes
	// through on its way to whichever frame, if any, catches it.
	ModeCancel ScopeMode = iota
	// ModeStop delivers [MoveOn]: the scope catches its own signal and
	// yields it as the scope's result.
	ModeStop
)

// CancelScope is a scoped, cancellable region of a fiber's execution.
// It lives conceptually on the stack of its target fiber; Run guarantees
// the scope's timer, if any, is disarmed on every exit path.
//
// Grounded on the teacher's AbortController/AbortSignal, simplified: a
// CancelScope is only ever touched from its owning scheduler's single
// goroutine (including from timer callbacks, which also run there), so no
// mutex is needed the way the teacher's cross-goroutine AbortSignal needs.
type CancelScope struct {
	mode      ScopeMode
	target    *Fiber
	withValue any
	cancelled bool
	timer     TimerHandle
}

// NewCancelScope creates an explicit-form scope targeting the calling
// fiber. Use [CancelScope.Run] to execute a body inside it and
// [CancelScope.Cancel] (c.cancel! in the host-language surface) to fire it
// early.
func NewCancelScope(mode ScopeMode) *CancelScope {
	return &CancelScope{mode: mode, target: CurrentFiber()}
}

// Cancelled reports whether the scope has already delivered its signal.
func (c *CancelScope) Cancelled() bool { return c.cancelled }

// Cancel schedules the scope's signal into its target fiber. Calling it
// more than once has no additional effect.
func (c *CancelScope) Cancel() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	switch c.mode {
	case ModeStop:
		c.target.enqueue(MoveOn{Value: c.withValue, scope: c})
	case ModeCancel:
		c.target.enqueue(Cancel{})
	}
}

// Run executes body inside the scope. In [ModeStop], a matching [MoveOn]
// (one whose originating scope is c) is caught and its value returned; any
// other signal — including a MoveOn from a different, still-nested scope —
// is re-raised unchanged. In [ModeCancel], nothing is caught: Run either
// returns body's normal result or does not return at all, because the
// [Cancel] signal continues unwinding past it.
func (c *CancelScope) Run(body func() any) (result any) {
	defer c.timer.Cancel()
	if c.mode == ModeStop {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if mo, ok := r.(MoveOn); ok && mo.scope == c {
				result = mo.Value
				return
			}
			panic(r)
		}()
	}
	return body()
}

// MoveOnAfter arms a timer for interval that, on expiry, delivers
// MoveOn(withValue) to the calling fiber. If body completes first, the
// timer is cancelled. The scope's result is withValue if the timer fires,
// otherwise body's own return value.
func MoveOnAfter(interval time.Duration, withValue any, body func() any) any {
	f := CurrentFiber()
	scope := &CancelScope{mode: ModeStop, target: f, withValue: withValue}
	scope.timer = f.scheduler.timers.arm(time.Now().Add(interval), 0, f, MoveOn{Value: withValue, scope: scope})
	f.scheduler.logTimerArmed(f)
	return scope.Run(body)
}

// CancelAfter arms a timer for interval that, on expiry, delivers [Cancel]
// to the calling fiber. Unlike [MoveOnAfter], the signal is not caught
// here; it continues unwinding until user code catches it or it reaches
// the fiber root, killing the fiber.
func CancelAfter(interval time.Duration, body func() any) any {
	f := CurrentFiber()
	scope := &CancelScope{mode: ModeCancel, target: f}
	scope.timer = f.scheduler.timers.arm(time.Now().Add(interval), 0, f, Cancel{})
	f.scheduler.logTimerArmed(f)
	return scope.Run(body)
}
