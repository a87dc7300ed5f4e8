package polyphony

import (
	"fmt"
	"runtime"
)

// suspendSignal is sent by a fiber's goroutine to the scheduler when the
// fiber yields control at a suspension point.
type suspendSignal struct{}

// doneSignal is sent by a fiber's goroutine when its body has returned or
// unwound to completion.
type doneSignal struct{ outcome Outcome }

// Fiber is a suspendable unit of execution: a goroutine gated behind a
// synchronous channel rendezvous with its owning [Scheduler], so that at
// most one of "the scheduler" and "the fiber currently being resumed" runs
// at a time.
type Fiber struct {
	id        FiberID
	scheduler *Scheduler
	tag       string
	location  string

	state  *fiberState
	result *Outcome

	parentID FiberID
	children map[FiberID]struct{}

	mailbox      []any
	receiving    bool // true while a goroutine is blocked in Receive
	scheduledVal any
	enqueued     bool

	// awaitWaiterIDs are stored as ids, not raw pointers, and dereferenced
	// through the scheduler's arena on death: by the time die() resumes
	// them the waiter is always still live (it is parked in Await, not
	// dead), so this is belt-and-suspenders against a future caller that
	// stashes a waiter id across a death it doesn't itself observe.
	awaitWaiterIDs []FiberID

	// deathWatchers are invoked, in registration order, when the fiber
	// transitions to Dead, after awaitWaiters are resumed but on the same
	// scheduler turn. Used by Supervise to observe death order without
	// relying on map iteration order.
	deathWatchers []func(*Fiber)

	// spawnTag/spawnBody preserve the fiber's original spin arguments so a
	// supervisor restart policy can respawn an equivalent fiber.
	spawnTag  string
	spawnBody func() (any, error)

	in  chan any
	out chan any

	referenced bool // true while this fiber holds a scheduler reference (sleep_forever)
}

func newFiber(sched *Scheduler, parent *Fiber, tag string) *Fiber {
	_, file, line, ok := runtime.Caller(2)
	loc := "unknown"
	if ok {
		loc = fmt.Sprintf("%s:%d", file, line)
	}
	return newFiberAt(sched, parent, tag, loc)
}

// newFiberAt creates a fiber with an explicit, pre-computed location instead
// of capturing the caller via runtime.Caller. Used by supervisor restarts,
// which respawn at the original spawn site's location rather than their own.
func newFiberAt(sched *Scheduler, parent *Fiber, tag, location string) *Fiber {
	f := &Fiber{
		scheduler: sched,
		tag:       tag,
		location:  location,
		state:     newFiberState(),
		children:  make(map[FiberID]struct{}),
		in:        make(chan any),
		out:       make(chan any),
	}
	if parent != nil {
		f.parentID = parent.id
	}
	f.id = sched.arena.insert(f)
	return f
}

// Tag returns the fiber's optional debugging label.
func (f *Fiber) Tag() string { return f.tag }

// Location returns the source position captured at spin time.
func (f *Fiber) Location() string { return f.location }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return f.state.Load() }

// Running reports whether the fiber has not yet reached [Dead].
func (f *Fiber) Running() bool { return !f.state.IsDead() }

// Parent returns the fiber that spawned this one, or nil for a root fiber
// or one whose parent has since died and had its slot reclaimed.
func (f *Fiber) Parent() *Fiber {
	if f.parentID.IsZero() {
		return nil
	}
	return f.scheduler.arena.lookup(f.parentID)
}

// Children returns a snapshot of the fiber's currently live children,
// resolving each id through the scheduler's arena.
func (f *Fiber) Children() []*Fiber {
	out := make([]*Fiber, 0, len(f.children))
	for id := range f.children {
		if c := f.scheduler.arena.lookup(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Result returns the fiber's outcome once it has reached [Dead]; the
// second return value is false while the fiber is still alive.
func (f *Fiber) Result() (Outcome, bool) {
	if f.result == nil {
		return Outcome{}, false
	}
	return *f.result, true
}

// runFromScheduler is the fiber's goroutine body. It blocks for the first
// kick from the scheduler (delivered via in), runs body to completion or
// unwind, then reports the outcome and exits. It never receives on in
// again after that.
func (f *Fiber) runFromScheduler(body func() (any, error)) {
	kick := <-f.in

	gid := getGoroutineID()
	fiberRegistry.Store(gid, f)
	defer fiberRegistry.Delete(gid)

	outcome := f.runBody(kick, body)
	f.out <- doneSignal{outcome: outcome}
}

// runBody executes body, converting a normal return, a recovered [Signal],
// or an arbitrary recovered panic into an [Outcome]. A bare (unmatched)
// [MoveOn] reaching this frame — the fiber's outermost user frame — is
// swallowed and becomes an ordinary, non-failure result, matching
// [Fiber.Stop]'s "unwinds silently to its outermost user frame".
func (f *Fiber) runBody(initial any, body func() (any, error)) (outcome Outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case MoveOn:
			outcome = Outcome{Value: sig.Value}
		case error:
			outcome = Outcome{Err: sig}
		default:
			outcome = Outcome{Err: PanicError{Value: r}}
		}
	}()

	raiseIfSignal(initial)
	v, err := body()
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Value: v}
}

// raiseIfSignal panics with sig if v is a [Signal]; a suspension-point
// operation calls this on whatever value it receives on resume so that a
// pending signal is re-raised before an ordinary value would be returned.
func raiseIfSignal(v any) any {
	if sig, ok := v.(Signal); ok {
		if f := CurrentFiber(); f != nil {
			f.scheduler.logSignalDelivered(f, sig)
		}
		panic(sig)
	}
	return v
}

// switchFiber is the single primitive for suspension: it records the
// caller as waiting (unless it has already enqueued itself), yields to the
// scheduler, and blocks until resumed. The resumed value is returned, or
// panics if it is a pending [Signal].
func (f *Fiber) switchFiber() any {
	if !f.enqueued {
		f.state.Store(Waiting)
	}
	f.out <- suspendSignal{}
	v := <-f.in
	return raiseIfSignal(v)
}

// enqueue merges value into the fiber's pending scheduled_value (honoring
// [Signal] precedence and stickiness) and, if the fiber is not already on
// the run queue, pushes it. This is the single choke point every
// scheduling operation (Schedule, Interrupt, Stop, Terminate, mailbox
// delivery, timer fire) funnels through, preserving the "a fiber appears
// on the run queue at most once" invariant.
//
// The state transition is CAS-guarded rather than a plain load-then-store:
// Interrupt/Schedule/Stop/Terminate are public API, callable from any
// goroutine, so the fiber could die (state.Store(Dead) from the
// scheduler's own goroutine, concurrently) between the Dead check and the
// Runnable store. A bare read-then-write could mark a dead fiber Runnable
// and enqueue it after its goroutine has already exited.
func (f *Fiber) enqueue(value any) {
	for {
		cur := f.state.Load()
		if cur == Dead {
			return
		}
		if f.state.TryTransition(cur, Runnable) {
			break
		}
	}
	f.scheduledVal = mergePending(f.scheduledVal, value)
	if !f.enqueued {
		f.enqueued = true
		f.scheduler.runq.push(f)
	}
}

// scheduleFromBackend is enqueue's entry point for timers and the I/O
// backend, which run on the scheduler's own goroutine during a poll/timer
// step rather than from within a fiber body.
func (f *Fiber) scheduleFromBackend(value any) {
	f.enqueue(value)
}

// Schedule sets the fiber's scheduled_value, marks it runnable, and
// enqueues it if it is not already on the run queue. An ordinary value
// never overrides a pending signal.
func (f *Fiber) Schedule(value any) {
	f.enqueue(value)
}

// Interrupt schedules an [Interrupt] signal; on resume the target raises
// it, though ordinary user code may catch it.
func (f *Fiber) Interrupt(value any) {
	f.enqueue(Interrupt{Value: value})
}

// Stop schedules a [MoveOn]; the target unwinds silently to its outermost
// user frame and its result becomes value.
func (f *Fiber) Stop(value any) {
	f.enqueue(MoveOn{Value: value})
}

// Terminate schedules a [Terminate] signal. No [CancelScope] catches it;
// unless the fiber's own deferred code recovers it, it unwinds to the
// fiber root and becomes the fiber's failure.
func (f *Fiber) Terminate() {
	f.enqueue(Terminate{})
}

// Send appends msg to the mailbox. If the fiber is suspended inside
// Receive, it is scheduled immediately with that message; Send never
// suspends the caller. A message sent to an already-dead fiber is
// discarded rather than appended to a mailbox nobody will ever drain.
func (f *Fiber) Send(msg any) {
	if f.state.Load() == Dead {
		return
	}
	if f.receiving {
		f.receiving = false
		f.enqueue(msg)
		return
	}
	f.mailbox = append(f.mailbox, msg)
}

// Receive pops the head of the mailbox, suspending the caller until a
// message arrives if it is empty. Receive must be called from within the
// fiber it is called on.
func (f *Fiber) Receive() any {
	if len(f.mailbox) > 0 {
		msg := f.mailbox[0]
		f.mailbox = f.mailbox[1:]
		return msg
	}
	f.receiving = true
	return f.switchFiber()
}

// ReceivePending drains and returns every currently queued message without
// blocking.
func (f *Fiber) ReceivePending() []any {
	msgs := f.mailbox
	f.mailbox = nil
	return msgs
}

// Await suspends the caller until this fiber reaches [Dead], returning its
// result or re-raising its failure with a composed trace: this fiber's
// failure followed by "--- spawned from ---" and this fiber's own spawn
// site. Since out.Err may itself already be a composed trace (from an
// earlier, deeper Await), each level's %w-wrapping appends one more
// "spawned from" frame, so a multi-level await chain reads as an
// ever-longer trace, innermost failure first.
func (f *Fiber) Await() (any, error) {
	caller := currentFiberOrNil()
	if caller == nil {
		panic(&UsageError{Message: "polyphony: await called outside a fiber"})
	}
	if f.state.Load() != Dead {
		f.awaitWaiterIDs = append(f.awaitWaiterIDs, caller.id)
		caller.switchFiber()
	}
	out, _ := f.Result()
	if out.Err != nil {
		return nil, fmt.Errorf("%w\n--- spawned from ---\n%s", out.Err, f.location)
	}
	return out.Value, nil
}

// die transitions the fiber to Dead, records its outcome, detaches it from
// its parent's child set, and resumes every await waiter. Called only from
// the scheduler's own goroutine as it processes a doneSignal.
func (f *Fiber) die(outcome Outcome) {
	f.result = &outcome
	f.state.Store(Dead)
	f.mailbox = nil
	f.receiving = false
	f.scheduler.logFiberDeath(f, outcome)

	if f.referenced {
		f.scheduler.unref()
		f.referenced = false
	}

	if parent := f.Parent(); parent != nil {
		delete(parent.children, f.id)
	}

	waiterIDs := f.awaitWaiterIDs
	f.awaitWaiterIDs = nil
	for _, id := range waiterIDs {
		if w := f.scheduler.arena.lookup(id); w != nil {
			w.enqueue(struct{}{})
		}
	}

	watchers := f.deathWatchers
	f.deathWatchers = nil
	for _, watch := range watchers {
		watch(f)
	}

	f.scheduler.arena.release(f.id)
}

// watchDeath registers fn to be invoked, in registration order, when f dies.
// If f is already dead, fn runs immediately.
func (f *Fiber) watchDeath(fn func(*Fiber)) {
	if f.state.Load() == Dead {
		fn(f)
		return
	}
	f.deathWatchers = append(f.deathWatchers, fn)
}
