package polyphony

import "time"

// Spin creates a child of the current fiber, enqueues it runnable, and
// returns it immediately; body runs once the scheduler picks it up. body's
// return value becomes the fiber's result; a returned error becomes a
// recorded failure and kills the fiber. Spin panics with [UsageError] if
// called outside any fiber (i.e. not inside [Scheduler.Run]'s entry).
func Spin(tag string, body func() (any, error)) *Fiber {
	parent := CurrentFiber()
	if parent == nil {
		panic(&UsageError{Message: "polyphony: spin called outside a fiber"})
	}
	f := newFiber(parent.scheduler, parent, tag)
	f.spawnTag = tag
	f.spawnBody = body
	parent.children[f.id] = struct{}{}
	go f.runFromScheduler(body)
	f.enqueued = true
	f.scheduler.runq.push(f)
	f.scheduler.logFiberSpin(f)
	return f
}

// SpinLoop spawns a fiber whose entire lifetime is a (possibly
// rate-limited) loop of body, terminated by [Fiber.Stop] or
// [Fiber.Terminate]. rate <= 0 means unbounded: body runs back-to-back with
// only a [Snooze] between iterations (so the scheduler still gets to
// deliver a pending signal and run other fibers), never throttled by
// [ThrottledLoop]'s rate limiter.
func SpinLoop(tag string, rate int, body func()) *Fiber {
	return Spin(tag, func() (any, error) {
		if rate <= 0 {
			for {
				body()
				Snooze()
			}
		}
		ThrottledLoop(rate, 0, body)
		return nil, nil
	})
}

// Sleep suspends the calling fiber until interval has elapsed, or until a
// pending [Signal] (delivered via [Fiber.Interrupt]/[Fiber.Stop]/
// [Fiber.Terminate] or a [CancelScope]) preempts it, in which case the
// timer is disarmed as the signal unwinds out of Sleep.
func Sleep(interval time.Duration) {
	f := CurrentFiber()
	handle := f.scheduler.timers.arm(time.Now().Add(interval), 0, f, struct{}{})
	f.scheduler.logTimerArmed(f)
	defer handle.Cancel()
	f.switchFiber()
}

// SleepForever suspends the calling fiber indefinitely. It holds a
// scheduler reference for the duration of the sleep so the scheduler's
// loop does not exit merely because this fiber is the only live work.
func SleepForever() {
	f := CurrentFiber()
	f.scheduler.ref()
	f.referenced = true
	defer func() {
		if f.referenced {
			f.referenced = false
			f.scheduler.unref()
		}
	}()
	f.switchFiber()
}

// Snooze enqueues the calling fiber at the tail of the run queue and
// yields, guaranteeing every other currently-runnable fiber gets a turn
// before it resumes.
func Snooze() {
	f := CurrentFiber()
	f.enqueue(struct{}{})
	f.switchFiber()
}

// Suspend yields the calling fiber without re-enqueuing it; it remains
// Waiting until something else schedules it (another fiber's [Fiber.Schedule]
// or an external call such as [Fiber.Interrupt]). Returns whatever value it
// is resumed with.
func Suspend() any {
	return CurrentFiber().switchFiber()
}

// After spawns a child fiber that sleeps interval and then runs block.
func After(interval time.Duration, block func()) *Fiber {
	return Spin("after", func() (any, error) {
		Sleep(interval)
		block()
		return nil, nil
	})
}

// Every registers a periodic timer against the calling fiber: each fire
// schedules the fiber, which runs block and then waits for the next tick.
// Every blocks for as long as the fiber keeps running (typically forever,
// until a signal unwinds it) — wrap it in [Spin] to run it concurrently
// with the rest of the caller's body.
func Every(interval time.Duration, block func()) {
	f := CurrentFiber()
	handle := f.scheduler.timers.arm(time.Now().Add(interval), interval, f, struct{}{})
	f.scheduler.logTimerArmed(f)
	defer handle.Cancel()
	for {
		f.switchFiber()
		block()
	}
}

// Receive pops the head of the calling fiber's mailbox, suspending until a
// message arrives if it is empty.
func Receive() any {
	return CurrentFiber().Receive()
}

// ReceivePending drains and returns every message currently queued in the
// calling fiber's mailbox without blocking.
func ReceivePending() []any {
	return CurrentFiber().ReceivePending()
}
