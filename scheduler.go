package polyphony

import (
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// fiberRegistry maps a goroutine id to the [Fiber] currently running on it,
// the Go realization of "current fiber" thread-local state. Grounded on
// the teacher's getGoroutineID/isLoopThread technique (parsing
// runtime.Stack's "goroutine N" prefix) rather than a context.Context
// thread, since suspension points here are ordinary blocking function
// calls, not something that carries a context down the stack.
var fiberRegistry sync.Map // map[uint64]*Fiber

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// CurrentFiber returns the fiber running on the calling goroutine, or nil
// if the calling goroutine is not inside any [Scheduler]'s fiber.
func CurrentFiber() *Fiber {
	if v, ok := fiberRegistry.Load(getGoroutineID()); ok {
		return v.(*Fiber)
	}
	return nil
}

func currentFiberOrNil() *Fiber { return CurrentFiber() }

// Scheduler is the thread-local driver of fibers, timers and I/O
// readiness. Exactly one instance is active per OS thread that uses the
// runtime; it owns the run queue, the timer heap, a handle to the [Backend],
// and the generational arena that all cross-fiber references resolve
// through.
type Scheduler struct {
	arena  *arena
	runq   *runQueue
	timers *timerService

	backend Backend

	root    *Fiber
	current *Fiber

	refCount int

	logger logiface.Logger[*stumpy.Event]

	starvationWatermark int

	closed bool
}

// NewScheduler creates a Scheduler configured by opts. The scheduler is
// idle until [Scheduler.Run] is called.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}

	backend := cfg.backend
	if backend == nil {
		backend = newDefaultBackend()
	}

	s := &Scheduler{
		arena:               newArena(),
		runq:                newRunQueue(cfg.runQueueCapacityHint),
		timers:              newTimerService(),
		backend:             backend,
		logger:              cfg.logger,
		starvationWatermark: 1024,
	}
	return s, nil
}

// ref increments the scheduler's reference counter, keeping the run loop
// alive even with no runnable fibers (used by sleep_forever so the loop
// does not exit while the only live work is an intentionally-parked
// fiber).
func (s *Scheduler) ref() { s.refCount++ }

// unref decrements the reference counter.
func (s *Scheduler) unref() { s.refCount-- }

// Run spawns entry as the scheduler's root fiber — the fiber active when
// user code is not inside a spawned fiber — and drives the scheduler's
// core loop until the run queue and backend are idle, no fiber holds a
// reference, and no timers remain armed.
func (s *Scheduler) Run(entry func()) error {
	root := newFiber(s, nil, "root")
	s.root = root

	go root.runFromScheduler(func() (any, error) {
		entry()
		return nil, nil
	})
	root.enqueued = true
	s.runq.push(root)

	return s.loop()
}

// loop is the scheduler core:
//  1. if the run queue is non-empty, dequeue and resume the head fiber;
//  2. otherwise wait on the backend until the earliest timer fires or a
//     registered descriptor becomes ready; wake-ups enqueue their targets;
//  3. exit once the run queue and backend are both idle and no fiber is
//     referenced.
func (s *Scheduler) loop() error {
	s.logSchedulerStart()
	defer s.logSchedulerStop()

	for {
		if f, ok := s.runq.pop(); ok {
			f.enqueued = false
			val := f.scheduledVal
			f.scheduledVal = nil
			s.checkStarvation()
			s.resume(f, val)
			continue
		}

		if s.shouldExit() {
			return nil
		}

		now := time.Now()
		if fireAt, ok := s.timers.nextFireAt(); ok && !fireAt.After(now) {
			s.timers.fireDue(now)
			continue
		}

		timeoutMs := s.calculateTimeoutMs(now)
		n, err := s.backend.PollIO(timeoutMs)
		if err != nil {
			s.logPollError(err)
		}
		if n == 0 {
			s.timers.fireDue(time.Now())
		}
	}
}

func (s *Scheduler) shouldExit() bool {
	_, armed := s.timers.nextFireAt()
	return s.refCount <= 0 &&
		s.runq.len() == 0 &&
		!armed &&
		s.backend.Pending() == 0
}

// calculateTimeoutMs returns how long the backend should block: until the
// next timer fires, or indefinitely (-1) if there is referenced or pending
// backend work keeping the loop alive with no deadline.
func (s *Scheduler) calculateTimeoutMs(now time.Time) int {
	if fireAt, ok := s.timers.nextFireAt(); ok {
		d := fireAt.Sub(now)
		if d < 0 {
			return 0
		}
		ms := d.Milliseconds()
		if ms > int64(maxInt32) {
			ms = int64(maxInt32)
		}
		return int(ms)
	}
	return -1
}

const maxInt32 = 1<<31 - 1

// resume hands val to f, blocking until f suspends again or finishes. This
// is the scheduler side of switch_fiber.
func (s *Scheduler) resume(f *Fiber, val any) {
	f.state.Store(Executing)
	prev := s.current
	s.current = f

	f.in <- val
	msg := <-f.out

	s.current = prev

	switch m := msg.(type) {
	case suspendSignal:
		// f.switchFiber already recorded the Waiting state (or left it
		// Runnable if it re-enqueued itself before yielding).
	case doneSignal:
		f.die(m.outcome)
	}
}

// Close releases the scheduler's backend resources. It does not wait for
// in-flight fibers; callers should only Close after [Scheduler.Run]
// returns.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
