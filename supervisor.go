package polyphony

// supervisorOptions holds configuration resolved from [SupervisorOption]s.
type supervisorOptions struct {
	restart func(child *Fiber, outcome Outcome) bool
}

// SupervisorOption configures [Supervise].
type SupervisorOption interface {
	applySupervisor(*supervisorOptions)
}

type supervisorOptionFunc func(*supervisorOptions)

func (f supervisorOptionFunc) applySupervisor(opts *supervisorOptions) { f(opts) }

// WithRestart installs a restart predicate, resolving the distilled spec's
// open question about supervisor restart semantics: on a child's death,
// predicate is consulted with the dying fiber and its outcome; if it
// returns true, a fresh [Fiber] is spawned re-invoking the child's original
// spawn body (same tag, same location). The respawned fiber has a new
// [FiberID], an empty mailbox, and no inherited await waiters — identity is
// not preserved across a restart.
func WithRestart(predicate func(child *Fiber, outcome Outcome) bool) SupervisorOption {
	return supervisorOptionFunc(func(opts *supervisorOptions) {
		opts.restart = predicate
	})
}

// Supervise suspends the calling fiber until every fiber in children has
// died, invoking onEvent (if non-nil) once per death in death order. It
// fails with a [UsageError] if children is empty and onEvent is nil — the
// distilled spec's "no children and no block" usage error. If a
// [WithRestart] option is supplied and its predicate approves a
// restart, the dying child is replaced with a freshly spawned fiber and
// supervision continues to wait on the replacement instead.
//
// If the calling fiber itself is interrupted, cancelled, stopped or
// terminated while waiting, Supervise cascades [Terminate] to every still
// live child and awaits their death (see [TerminateChildren]) before
// re-raising the signal, so the wait never leaves orphaned children
// running behind an unwound supervisor.
func Supervise(children []*Fiber, onEvent func(child *Fiber, value any, err error), opts ...SupervisorOption) error {
	if len(children) == 0 && onEvent == nil {
		return &UsageError{Message: "polyphony: supervise requires children or an event callback"}
	}

	cfg := &supervisorOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applySupervisor(cfg)
		}
	}

	self := CurrentFiber()
	remaining := 0

	// pendingDeaths is its own queue rather than riding the fiber's single
	// scheduled_value slot (the one enqueue/Schedule/Interrupt/timers all
	// share): two or more children dying in the same scheduler pass, before
	// self is dequeued, would otherwise have each death's enqueue call
	// overwrite the last one's scheduled_value, silently losing every death
	// but the final one.
	var pendingDeaths []*Fiber

	var watch func(child *Fiber)
	watch = func(child *Fiber) {
		remaining++
		child.watchDeath(func(dead *Fiber) {
			pendingDeaths = append(pendingDeaths, dead)
			self.enqueue(struct{}{})
		})
	}
	for _, c := range children {
		watch(c)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		TerminateChildren(self)
		panic(r)
	}()

	for remaining > 0 {
		self.switchFiber()

		deaths := pendingDeaths
		pendingDeaths = nil
		for _, dead := range deaths {
			remaining--

			outcome, _ := dead.Result()
			if onEvent != nil {
				onEvent(dead, outcome.Value, outcome.Err)
			}

			if cfg.restart != nil && cfg.restart(dead, outcome) {
				parent := dead.scheduler.arena.lookup(dead.parentID)
				replacement := newFiberAt(dead.scheduler, parent, dead.spawnTag, dead.location)
				replacement.spawnTag = dead.spawnTag
				replacement.spawnBody = dead.spawnBody
				if parent != nil {
					parent.children[replacement.id] = struct{}{}
				}
				go replacement.runFromScheduler(dead.spawnBody)
				replacement.enqueued = true
				replacement.scheduler.runq.push(replacement)
				watch(replacement)
			}
		}
	}
	return nil
}

// TerminateChildren cascades [Fiber.Terminate] to every currently live
// child of f and suspends the caller until all of them have died. Intended
// for a supervisor's own termination handling, matching the distilled
// spec's "on its own termination, cascades terminate to every still-live
// child and awaits their death before itself transitioning to dead."
func TerminateChildren(f *Fiber) {
	children := f.Children()
	if len(children) == 0 {
		return
	}
	for _, c := range children {
		c.Terminate()
	}
	for _, c := range children {
		_, _ = c.Await()
	}
}
