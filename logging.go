package polyphony

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewDiscardLogger returns a [logiface.Logger] that drops every event, the
// default installed by [NewScheduler] when no [WithLogger] option is given.
// Grounded on the teacher's opt-in logging posture (logging.go's
// NoOpLogger), rebuilt on stumpy per logiface-stumpy/example_test.go's
// construction pattern rather than the teacher's hand-rolled Logger
// interface.
func NewDiscardLogger() logiface.Logger[*stumpy.Event] {
	return *stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(*stumpy.Event) error { return nil })),
	)
}

// logSchedulerStart logs a scheduler's entry into its core loop.
func (s *Scheduler) logSchedulerStart() {
	s.logger.Info().Str("event", "scheduler_start").Log("scheduler starting run loop")
}

// logSchedulerStop logs a scheduler's exit from its core loop, including
// the arena's live fiber count: non-zero here means a fiber leaked past
// the loop exit (held a reference, or was never awaited/reaped).
func (s *Scheduler) logSchedulerStop() {
	s.logger.Info().
		Str("event", "scheduler_stop").
		Uint64("live_fibers", uint64(s.arena.live())).
		Log("scheduler run loop exited")
}

// logFiberSpin logs the creation of a fiber.
func (s *Scheduler) logFiberSpin(f *Fiber) {
	s.logger.Debug().
		Str("event", "fiber_spin").
		Uint64("fiber_index", uint64(f.id.index)).
		Uint64("fiber_generation", uint64(f.id.generation)).
		Str("tag", f.tag).
		Str("location", f.location).
		Log("fiber spun")
}

// logFiberDeath logs a fiber's transition to Dead.
func (s *Scheduler) logFiberDeath(f *Fiber, outcome Outcome) {
	e := s.logger.Debug().
		Str("event", "fiber_death").
		Uint64("fiber_index", uint64(f.id.index)).
		Uint64("fiber_generation", uint64(f.id.generation)).
		Str("tag", f.tag)
	if outcome.Failed() {
		e = e.Err(outcome.Err)
	}
	e.Log("fiber died")
}

// logSignalDelivered logs a signal being raised inside a resumed fiber.
func (s *Scheduler) logSignalDelivered(f *Fiber, sig Signal) {
	s.logger.Debug().
		Str("event", "signal_delivered").
		Uint64("fiber_index", uint64(f.id.index)).
		Str("signal", sig.Error()).
		Log("signal delivered")
}

// logTimerArmed logs a timer being armed.
func (s *Scheduler) logTimerArmed(f *Fiber) {
	s.logger.Trace().
		Str("event", "timer_armed").
		Uint64("fiber_index", uint64(f.id.index)).
		Log("timer armed")
}

// logPollError logs a non-fatal error returned from the backend's PollIO.
func (s *Scheduler) logPollError(err error) {
	s.logger.Warning().
		Str("event", "poll_error").
		Err(err).
		Log("backend poll returned an error")
}

// checkStarvation logs a warning once the run queue grows past a
// watermark, the logged equivalent of the original implementation's
// high_watermark/switch_count accounting — purely observability here, since
// the distilled spec treats starvation as a documented trade-off rather
// than an error condition.
func (s *Scheduler) checkStarvation() {
	n := s.runq.len()
	if n <= s.starvationWatermark {
		return
	}
	s.starvationWatermark = n * 2
	s.logger.Warning().
		Str("event", "runqueue_growth").
		Int("length", n).
		Log("run queue grew past its watermark; a fiber may be monopolizing the scheduler")
}
