package polyphony

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// schedulerOptions holds configuration resolved from [SchedulerOption]s.
type schedulerOptions struct {
	logger               logiface.Logger[*stumpy.Event]
	backend              Backend
	runQueueCapacityHint int
}

// SchedulerOption configures a [Scheduler] at construction time.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionFunc func(*schedulerOptions) error

func (f schedulerOptionFunc) applyScheduler(opts *schedulerOptions) error { return f(opts) }

// WithLogger sets the structured logger used for scheduler and fiber
// lifecycle events. The default logger discards everything.
func WithLogger(logger logiface.Logger[*stumpy.Event]) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	})
}

// WithBackend overrides the platform-default I/O readiness [Backend],
// primarily useful in tests.
func WithBackend(backend Backend) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) error {
		opts.backend = backend
		return nil
	})
}

// WithRunQueueCapacityHint sizes the run queue's initial backing buffer.
func WithRunQueueCapacityHint(n int) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) error {
		opts.runQueueCapacityHint = n
		return nil
	})
}

func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		logger: NewDiscardLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
