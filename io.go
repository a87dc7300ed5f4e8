// Package polyphony's I/O integration contract: the core does not implement
// I/O itself, it only defines wait_io and the retry/EOF/cancellation
// contract the platform-specific syscall wrappers in io_unix.go/io_other.go
// must honor.
package polyphony

import "io"

// WaitIO suspends the calling fiber until fd is ready for reading (or, if
// writable is true, for writing), then returns. The registration with the
// [Backend] is disarmed on every exit path — normal return or a signal
// unwinding through the suspension point — satisfying the same
// scope-resource discipline as a [CancelScope]'s timer.
func WaitIO(fd int, writable bool) error {
	f := CurrentFiber()
	events := EventRead
	if writable {
		events = EventWrite
	}

	registered := true
	unregister := func() {
		if registered {
			registered = false
			_ = f.scheduler.backend.UnregisterFD(fd)
		}
	}
	cb := IOCallback(func(IOEvents) {
		unregister()
		f.scheduleFromBackend(struct{}{})
	})

	if err := f.scheduler.backend.RegisterFD(fd, events, cb); err != nil {
		return err
	}
	defer unregister()

	f.switchFiber()
	return nil
}

// Feed is the capability [FeedLoop] drives: a single-method sink for
// successive chunks read from a stream. Resolves the distilled spec's
// dynamic-dispatch note for feed_loop(target, method) — in this statically
// typed host, target is required to satisfy Feed directly rather than being
// reflectively dispatched by method name.
type Feed interface {
	Feed(chunk []byte) error
}

// FeedFunc adapts a plain function to [Feed], for callers who only have a
// callable rather than an object exposing a named method.
type FeedFunc func(chunk []byte) error

func (f FeedFunc) Feed(chunk []byte) error { return f(chunk) }

// ReadLoop reads from r in a loop, invoking onChunk for each chunk read
// (reusing buf as scratch space — onChunk must not retain it past the
// call), until r reports io.EOF (swallowed, ReadLoop returns nil) or
// returns any other error (returned as-is), or a [Signal] unwinds the
// calling fiber out of a suspended Read.
func ReadLoop(r io.Reader, buf []byte, onChunk func([]byte) error) error {
	if len(buf) == 0 {
		buf = make([]byte, 4096)
	}
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if cerr := onChunk(buf[:n]); cerr != nil {
				return cerr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// FeedLoop reads from r in a loop and feeds each chunk to target.Feed,
// terminating on EOF (returns nil) or the first error from either the read
// or target.Feed, or cancellation of the calling fiber.
func FeedLoop(r io.Reader, buf []byte, target Feed) error {
	return ReadLoop(r, buf, target.Feed)
}
