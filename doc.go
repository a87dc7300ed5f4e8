// Package polyphony provides a cooperative concurrency runtime built around
// lightweight user-space tasks ("fibers") that suspend transparently on
// mailboxes, timers and I/O, coordinated by a single-threaded [Scheduler]
// per OS thread.
//
// # Architecture
//
// Every [Scheduler] owns a run queue, a timer heap, a handle to an I/O
// [Backend], and a generational arena of live [Fiber] values. User code
// never touches these directly; it calls package-level verbs ([Spin],
// [Sleep], [Every], [MoveOnAfter], [CancelAfter], [Supervise], [Receive], …)
// which resolve the calling goroutine's current fiber and scheduler.
//
// A fiber's body runs on its own goroutine. Suspension ([Fiber.Await],
// [Sleep], [Receive], [WaitIO]) hands control back to the scheduler through
// an unbuffered channel rendezvous rather than a native stack switch — the
// closest analogue Go offers to the suspendable-stack coroutines this
// runtime is modeled on. Exactly one goroutine (the scheduler's own, or the
// single resumed fiber's) runs at any instant per scheduler.
//
// # Platform support
//
// I/O readiness polling uses platform-native mechanisms:
//   - Linux: epoll
//   - Darwin: kqueue
//   - other: a null backend that never reports readiness (timers, mailboxes
//     and ordinary scheduling still work; [WaitIO] blocks forever)
//
// # Thread safety
//
// A [Scheduler] and the [Fiber] values it owns are not safe for concurrent
// use from multiple goroutines except through the documented suspension
// points and [Fiber.Send]/[Fiber.Schedule]/[Fiber.Interrupt]/[Fiber.Stop]/
// [Fiber.Terminate], which may be called cross-fiber by design (that is how
// one fiber signals another). There is no shared mutable state between
// distinct [Scheduler] instances.
//
// # Usage
//
//	sched, err := polyphony.NewScheduler()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sched.Close()
//
//	sched.Run(func() {
//	    f := polyphony.Spin("greeter", func() (any, error) {
//	        polyphony.Sleep(100 * time.Millisecond)
//	        return 42, nil
//	    })
//	    v, err := f.Await()
//	    fmt.Println(v, err)
//	})
//
// # Error types
//
//   - [PanicError]: wraps a panic recovered from a fiber body.
//   - [UsageError]: a caller misused the API (e.g. [Supervise] with nothing
//     to supervise).
//   - [Cancel], [MoveOn], [Interrupt], [Terminate]: the four [Signal] kinds,
//     delivered at suspension points, distinguished from ordinary failures.
//
// All error types implement the standard [error] interface and
// [errors.Unwrap]/[errors.As] matching.
package polyphony
