package polyphony

import (
	"errors"
	"testing"
	"time"
)

func TestMoveOnAfter_TimerWinsWithValue(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got any
	sched.Run(func() {
		f := Spin("slow", func() (any, error) {
			got = MoveOnAfter(5*time.Millisecond, "timed out", func() any {
				SleepForever()
				return "never"
			})
			return nil, nil
		})
		_, _ = f.Await()
	})

	if got != "timed out" {
		t.Fatalf("got %v, want %q", got, "timed out")
	}
}

func TestMoveOnAfter_BodyWinsCancelsTimer(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got any
	sched.Run(func() {
		f := Spin("fast", func() (any, error) {
			got = MoveOnAfter(time.Hour, "timed out", func() any {
				return "finished first"
			})
			return nil, nil
		})
		_, _ = f.Await()
	})

	if got != "finished first" {
		t.Fatalf("got %v, want %q", got, "finished first")
	}
}

func TestCancelAfter_PropagatesCancelPastScope(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var gotErr error
	sched.Run(func() {
		f := Spin("cancellable", func() (any, error) {
			CancelAfter(5*time.Millisecond, func() any {
				SleepForever()
				return nil
			})
			return "unreachable", nil
		})
		_, gotErr = f.Await()
	})

	var c Cancel
	if !errors.As(gotErr, &c) {
		t.Fatalf("got %v, want Cancel", gotErr)
	}
}

func TestCancelScope_NestedMoveOnOnlyCatchesOwnScope(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var outerResult any
	sched.Run(func() {
		f := Spin("nested", func() (any, error) {
			outer := NewCancelScope(ModeStop)
			outerResult = outer.Run(func() any {
				inner := NewCancelScope(ModeStop)
				inner.Cancel() // fires immediately, should be caught by inner
				return inner.Run(func() any {
					SleepForever()
					return "never"
				})
			})
			return nil, nil
		})
		Snooze()
		_, _ = f.Await()
	})

	if outerResult != nil {
		t.Fatalf("got %v, want nil (inner scope should have caught its own signal)", outerResult)
	}
}

func TestCancelScope_CancelIsIdempotent(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	target := newFiberAt(sched, nil, "target", "test")
	c := &CancelScope{mode: ModeStop, target: target}
	c.Cancel()
	if !c.Cancelled() {
		t.Fatal("expected Cancelled() to report true after Cancel()")
	}
	// second call must not panic or double-deliver
	c.Cancel()
}
