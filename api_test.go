package polyphony

import (
	"errors"
	"testing"
	"time"
)

func TestSpinLoop_UnboundedRateRunsFasterThanOneHertz(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	iterations := 0
	sched.Run(func() {
		f := SpinLoop("looper", 0, func() {
			iterations++
		})
		for iterations < 20 {
			Snooze()
		}
		f.Stop(nil)
		_, _ = f.Await()
	})

	if iterations < 20 {
		t.Fatalf("got %d iterations, want at least 20", iterations)
	}
}

func TestSpinLoop_RateLimitedStaysThrottled(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	iterations := 0
	start := time.Now()
	sched.Run(func() {
		f := SpinLoop("looper", 2, func() {
			iterations++
		})
		for iterations < 3 {
			Sleep(time.Millisecond)
		}
		f.Stop(nil)
		_, _ = f.Await()
	})

	// At 2/sec, reaching 3 iterations takes at least 1 second (the first
	// iteration is free, then one throttled wait per additional iteration).
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Fatalf("3 iterations at 2/sec completed in %v, too fast to have been throttled", elapsed)
	}
}

func TestSpinLoop_StopUnwindsSilently(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var gotErr error
	sched.Run(func() {
		f := SpinLoop("looper", 0, func() {})
		Snooze()
		f.Stop("done")
		var got any
		got, gotErr = f.Await()
		if got != "done" {
			t.Errorf("got %v, want done", got)
		}
	})

	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
}

func TestSpinLoop_TerminateIsUncatchable(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var gotErr error
	sched.Run(func() {
		f := SpinLoop("looper", 0, func() {})
		Snooze()
		f.Terminate()
		_, gotErr = f.Await()
	})

	var term Terminate
	if !errors.As(gotErr, &term) {
		t.Fatalf("got %v, want Terminate", gotErr)
	}
}
