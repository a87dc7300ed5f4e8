package polyphony

import (
	"errors"
	"testing"
)

func TestSupervise_WaitsForAllChildren(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var events []string
	sched.Run(func() {
		children := make([]*Fiber, 0, 3)
		for _, tag := range []string{"a", "b", "c"} {
			tag := tag
			children = append(children, Spin(tag, func() (any, error) {
				return tag, nil
			}))
		}
		err := Supervise(children, func(child *Fiber, value any, err error) {
			events = append(events, value.(string))
		})
		if err != nil {
			t.Errorf("Supervise returned %v, want nil", err)
		}
	})

	// All three children return immediately without suspending, so all three
	// die in the same scheduler pass, before the supervising fiber is ever
	// dequeued: every death must still reach onEvent, not just the last one
	// to overwrite a single pending-death slot.
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}
	seen := map[string]bool{}
	for _, e := range events {
		seen[e] = true
	}
	for _, tag := range []string{"a", "b", "c"} {
		if !seen[tag] {
			t.Fatalf("got %v, missing %q", events, tag)
		}
	}
}

func TestSupervise_EmptyChildrenWithNoCallbackIsUsageError(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got error
	sched.Run(func() {
		got = Supervise(nil, nil)
	})

	var usage *UsageError
	if !errors.As(got, &usage) {
		t.Fatalf("got %v, want *UsageError", got)
	}
}

func TestSupervise_DeathOrderMatchesCompletionOrder(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var order []string
	sched.Run(func() {
		slow := Spin("slow", func() (any, error) {
			Snooze()
			Snooze()
			return "slow", nil
		})
		fast := Spin("fast", func() (any, error) {
			return "fast", nil
		})
		_ = Supervise([]*Fiber{slow, fast}, func(child *Fiber, value any, err error) {
			order = append(order, value.(string))
		})
	})

	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Fatalf("got %v, want [fast slow]", order)
	}
}

func TestSupervise_WithRestartRespawnsChild(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	attempts := 0
	sched.Run(func() {
		child := Spin("flaky", func() (any, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("not yet")
			}
			return "ok", nil
		})

		_ = Supervise([]*Fiber{child}, func(c *Fiber, value any, err error) {},
			WithRestart(func(c *Fiber, outcome Outcome) bool {
				return outcome.Failed() && attempts < 2
			}))
	})

	if attempts != 2 {
		t.Fatalf("got %d attempts, want 2 (one restart)", attempts)
	}
}

func TestSupervise_TerminatedMidWaitCascadesToChildren(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	childDied := false
	var gotErr error
	sched.Run(func() {
		supervisor := Spin("supervisor", func() (any, error) {
			child := Spin("child", func() (any, error) {
				defer func() { childDied = true }()
				SleepForever()
				return nil, nil
			})
			return nil, Supervise([]*Fiber{child}, func(c *Fiber, value any, err error) {})
		})
		Snooze()
		supervisor.Terminate()
		_, gotErr = supervisor.Await()
	})

	if !childDied {
		t.Fatal("expected Supervise to cascade terminate to its still-live child")
	}
	var term Terminate
	if !errors.As(gotErr, &term) {
		t.Fatalf("got %v, want Terminate", gotErr)
	}
}

func TestTerminateChildren_CascadesAndAwaits(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	childDied := false
	sched.Run(func() {
		parent := Spin("parent", func() (any, error) {
			Spin("child", func() (any, error) {
				defer func() { childDied = true }()
				SleepForever()
				return nil, nil
			})
			Snooze()
			TerminateChildren(CurrentFiber())
			return nil, nil
		})
		_, _ = parent.Await()
	})

	if !childDied {
		t.Fatal("expected TerminateChildren to have killed the child before returning")
	}
}
