package polyphony

import "testing"

func TestMailbox_FIFOOrderAcrossMultipleSends(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got []any
	sched.Run(func() {
		f := Spin("collector", func() (any, error) {
			for i := 0; i < 3; i++ {
				got = append(got, Receive())
			}
			return nil, nil
		})
		f.Send(1)
		f.Send(2)
		f.Send(3)
		_, _ = f.Await()
	})

	want := []any{1, 2, 3}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMailbox_SendBeforeReceiveQueuesUntilDrained(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got any
	sched.Run(func() {
		f := CurrentFiber()
		f.Send("queued")
		got = Receive()
	})

	if got != "queued" {
		t.Fatalf("got %v, want queued", got)
	}
}

func TestMailbox_SendWhileReceivingDeliversImmediately(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var got any
	sched.Run(func() {
		f := Spin("waiter", func() (any, error) {
			return Receive(), nil
		})
		Snooze() // let waiter block in Receive before we send
		f.Send("delivered")
		got, _ = f.Await()
	})

	if got != "delivered" {
		t.Fatalf("got %v, want delivered", got)
	}
}

func TestMailbox_ReceivePendingDrainsWithoutConsumingFutureSends(t *testing.T) {
	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var first []any
	var second any
	sched.Run(func() {
		f := CurrentFiber()
		f.Send("a")
		f.Send("b")
		first = ReceivePending()
		f.Send("c")
		second = Receive()
	})

	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Fatalf("got %v, want [a b]", first)
	}
	if second != "c" {
		t.Fatalf("got %v, want c", second)
	}
}
