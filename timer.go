package polyphony

import (
	"container/heap"
	"time"
)

// timerEntry is an armed one-shot or periodic wake-up targeting a fiber.
// interval == 0 means one-shot. Grounded on the teacher's timer/timerHeap
// shape (container/heap over a fireAt-ordered slice), extended with the
// interval/target/signal fields this spec's Timer Service needs.
type timerEntry struct {
	fireAt    time.Time
	interval  time.Duration
	target    *Fiber
	value     any // the value or Signal to deliver on fire
	cancelled bool
	index     int // heap bookkeeping, maintained by container/heap
}

// TimerHandle lets the owner of an armed timer cancel it before it fires.
// Each timer is owned by the fiber that armed it; scope exit must cancel
// it to satisfy the "disarm on every exit path" resource discipline.
type TimerHandle struct {
	entry *timerEntry
}

// Cancel disarms the timer. It is safe to call more than once and safe to
// call after the timer has already fired.
func (h TimerHandle) Cancel() {
	if h.entry != nil {
		h.entry.cancelled = true
	}
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerService owns the scheduler's min-heap of armed timers.
type timerService struct {
	heap timerHeap
}

func newTimerService() *timerService {
	return &timerService{}
}

// arm schedules value to be delivered to target when fireAt is reached,
// repeating every interval thereafter if interval > 0.
func (s *timerService) arm(fireAt time.Time, interval time.Duration, target *Fiber, value any) TimerHandle {
	e := &timerEntry{fireAt: fireAt, interval: interval, target: target, value: value}
	heap.Push(&s.heap, e)
	return TimerHandle{entry: e}
}

// nextFireAt returns the earliest live timer's fire time, and whether any
// live timer exists.
func (s *timerService) nextFireAt() (time.Time, bool) {
	for len(s.heap) > 0 {
		top := s.heap[0]
		if top.cancelled {
			heap.Pop(&s.heap)
			continue
		}
		return top.fireAt, true
	}
	return time.Time{}, false
}

// fireDue pops every timer due at or before now, delivering each one's
// value to its target fiber, and re-arms periodic timers for their next
// interval. Cancelled timers are discarded silently.
func (s *timerService) fireDue(now time.Time) {
	for len(s.heap) > 0 {
		top := s.heap[0]
		if top.cancelled {
			heap.Pop(&s.heap)
			continue
		}
		if top.fireAt.After(now) {
			break
		}
		heap.Pop(&s.heap)

		top.target.scheduleFromBackend(top.value)

		if top.interval > 0 {
			top.fireAt = top.fireAt.Add(top.interval)
			top.cancelled = false
			heap.Push(&s.heap, top)
		}
	}
}

func (s *timerService) len() int { return len(s.heap) }
