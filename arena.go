package polyphony

// FiberID identifies a fiber by slot index plus generation, so that a
// stale id (held by code that outlived the fiber) can never be confused
// with a later fiber reusing the same slot. Cross-references between
// fibers (parent, children, await waiters) are stored as ids and
// dereferenced through the owning [Scheduler]'s arena, per the scheduler's
// role as the single owner of fiber identity.
type FiberID struct {
	index      uint32
	generation uint32
}

// IsZero reports whether id is the zero value (never assigned).
func (id FiberID) IsZero() bool { return id == FiberID{} }

type arenaSlot struct {
	generation uint32
	fiber      *Fiber
}

// arena is the scheduler-owned table of live fibers, keyed by generational
// id. Unlike a GC-scavenged registry, slots are reclaimed deterministically
// when a fiber is observed dying — fiber death is a scheduler event, not a
// garbage-collection event.
type arena struct {
	slots     []arenaSlot
	freeList  []uint32
	nextGen   uint32
}

func newArena() *arena {
	return &arena{}
}

// insert allocates a slot for f and returns its id.
func (a *arena) insert(f *Fiber) FiberID {
	a.nextGen++
	gen := a.nextGen

	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.slots[idx] = arenaSlot{generation: gen, fiber: f}
		return FiberID{index: idx, generation: gen}
	}

	idx := uint32(len(a.slots))
	a.slots = append(a.slots, arenaSlot{generation: gen, fiber: f})
	return FiberID{index: idx, generation: gen}
}

// lookup resolves an id to its live fiber, or nil if the id is stale (the
// slot has been reclaimed and possibly reused by a newer generation).
func (a *arena) lookup(id FiberID) *Fiber {
	if int(id.index) >= len(a.slots) {
		return nil
	}
	slot := a.slots[id.index]
	if slot.generation != id.generation {
		return nil
	}
	return slot.fiber
}

// release reclaims the slot for id, making it available for reuse under a
// later generation. Called once a fiber transitions to [Dead].
func (a *arena) release(id FiberID) {
	if int(id.index) >= len(a.slots) {
		return
	}
	if a.slots[id.index].generation != id.generation {
		return
	}
	a.slots[id.index] = arenaSlot{}
	a.freeList = append(a.freeList, id.index)
}

// live reports the number of occupied slots, used by tests and diagnostics.
func (a *arena) live() int {
	n := 0
	for _, s := range a.slots {
		if s.fiber != nil {
			n++
		}
	}
	return n
}
