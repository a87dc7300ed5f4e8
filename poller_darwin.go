//go:build darwin

package polyphony

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend implements [Backend] using Darwin kqueue. Grounded on the
// teacher's fastPoller (poller_darwin.go), simplified by dropping its
// RWMutex and cache-line padding: a Backend is only ever touched from its
// owning scheduler's single goroutine here, so there is no concurrent
// access to guard against and no false-sharing hotspot to isolate.
type kqueueBackend struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo
	pending  int
	closed   bool
}

func newDefaultBackend() Backend {
	b := &kqueueBackend{kq: -1}
	if err := b.init(); err != nil {
		return newNullBackend()
	}
	return b
}

func (p *kqueueBackend) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make([]fdInfo, 1024)
	return nil
}

func (p *kqueueBackend) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed {
		return ErrBackendClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDNotRegistered
	}

	if fd >= len(p.fds) {
		newSize := fd*2 + 1
		if newSize > maxFDLimit {
			newSize = maxFDLimit + 1
		}
		newFds := make([]fdInfo, newSize)
		copy(newFds, p.fds)
		p.fds = newFds
	}

	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}

	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}

	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			p.fds[fd] = fdInfo{}
			return err
		}
	}
	p.pending++
	return nil
}

func (p *kqueueBackend) UnregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	kevents := eventsToKevents(fd, p.fds[fd].events, unix.EV_DELETE)
	if len(kevents) > 0 {
		_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	}

	p.fds[fd] = fdInfo{}
	p.pending--
	return nil
}

func (p *kqueueBackend) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	oldEvents := p.fds[fd].events
	p.fds[fd].events = events

	if oldEvents&^events != 0 {
		if del := eventsToKevents(fd, oldEvents&^events, unix.EV_DELETE); len(del) > 0 {
			_, _ = unix.Kevent(p.kq, del, nil, nil)
		}
	}
	if events&^oldEvents != 0 {
		if add := eventsToKevents(fd, events&^oldEvents, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
			if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *kqueueBackend) PollIO(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrBackendClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 || fd >= len(p.fds) {
			continue
		}
		info := p.fds[fd]
		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}

	return n, nil
}

func (p *kqueueBackend) Pending() int { return p.pending }

func (p *kqueueBackend) Close() error {
	p.closed = true
	if p.kq >= 0 {
		return unix.Close(p.kq)
	}
	return nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
