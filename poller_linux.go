//go:build linux

package polyphony

import (
	"golang.org/x/sys/unix"
)

// epollBackend implements [Backend] using Linux epoll. Grounded on the
// teacher's FastPoller, simplified by dropping its RWMutex: a Backend is
// only ever touched from its owning scheduler's single goroutine here, so
// there is no concurrent access to guard against.
type epollBackend struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      []fdInfo
	pending  int
	closed   bool
}

func newDefaultBackend() Backend {
	b := &epollBackend{epfd: -1}
	if err := b.init(); err != nil {
		return newNullBackend()
	}
	return b
}

func (p *epollBackend) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	p.fds = make([]fdInfo, 1024)
	return nil
}

func (p *epollBackend) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
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

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fds[fd] = fdInfo{}
		return err
	}
	p.pending++
	return nil
}

func (p *epollBackend) UnregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.pending--
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollBackend) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollBackend) PollIO(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrBackendClosed
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= len(p.fds) {
			continue
		}
		info := p.fds[fd]
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}

	return n, nil
}

func (p *epollBackend) Pending() int { return p.pending }

func (p *epollBackend) Close() error {
	p.closed = true
	if p.epfd >= 0 {
		return unix.Close(p.epfd)
	}
	return nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
