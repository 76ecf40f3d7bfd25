//go:build !linux

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollLoop is the portable Loop fallback for non-Linux targets, built on
// unix.Select since epoll is Linux-only. Fine for the small fd counts a
// bscore sink ever registers.
type pollLoop struct {
	mu     sync.Mutex
	fds    map[int]Handler
	closed bool
}

// New returns the portable select-based Loop.
func New() (Loop, error) {
	return &pollLoop{fds: make(map[int]Handler)}, nil
}

func (l *pollLoop) Add(fd int, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoopClosed
	}
	if _, ok := l.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	l.fds[fd] = h
	return nil
}

func (l *pollLoop) Remove(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(l.fds, fd)
	return nil
}

func (l *pollLoop) Run() error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil
		}
		var set unix.FdSet
		maxFd := 0
		for fd := range l.fds {
			set.Set(fd)
			if fd > maxFd {
				maxFd = fd
			}
		}
		handlers := make(map[int]Handler, len(l.fds))
		for fd, h := range l.fds {
			handlers[fd] = h
		}
		l.mu.Unlock()

		timeout := unix.Timeval{Sec: 0, Usec: 200000}
		n, err := unix.Select(maxFd+1, &set, nil, nil, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n <= 0 {
			continue
		}
		for fd, h := range handlers {
			if set.IsSet(fd) && h != nil {
				h()
			}
		}
	}
}

func (l *pollLoop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
