//go:build linux

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

const maxEvents = 64

// epollLoop is the Linux Loop implementation, modeled on FastPoller: an
// epoll fd plus a small registration table protected by a mutex, with
// callbacks dispatched inline from Run's own goroutine.
type epollLoop struct {
	epfd int

	mu     sync.Mutex
	fds    map[int]Handler
	closed bool

	wakeR, wakeW int // self-pipe so Close can interrupt EpollWait
}

// New returns the Linux epoll-backed Loop.
func New() (Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	fds := []int{0, 0}
	if err := unix.Pipe2(fds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	l := &epollLoop{epfd: epfd, fds: make(map[int]Handler), wakeR: fds[0], wakeW: fds[1]}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, l.wakeR, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(l.wakeR)}); err != nil {
		unix.Close(epfd)
		unix.Close(l.wakeR)
		unix.Close(l.wakeW)
		return nil, err
	}
	return l, nil
}

func (l *epollLoop) Add(fd int, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoopClosed
	}
	if _, ok := l.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	l.fds[fd] = h
	return nil
}

func (l *epollLoop) Remove(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(l.fds, fd)
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (l *epollLoop) Run() error {
	var events [maxEvents]unix.EpollEvent
	for {
		n, err := unix.EpollWait(l.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakeR {
				l.mu.Lock()
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return nil
				}
				var buf [64]byte
				unix.Read(l.wakeR, buf[:])
				continue
			}
			l.mu.Lock()
			h, ok := l.fds[fd]
			l.mu.Unlock()
			if ok && h != nil {
				h()
			}
		}
	}
}

func (l *epollLoop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	unix.Write(l.wakeW, []byte{0})
	unix.Close(l.wakeR)
	unix.Close(l.wakeW)
	return unix.Close(l.epfd)
}
