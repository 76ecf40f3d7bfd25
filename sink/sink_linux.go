//go:build linux

package sink

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openscsi/bscore"
)

// signalSink delivers completions via a signalfd armed for SIGUSR2: every
// worker that finishes a command appends it to a shared list and sends
// itself SIGUSR2, the same way bs_sig_request_done's handler is woken.
// Multiple signals delivered before the foreground gets to drain collapse
// into a single readiness event, exactly like signalfd coalescing in the
// source.
type signalSink struct {
	fd       int
	deliver  Deliver
	loop     Loop

	mu      sync.Mutex
	head    *bscore.Command
	tail    *bscore.Command

	closeOnce sync.Once
}

func newSignalSink(loop Loop, deliver Deliver) (Sink, error) {
	var mask unix.Sigset_t
	mask.Val[0] = 1 << (uint(unix.SIGUSR2) - 1)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, bscore.WrapError("sink.newSignalSink", err)
	}

	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return nil, bscore.WrapError("sink.newSignalSink", err)
	}

	s := &signalSink{fd: fd, deliver: deliver, loop: loop}
	if err := loop.Add(fd, s.handleReadable); err != nil {
		unix.Close(fd)
		return nil, bscore.WrapError("sink.newSignalSink", err)
	}
	return s, nil
}

// handleReadable drains the signalfd (possibly several coalesced
// SIGUSR2 deliveries at once) and then drains the whole finished list in
// one pass, mirroring bs_sig_request_done's list_splice_init.
func (s *signalSink) handleReadable() {
	buf := make([]byte, unix.SizeofSignalfdSiginfo)
	for {
		_, err := unix.Read(s.fd, buf)
		if err != nil {
			break
		}
	}

	s.mu.Lock()
	cmd := s.head
	s.head, s.tail = nil, nil
	s.mu.Unlock()

	for cmd != nil {
		next := cmd.Next
		cmd.Next = nil
		s.deliver(cmd)
		cmd = next
	}
}

func (s *signalSink) Notify(cmd *bscore.Command) {
	s.mu.Lock()
	cmd.Next = nil
	if s.tail == nil {
		s.head = cmd
	} else {
		s.tail.Next = cmd
	}
	s.tail = cmd
	s.mu.Unlock()

	unix.Kill(os.Getpid(), unix.SIGUSR2)
}

func (s *signalSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.loop.Remove(s.fd)
		err = unix.Close(s.fd)
	})
	return err
}
