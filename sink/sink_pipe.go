package sink

import (
	"os"
	"sync"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/internal/logging"
)

// pipeSink is the portable completion sink: a self-pipe plus a dedicated
// ack goroutine, standing in for bs_init_notify_thread's pipe-and-thread
// pair on platforms without signalfd. Two pipes ping-pong a single-byte
// token back and forth so the foreground never busy-polls and the ack
// goroutine never spins.
type pipeSink struct {
	commandR, commandW *os.File
	doneR, doneW       *os.File

	deliver Deliver
	loop    Loop

	finishedMu   sync.Mutex
	finishedCond *sync.Cond
	finishedHead *bscore.Command
	finishedTail *bscore.Command
	stopping     bool

	ackListMu sync.Mutex // guards ackHead during the foreground's drain window
	ackHead   *bscore.Command

	closeOnce sync.Once
	ackDone   chan struct{}
}

func newPipeSink(loop Loop, deliver Deliver) (Sink, error) {
	commandR, commandW, err := os.Pipe()
	if err != nil {
		return nil, bscore.WrapError("sink.newPipeSink", err)
	}
	doneR, doneW, err := os.Pipe()
	if err != nil {
		commandR.Close()
		commandW.Close()
		return nil, bscore.WrapError("sink.newPipeSink", err)
	}

	s := &pipeSink{
		commandR: commandR, commandW: commandW,
		doneR: doneR, doneW: doneW,
		deliver: deliver, loop: loop,
		ackDone: make(chan struct{}),
	}
	s.finishedCond = sync.NewCond(&s.finishedMu)

	if err := loop.Add(int(doneR.Fd()), s.handleDoneReadable); err != nil {
		commandR.Close()
		commandW.Close()
		doneR.Close()
		doneW.Close()
		return nil, bscore.WrapError("sink.newPipeSink", err)
	}

	go s.ackLoop()

	// Prime the protocol: the ack goroutine starts in awaitCommand, so
	// kick it once to get the first awaitFinished cycle going.
	s.commandW.Write([]byte{0})

	return s, nil
}

// ackLoop is the four-state machine from the pipe-and-ack-thread design:
// awaitCommand -> awaitFinished -> deliver -> awaitCommand. It owns
// finishedList exclusively between awaitFinished and deliver, and hands
// the whole batch to ackHead before writing to doneW, so the foreground
// side never needs finishedMu.
func (s *pipeSink) ackLoop() {
	defer close(s.ackDone)
	logger := logging.Default().With("sink")
	buf := make([]byte, 1)
	for {
		// awaitCommand: block for a rearm token from the foreground.
		if _, err := s.commandR.Read(buf); err != nil {
			logger.Errorf("ack goroutine: command pipe read failed: %v", err)
			return
		}

		s.finishedMu.Lock()
		for s.finishedHead == nil && !s.stopping {
			// awaitFinished
			s.finishedCond.Wait()
		}
		if s.stopping && s.finishedHead == nil {
			s.finishedMu.Unlock()
			return
		}
		batch := s.finishedHead
		s.finishedHead, s.finishedTail = nil, nil
		s.finishedMu.Unlock()

		// deliver: hand the batch to the foreground side and wake it.
		s.ackListMu.Lock()
		s.ackHead = batch
		s.ackListMu.Unlock()

		if _, err := s.doneW.Write([]byte{0}); err != nil {
			logger.Errorf("ack goroutine: done pipe write failed: %v", err)
			return
		}
	}
}

// handleDoneReadable runs on the foreground's own goroutine via the
// eventloop.Loop. It drains ackHead, delivers every command, then rearms
// the ack goroutine by writing one token to commandW.
func (s *pipeSink) handleDoneReadable() {
	buf := make([]byte, 1)
	s.doneR.Read(buf)

	s.ackListMu.Lock()
	cmd := s.ackHead
	s.ackHead = nil
	s.ackListMu.Unlock()

	for cmd != nil {
		next := cmd.Next
		cmd.Next = nil
		s.deliver(cmd)
		cmd = next
	}

	s.commandW.Write([]byte{0})
}

func (s *pipeSink) Notify(cmd *bscore.Command) {
	s.finishedMu.Lock()
	cmd.Next = nil
	if s.finishedTail == nil {
		s.finishedHead = cmd
	} else {
		s.finishedTail.Next = cmd
	}
	s.finishedTail = cmd
	s.finishedMu.Unlock()
	s.finishedCond.Signal()
}

func (s *pipeSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.finishedMu.Lock()
		s.stopping = true
		s.finishedMu.Unlock()
		s.finishedCond.Signal()
		<-s.ackDone

		s.loop.Remove(int(s.doneR.Fd()))
		s.commandR.Close()
		s.commandW.Close()
		s.doneR.Close()
		err = s.doneW.Close()
	})
	return err
}
