// Package sink implements the completion-notification half of a Pool: a
// way for worker goroutines to wake the foreground once commands finish,
// without the foreground busy-polling the shards. Two implementations
// exist, mirroring bs_init's own fallback: a signalfd-based sink on
// platforms that support it, and a pipe-plus-ack-goroutine sink
// everywhere else.
package sink

import (
	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/eventloop"
)

// Sink delivers finished commands to the foreground. Workers call Notify,
// which appends the command to the sink's own finished list; Notify must
// never block the calling worker for long — coalescing multiple
// back-to-back notifications into one wakeup is expected and desired.
type Sink interface {
	// Notify informs the sink that cmd has finished and should be
	// delivered to the foreground's deliver callback.
	Notify(cmd *bscore.Command)

	// Close stops the sink and releases its fd(s). Safe to call once;
	// a second call is a no-op.
	Close() error
}

// Loop is an alias for eventloop.Loop, which a sink uses to register its
// own readiness fd.
type Loop = eventloop.Loop

// Deliver is called on the foreground's own goroutine (from inside a
// Loop callback) for each command the sink has been notified about.
type Deliver func(cmd *bscore.Command)

// Init constructs the best available Sink for the running platform: it
// tries the signalfd-based implementation first and falls back to the
// pipe-and-ack-thread implementation if signalfd setup fails, the same
// fallback order as bs_init trying bs_init_signalfd before
// bs_init_notify_thread.
func Init(loop Loop, deliver Deliver) (Sink, error) {
	if s, err := newSignalSink(loop, deliver); err == nil {
		return s, nil
	}
	return newPipeSink(loop, deliver)
}
