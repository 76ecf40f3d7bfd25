//go:build !linux

package sink

import "github.com/openscsi/bscore"

// newSignalSink is unavailable outside Linux: signalfd is a Linux-only
// syscall, so Init always falls through to the pipe-and-ack-thread sink
// here, the same way bs_init_signalfd returning nonzero sends the source
// down the bs_init_notify_thread path.
func newSignalSink(loop Loop, deliver Deliver) (Sink, error) {
	return nil, bscore.NewError("sink.newSignalSink", bscore.ErrCodeSinkUnavailable, "signalfd unsupported on this platform")
}
