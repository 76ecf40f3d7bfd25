// Package eventloop provides a small epoll-based reactor standing in for
// the iSCSI target's foreground event loop. bscore's completion sinks
// register a single readiness fd with a Loop; the Loop has no knowledge
// of Pool, Command, or sinks — it only multiplexes fds and calls back.
package eventloop

import "errors"

// ErrFDAlreadyRegistered is returned by Add when fd is already registered.
var ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")

// ErrFDNotRegistered is returned by Remove when fd isn't registered.
var ErrFDNotRegistered = errors.New("eventloop: fd not registered")

// ErrLoopClosed is returned by Add after Close.
var ErrLoopClosed = errors.New("eventloop: loop closed")

// Handler is invoked when fd becomes readable.
type Handler func()

// Loop multiplexes readiness on a small number of file descriptors,
// grounded in the rest of the pack's epoll reactors but trimmed down to
// the read-only, level-triggered subset bscore's sinks need.
type Loop interface {
	// Add registers fd for read-readiness; h runs on the Loop's own
	// goroutine whenever fd has data to read.
	Add(fd int, h Handler) error

	// Remove unregisters fd.
	Remove(fd int) error

	// Run services registered fds until Close is called.
	Run() error

	// Close stops Run and releases the underlying poller.
	Close() error
}
