//go:build linux

package bscore

import "golang.org/x/sys/unix"

// blockAllSignals masks every signal on the calling thread, so that
// SIGUSR2 (used by the signalfd completion sink) can never land on a
// worker. Mirrors the source's observation that worker threads "block all
// signals" as a matter of course.
func blockAllSignals() {
	var full unix.Sigset_t
	for i := range full.Val {
		full.Val[i] = ^uint64(0)
	}
	unix.PthreadSigmask(unix.SIG_BLOCK, &full, nil)
}
