//go:build !linux

package bscore

// blockAllSignals is a no-op outside Linux: pthread_sigmask's portable
// equivalent varies by OS and no completion sink on those platforms relies
// on signal delivery (sink.Init always falls back to the pipe sink there).
func blockAllSignals() {}
