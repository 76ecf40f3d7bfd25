package bscore

// Pinner abstracts NUMA topology and placement so that Pool's worker loop
// never touches sysfs or sched_setaffinity directly. The numa package
// provides the real sysfs-backed implementation; tests use a fixed
// implementation that assigns nodes deterministically.
type Pinner interface {
	// NumNodes returns the number of NUMA nodes workers should be sharded
	// across. A value <= 1 means NUMA mode has nothing to shard over.
	NumNodes() int

	// PinCurrentGoroutine pins the calling goroutine's OS thread to the
	// given node's CPU set. Callers must have already called
	// runtime.LockOSThread.
	PinCurrentGoroutine(node int) error

	// SplitIO decides which NUMA node a command should be serviced on.
	// Called by the worker that dequeues a command whose NodeID is still
	// UnassignedNode; if the answer is not that worker's node, the worker
	// re-queues the command onto the answer's shard. See DESIGN.md Open
	// Question 3 for the placement policy.
	SplitIO(cmd *Command) int
}
