// Package bscore implements the backing-store worker-pool core of a
// SCSI/iSCSI target daemon: a dispatch queue that hands command
// descriptors from an event-driven foreground to a pool of worker
// goroutines, a completion sink that wakes the foreground when work
// finishes, and a registry backends use to advertise themselves by name.
//
// The actual storage backend, the foreground event loop, and the SCSI
// command's own wire format are treated as external collaborators; bscore
// only touches a command's intrusive queue hook, its async flag, its
// result code, and (in NUMA mode) its node id.
package bscore
