// Package memstore is an in-memory backing store: a RequestFunc
// implementation good for tests and the demo command, using sharded
// locking over a RAM buffer and executing Commands directly instead of
// a ReadAt/WriteAt byte-range interface.
package memstore

import (
	"io"
	"sync"
	"time"

	"github.com/openscsi/bscore"
)

// ShardSize is the size of each memory shard (64KB), a balance between
// parallelism for small random I/O and lock overhead.
const ShardSize = 64 * 1024

// Store is a RAM-backed LU. It uses sharded locking so that concurrent
// workers touching disjoint regions don't serialize on a single mutex.
type Store struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// New creates a new Store of the given size in bytes.
func New(size int64) *Store {
	numShards := (size + ShardSize - 1) / ShardSize
	if numShards < 1 {
		numShards = 1
	}
	return &Store{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

func (s *Store) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(s.shards) {
		end = len(s.shards) - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

// Request implements bscore.RequestFunc: it executes cmd against the
// store and sets cmd.Result (0 for success, a negative SCSI-style code on
// failure, matching the source's convention that RequestFunc callers
// never see a Go error — only cmd.Result).
func (s *Store) Request(cmd *bscore.Command) {
	off := int64(cmd.LBA)
	length := int64(cmd.Length)

	switch cmd.Op {
	case bscore.OpRead:
		cmd.Result = s.readAt(cmd.Buffer, off, length)
	case bscore.OpWrite:
		cmd.Result = s.writeAt(cmd.Buffer, off, length)
	case bscore.OpUnmap:
		cmd.Result = s.discard(off, length)
	case bscore.OpSync:
		cmd.Result = 0
	default:
		cmd.Result = -1
	}
}

func (s *Store) readAt(p []byte, off, length int64) int32 {
	if off < 0 || off >= s.size {
		return -1
	}
	if int64(len(p)) < length {
		return -1
	}
	available := s.size - off
	if length > available {
		length = available
	}

	start, end := s.shardRange(off, length)
	for i := start; i <= end; i++ {
		s.shards[i].RLock()
	}
	copy(p[:length], s.data[off:off+length])
	for i := start; i <= end; i++ {
		s.shards[i].RUnlock()
	}
	return 0
}

func (s *Store) writeAt(p []byte, off, length int64) int32 {
	if off < 0 || off >= s.size {
		return -1
	}
	available := s.size - off
	if length > available {
		length = available
	}
	if int64(len(p)) < length {
		length = int64(len(p))
	}

	start, end := s.shardRange(off, length)
	for i := start; i <= end; i++ {
		s.shards[i].Lock()
	}
	copy(s.data[off:off+length], p[:length])
	for i := start; i <= end; i++ {
		s.shards[i].Unlock()
	}
	return 0
}

func (s *Store) discard(off, length int64) int32 {
	if off < 0 || off >= s.size {
		return 0
	}
	end := off + length
	if end > s.size {
		end = s.size
	}

	startShard, endShard := s.shardRange(off, end-off)
	for i := startShard; i <= endShard; i++ {
		s.shards[i].Lock()
	}
	for i := off; i < end; i++ {
		s.data[i] = 0
	}
	for i := startShard; i <= endShard; i++ {
		s.shards[i].Unlock()
	}
	return 0
}

// Size returns the store's capacity in bytes.
func (s *Store) Size() int64 { return s.size }

// Close implements io.Closer; memstore has nothing to release beyond
// letting the backing slice be collected.
func (s *Store) Close() error {
	s.data = nil
	return nil
}

// Template describes memstore as a bscore.Registry backend named "mem".
// cfg["size"] isn't parsed here — callers needing a particular size use
// New directly; Template exists so memstore can be exercised the same way
// a real backend advertises itself via bscore.RegisterBackend.
var Template = bscore.Template{
	Name: "mem",
	New: func(cfg map[string]string) (bscore.RequestFunc, io.Closer, error) {
		size := int64(64 * 1024 * 1024)
		store := New(size)
		return store.Request, store, nil
	},
}

// WithLatency wraps a Store's Request so every command sleeps for
// delay(cmd) before executing, for exercising spec.md §8 E2 (latency
// spread) and E3 (burst) without needing real I/O latency.
func WithLatency(s *Store, delay func(cmd *bscore.Command) time.Duration) bscore.RequestFunc {
	return func(cmd *bscore.Command) {
		if d := delay(cmd); d > 0 {
			time.Sleep(d)
		}
		s.Request(cmd)
	}
}
