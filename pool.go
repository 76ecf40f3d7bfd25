package bscore

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/openscsi/bscore/internal/logging"
)

// DefaultNumWorkers is the worker count a PoolConfig gets when it doesn't
// specify one, the same default the source hardcodes for nr_iothreads.
const DefaultNumWorkers = 16

// Notifier is the completion-notification half of a Pool. The sink
// package's Sink type satisfies this; it is spelled out here, rather than
// imported, so that bscore itself has no dependency on sink or eventloop
// — callers wire the two together.
type Notifier interface {
	Notify(cmd *Command)
}

// spawnFunc starts one worker goroutine. It exists only so tests can
// inject a failure mode Go's own goroutine creation cannot produce; see
// DESIGN.md's Open Question on simulating pthread_create failure.
type spawnFunc func(p *Pool, idx int) error

// PoolConfig configures a Pool. RequestFn is the only required field.
type PoolConfig struct {
	// RequestFn executes one command against the backing store. Required.
	RequestFn RequestFunc

	// NumWorkers is the worker goroutine count. Defaults to
	// DefaultNumWorkers.
	NumWorkers int

	// NUMA enables NUMA-sharded queueing. Requires Pinner with at least
	// two nodes.
	NUMA   bool
	Pinner Pinner

	// Sink receives finished commands. If nil, Submit-ed commands still
	// run but nothing is notified — suitable only for synchronous tests
	// that don't care about completion delivery.
	Sink Notifier

	// Logger receives pool and worker lifecycle messages. Defaults to
	// logging.Default().
	Logger *logging.Logger

	spawn spawnFunc
}

// DefaultPoolConfig returns a PoolConfig with DefaultNumWorkers workers,
// NUMA disabled, and no sink. Callers typically override Sink and Logger
// before calling Open.
func DefaultPoolConfig(requestFn RequestFunc) PoolConfig {
	return PoolConfig{
		RequestFn:  requestFn,
		NumWorkers: DefaultNumWorkers,
	}
}

type shard struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *Command
	tail *Command
}

func (s *shard) push(cmd *Command) {
	s.mu.Lock()
	cmd.Next = nil
	if s.tail == nil {
		s.head = cmd
	} else {
		s.tail.Next = cmd
	}
	s.tail = cmd
	s.mu.Unlock()
	s.cond.Signal()
}

// Pool is a fixed-size worker-goroutine pool dispatching Commands to a
// RequestFunc and notifying a Notifier on completion. A Pool is single
// use: once Close returns, open a new one (or call Reopen) rather than
// reusing the value.
type Pool struct {
	id        uuid.UUID
	cfg       PoolConfig
	logger    *logging.Logger
	shards    []*shard
	startupWG sync.WaitGroup
	wg        sync.WaitGroup
	nrWorkers atomic.Int32
	stop      atomic.Bool
	stopOnce  sync.Once
}

// Open starts cfg.NumWorkers worker goroutines and returns a running Pool.
func Open(cfg PoolConfig) (*Pool, error) {
	if cfg.RequestFn == nil {
		return nil, NewError("Pool.Open", ErrCodeInvalidParameters, "RequestFn is required")
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}
	if cfg.NUMA {
		if cfg.Pinner == nil || cfg.Pinner.NumNodes() < 2 {
			return nil, NewError("Pool.Open", ErrCodeNUMAUnsupported, "NUMA mode requires a Pinner with at least two nodes")
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.spawn == nil {
		cfg.spawn = defaultSpawn
	}

	nShards := 1
	if cfg.NUMA {
		nShards = cfg.Pinner.NumNodes()
	}

	p := &Pool{
		id:     uuid.New(),
		cfg:    cfg,
		logger: cfg.Logger.With("pool"),
		shards: make([]*shard, nShards),
	}
	for i := range p.shards {
		s := &shard{}
		s.cond = sync.NewCond(&s.mu)
		p.shards[i] = s
	}

	p.startupWG.Add(cfg.NumWorkers)
	started := 0
	var spawnErr error
	for i := 0; i < cfg.NumWorkers; i++ {
		if err := cfg.spawn(p, i); err != nil {
			spawnErr = err
			break
		}
		started++
	}

	if spawnErr != nil {
		p.logger.Errorf("worker %d failed to start: %v", started, spawnErr)
		p.stop.Store(true)
		// Release the barrier for both the workers that did start (so
		// they observe stop and exit) and the Add'd slots that never
		// got a goroutine (so the counter still reaches zero).
		for i := 0; i < cfg.NumWorkers; i++ {
			p.startupWG.Done()
		}
		for _, s := range p.shards {
			s.cond.Broadcast()
		}
		p.wg.Wait()
		return nil, NewErrorWithErrno("Pool.Open", ErrCodeNoMemory, errnoOf(spawnErr))
	}

	// All workers started; release the barrier so they begin servicing
	// their shards simultaneously.
	for i := 0; i < cfg.NumWorkers; i++ {
		p.startupWG.Done()
	}

	p.nrWorkers.Store(int32(cfg.NumWorkers))
	p.logger.Infof("pool %s started with %d workers across %d shard(s)", p.id, cfg.NumWorkers, nShards)
	return p, nil
}

func defaultSpawn(p *Pool, idx int) error {
	p.wg.Add(1)
	go p.workerLoop(idx)
	return nil
}

func errnoOf(err error) syscall.Errno {
	if be, ok := err.(*Error); ok {
		return be.Errno
	}
	return 0
}

// workerLoop is one worker goroutine's entire lifetime: pin, block
// signals, wait at the start barrier, then service its shard until Close.
func (p *Pool) workerLoop(idx int) {
	defer p.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	node := idx % len(p.shards)
	if p.cfg.NUMA {
		if err := p.cfg.Pinner.PinCurrentGoroutine(node); err != nil {
			p.logger.Warnf("worker %d: pin to node %d failed: %v", idx, node, err)
		}
	}
	blockAllSignals()

	p.startupWG.Wait()

	s := p.shards[node]
	for {
		s.mu.Lock()
		for s.head == nil && !p.stop.Load() {
			s.cond.Wait()
		}
		if p.stop.Load() {
			s.mu.Unlock()
			return
		}
		cmd := s.head
		s.head = cmd.Next
		if s.head == nil {
			s.tail = nil
		}
		cmd.Next = nil
		s.mu.Unlock()

		if p.cfg.NUMA {
			if cmd.NodeID == UnassignedNode {
				cmd.NodeID = int32(p.cfg.Pinner.SplitIO(cmd))
			}
			if int(cmd.NodeID) != node {
				p.shards[cmd.NodeID].push(cmd)
				continue
			}
		}

		p.cfg.RequestFn(cmd)

		if p.cfg.Sink != nil {
			p.cfg.Sink.Notify(cmd)
		}
	}
}

// Submit enqueues cmd for asynchronous execution. It returns ErrPoolClosed
// if the pool has already been closed; see DESIGN.md Open Question 5 for
// why this narrows the source's "submit never fails" contract.
func (p *Pool) Submit(cmd *Command) error {
	if p.stop.Load() {
		return ErrPoolClosed
	}

	var node int
	if p.cfg.NUMA {
		node = rand.IntN(len(p.shards))
		cmd.NodeID = UnassignedNode
	}
	cmd.async = true
	p.shards[node].push(cmd)
	return nil
}

// Close stops all workers and waits for them to exit. It does not drain
// commands still sitting in shard queues — an intentional simplification
// carried from the source. Safe to call more than once.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		p.stop.Store(true)
		for _, s := range p.shards {
			s.cond.Broadcast()
		}
		p.wg.Wait()
		p.logger.Infof("pool %s closed", p.id)
	})
}

// NumWorkers reports how many workers were actually started.
func (p *Pool) NumWorkers() int { return int(p.nrWorkers.Load()) }

// ID returns the pool's identity, useful for correlating log lines across
// multiple pools in one process.
func (p *Pool) ID() uuid.UUID { return p.id }

// PoolStats is a point-in-time snapshot of a Pool's identity and shape.
// It carries no completion counters of its own — pair it with a Metrics
// snapshot for throughput and error figures.
type PoolStats struct {
	ID         uuid.UUID
	NumWorkers int
	NumShards  int
	NUMA       bool
}

// Stats reports p's identity and shape, mirroring the backend Stats()
// convention the registry's templates follow but typed for a worker pool
// rather than a map[string]interface{}.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		ID:         p.id,
		NumWorkers: int(p.nrWorkers.Load()),
		NumShards:  len(p.shards),
		NUMA:       p.cfg.NUMA,
	}
}

func (s PoolStats) String() string {
	return fmt.Sprintf("pool %s: %s worker(s) across %s shard(s) (numa=%v)",
		s.ID, humanize.Comma(int64(s.NumWorkers)), humanize.Comma(int64(s.NumShards)), s.NUMA)
}

// Reopen builds a fresh Pool with cfg after closing p. A *Pool's internal
// sync.WaitGroup and sync.Cond values cannot be safely reused once Close
// has returned, so re-open is modeled as constructing new pool state
// rather than mutating p in place.
func (p *Pool) Reopen(cfg PoolConfig) (*Pool, error) {
	p.Close()
	return Open(cfg)
}
