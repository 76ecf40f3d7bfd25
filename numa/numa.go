// Package numa discovers NUMA topology from sysfs and pins worker
// goroutines to the CPUs of a given node, the Go equivalent of the
// source's libnuma-based bs_thread_worker_fn NUMA branch.
package numa

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openscsi/bscore"
)

const nodeSysfsDir = "/sys/devices/system/node"

// SysPinner is the sysfs/sched_setaffinity-backed bscore.Pinner. A zero
// value is not usable; construct with DiscoverPinner.
type SysPinner struct {
	nodeCPUs [][]int
}

var _ bscore.Pinner = (*SysPinner)(nil)

// DiscoverPinner reads /sys/devices/system/node to build a Pinner
// reflecting the machine's real NUMA topology. It returns an error
// wrapping bscore.ErrCodeNUMAUnsupported if the node directory doesn't
// exist — the Go equivalent of numa_available() returning -1.
func DiscoverPinner() (bscore.Pinner, error) {
	entries, err := os.ReadDir(nodeSysfsDir)
	if err != nil {
		return nil, bscore.NewErrorWithErrno("numa.Discover", bscore.ErrCodeNUMAUnsupported, unix.ENOSYS)
	}

	var nodeIDs []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		nodeIDs = append(nodeIDs, n)
	}
	if len(nodeIDs) == 0 {
		return nil, bscore.NewError("numa.Discover", bscore.ErrCodeNUMAUnsupported, "no NUMA nodes found under "+nodeSysfsDir)
	}
	sort.Ints(nodeIDs)

	nodeCPUs := make([][]int, len(nodeIDs))
	for i, n := range nodeIDs {
		cpus, err := readCPUList(filepath.Join(nodeSysfsDir, fmt.Sprintf("node%d", n), "cpulist"))
		if err != nil {
			return nil, bscore.WrapError("numa.Discover", err)
		}
		nodeCPUs[i] = cpus
	}

	return &SysPinner{nodeCPUs: nodeCPUs}, nil
}

// readCPUList parses sysfs cpulist syntax, e.g. "0-3,8,10-11".
func readCPUList(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cpus []int
	for _, field := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if field == "" {
			continue
		}
		if dash := strings.IndexByte(field, '-'); dash >= 0 {
			lo, err := strconv.Atoi(field[:dash])
			if err != nil {
				return nil, err
			}
			hi, err := strconv.Atoi(field[dash+1:])
			if err != nil {
				return nil, err
			}
			for c := lo; c <= hi; c++ {
				cpus = append(cpus, c)
			}
		} else {
			c, err := strconv.Atoi(field)
			if err != nil {
				return nil, err
			}
			cpus = append(cpus, c)
		}
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("numa: empty cpulist at %s", path)
	}
	return cpus, nil
}

// NumNodes implements bscore.Pinner.
func (p *SysPinner) NumNodes() int { return len(p.nodeCPUs) }

// PinCurrentGoroutine implements bscore.Pinner via sched_setaffinity over
// the node's full CPU set. Callers must already hold runtime.LockOSThread.
// Only CPU affinity is set; the thread's preferred memory-allocation node
// is left unchanged.
func (p *SysPinner) PinCurrentGoroutine(node int) error {
	if node < 0 || node >= len(p.nodeCPUs) {
		return bscore.NewError("numa.PinCurrentGoroutine", bscore.ErrCodeInvalidParameters, fmt.Sprintf("node %d out of range", node))
	}
	var set unix.CPUSet
	for _, cpu := range p.nodeCPUs[node] {
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return bscore.WrapError("numa.PinCurrentGoroutine", err)
	}
	return nil
}

// SplitIO implements bscore.Pinner. The source sprays misplaced commands
// across nodes with random(); see DESIGN.md Open Question 3 for why a
// uniform random choice, not a deterministic one, is the faithful
// translation. SplitIO is called concurrently by every worker goroutine,
// so this uses math/rand/v2's package-level generator (documented safe
// for concurrent use) rather than a private *rand.Rand, the same
// reasoning pool.go's Submit already applies to its NUMA spray.
func (p *SysPinner) SplitIO(cmd *bscore.Command) int {
	return rand.IntN(len(p.nodeCPUs))
}

// FixedPinner is a deterministic bscore.Pinner for tests: it reports a
// fixed node count and never actually touches scheduler affinity,
// answering SplitIO via a caller-supplied function.
//
// PinCurrentGoroutine is called once per worker goroutine at pool
// startup, concurrently whenever NumWorkers > 1, so the Pinned record is
// guarded by pinnedMu rather than appended to directly.
type FixedPinner struct {
	Nodes  int
	NodeOf func(cmd *bscore.Command) int

	pinnedMu sync.Mutex
	Pinned   []int // nodes PinCurrentGoroutine was called with, for assertions
}

var _ bscore.Pinner = (*FixedPinner)(nil)

// NewFixedPinner returns a FixedPinner with the given node count, placing
// commands via nodeOf (or round-robin over cmd.LBA if nodeOf is nil).
func NewFixedPinner(nodeOf func(cmd *bscore.Command) int, nodes int) bscore.Pinner {
	if nodeOf == nil {
		nodeOf = func(cmd *bscore.Command) int {
			if nodes <= 0 {
				return 0
			}
			return int(cmd.LBA) % nodes
		}
	}
	return &FixedPinner{Nodes: nodes, NodeOf: nodeOf}
}

func (p *FixedPinner) NumNodes() int { return p.Nodes }

func (p *FixedPinner) PinCurrentGoroutine(node int) error {
	p.pinnedMu.Lock()
	p.Pinned = append(p.Pinned, node)
	p.pinnedMu.Unlock()
	return nil
}

// PinnedNodes returns a snapshot of every node PinCurrentGoroutine has
// been called with so far, safe to call concurrently with running
// workers.
func (p *FixedPinner) PinnedNodes() []int {
	p.pinnedMu.Lock()
	defer p.pinnedMu.Unlock()
	out := make([]int, len(p.Pinned))
	copy(out, p.Pinned)
	return out
}

func (p *FixedPinner) SplitIO(cmd *bscore.Command) int { return p.NodeOf(cmd) }
