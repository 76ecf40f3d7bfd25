package numa_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/numa"
)

func TestFixedPinnerRoundRobin(t *testing.T) {
	p := numa.NewFixedPinner(nil, 4)
	require.Equal(t, 4, p.NumNodes())

	for lba := uint64(0); lba < 12; lba++ {
		cmd := &bscore.Command{LBA: lba}
		assert.Equal(t, int(lba%4), p.SplitIO(cmd))
	}
}

func TestFixedPinnerCustomPlacement(t *testing.T) {
	calls := 0
	p := numa.NewFixedPinner(func(cmd *bscore.Command) int {
		calls++
		return int(cmd.LBA) % 2
	}, 2)

	assert.Equal(t, 0, p.SplitIO(&bscore.Command{LBA: 10}))
	assert.Equal(t, 1, p.SplitIO(&bscore.Command{LBA: 11}))
	assert.Equal(t, 2, calls)
}

func TestFixedPinnerPinCurrentGoroutineRecordsCalls(t *testing.T) {
	p := numa.NewFixedPinner(nil, 2).(*numa.FixedPinner)
	require.NoError(t, p.PinCurrentGoroutine(1))
	require.NoError(t, p.PinCurrentGoroutine(0))
	assert.Equal(t, []int{1, 0}, p.PinnedNodes())
}

// TestPoolNUMARerouteWithFixedPinner exercises spec.md invariant 7: a
// command placed on the wrong shard is handed to the right one and still
// completes exactly once.
func TestPoolNUMARerouteWithFixedPinner(t *testing.T) {
	pinner := numa.NewFixedPinner(func(cmd *bscore.Command) int {
		return int(cmd.LBA) % 3
	}, 3)

	done := make(chan *bscore.Command, 100)
	sinkNotify := notifierFunc(func(cmd *bscore.Command) { done <- cmd })

	p, err := bscore.Open(bscore.PoolConfig{
		RequestFn:  func(cmd *bscore.Command) { cmd.Result = 0 },
		NumWorkers: 3,
		NUMA:       true,
		Pinner:     pinner,
		Sink:       sinkNotify,
	})
	require.NoError(t, err)
	defer p.Close()

	const n = 300
	for i := 0; i < n; i++ {
		cmd := &bscore.Command{Op: bscore.OpRead, LBA: uint64(i), NodeID: bscore.UnassignedNode}
		require.NoError(t, p.Submit(cmd))
	}

	seen := make(map[*bscore.Command]bool, n)
	for i := 0; i < n; i++ {
		select {
		case cmd := <-done:
			assert.NotEqual(t, bscore.UnassignedNode, cmd.NodeID)
			assert.Equal(t, int32(cmd.LBA%3), cmd.NodeID)
			assert.False(t, seen[cmd], "command delivered more than once")
			seen[cmd] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d completions", i, n)
		}
	}

	p.Close()
	assert.Len(t, pinner.(*numa.FixedPinner).PinnedNodes(), 3)
}

type notifierFunc func(cmd *bscore.Command)

func (f notifierFunc) Notify(cmd *bscore.Command) { f(cmd) }
