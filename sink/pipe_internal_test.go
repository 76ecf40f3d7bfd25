package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/eventloop"
)

// TestPipeSinkDirect exercises newPipeSink directly, bypassing sink.Init's
// signalfd-first fallback order, so the pipe-and-ack-goroutine variant
// gets coverage even on platforms where signalfd also succeeds.
func TestPipeSinkDirect(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()
	go loop.Run()

	delivered := make(chan *bscore.Command, 16)
	s, err := newPipeSink(loop, func(cmd *bscore.Command) { delivered <- cmd })
	require.NoError(t, err)
	defer s.Close()

	cmd := &bscore.Command{Op: bscore.OpUnmap, LBA: 7}
	s.Notify(cmd)

	select {
	case got := <-delivered:
		require.Same(t, cmd, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// TestPipeSinkDirectCoalescesBurst exercises the pipe-and-ack-goroutine
// variant directly with many back-to-back Notify calls, which ackLoop may
// hand over in one or several batches, and checks that every one is
// delivered.
func TestPipeSinkDirectCoalescesBurst(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()
	go loop.Run()

	delivered := make(chan *bscore.Command, 1000)
	s, err := newPipeSink(loop, func(cmd *bscore.Command) { delivered <- cmd })
	require.NoError(t, err)
	defer s.Close()

	const n = 500
	for i := 0; i < n; i++ {
		s.Notify(&bscore.Command{Op: bscore.OpWrite, LBA: uint64(i)})
	}

	seen := 0
	for seen < n {
		select {
		case <-delivered:
			seen++
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d deliveries", seen, n)
		}
	}
}
