//go:build linux

package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/eventloop"
)

// TestSignalSinkDirect exercises newSignalSink directly, the signalfd
// completion path spec.md §8 invariant 3 describes.
func TestSignalSinkDirect(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()
	go loop.Run()

	delivered := make(chan *bscore.Command, 16)
	s, err := newSignalSink(loop, func(cmd *bscore.Command) { delivered <- cmd })
	require.NoError(t, err)
	defer s.Close()

	cmd := &bscore.Command{Op: bscore.OpSync}
	s.Notify(cmd)

	select {
	case got := <-delivered:
		require.Same(t, cmd, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// TestSignalSinkCoalescesBurst asserts that many back-to-back Notify
// calls collapse into completions being drained in batches rather than
// lost, the coalescing property spec.md invariant 3 names explicitly.
func TestSignalSinkCoalescesBurst(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()
	go loop.Run()

	delivered := make(chan *bscore.Command, 2000)
	s, err := newSignalSink(loop, func(cmd *bscore.Command) { delivered <- cmd })
	require.NoError(t, err)
	defer s.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		s.Notify(&bscore.Command{Op: bscore.OpRead, LBA: uint64(i)})
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
