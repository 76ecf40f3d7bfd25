package bscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordCompletion(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion(&Command{Op: OpRead, Length: 4096, Result: 0}, 5_000)
	m.RecordCompletion(&Command{Op: OpWrite, Length: 4096, Result: -1}, 5_000)

	assert.Equal(t, uint64(1), m.ReadOps.Load())
	assert.Equal(t, uint64(4096), m.ReadBytes.Load())
	assert.Equal(t, uint64(1), m.WriteOps.Load())
	assert.Equal(t, uint64(1), m.WriteErrors.Load())
	assert.Equal(t, uint64(0), m.WriteBytes.Load())
}

func TestMetricsSnapshotDerivedStats(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.RecordCompletion(&Command{Op: OpRead, Length: 512}, uint64(i)*1000)
	}
	m.Stop()

	snap := m.Snapshot()
	assert.Equal(t, uint64(100), snap.ReadOps)
	assert.Equal(t, uint64(100), snap.TotalOps)
	assert.Equal(t, uint64(51200), snap.TotalBytes)
	assert.Zero(t, snap.ErrorRate)
	require.NotPanics(t, func() { _ = snap.String() })
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion(&Command{Op: OpRead, Length: 1}, 1)
	m.Reset()
	assert.Zero(t, m.ReadOps.Load())
	assert.Zero(t, m.OpCount.Load())
}

func TestMetricsObserverForwardsToNext(t *testing.T) {
	forwarded := make(chan *Command, 1)
	m := NewMetrics()
	obs := NewMetricsObserver(m, notifierFunc(func(cmd *Command) { forwarded <- cmd }))

	cmd := &Command{Op: OpSync}
	obs.Notify(cmd)

	assert.Equal(t, uint64(1), m.SyncOps.Load())
	select {
	case got := <-forwarded:
		assert.Same(t, cmd, got)
	default:
		t.Fatal("expected forwarded completion")
	}
}

type notifierFunc func(cmd *Command)

func (f notifierFunc) Notify(cmd *Command) { f(cmd) }
