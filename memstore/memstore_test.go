package memstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/memstore"
)

func TestStoreWriteThenRead(t *testing.T) {
	s := memstore.New(4096)
	defer s.Close()

	write := &bscore.Command{Op: bscore.OpWrite, LBA: 0, Length: 5, Buffer: []byte("hello")}
	s.Request(write)
	require.Equal(t, int32(0), write.Result)

	readBuf := make([]byte, 5)
	read := &bscore.Command{Op: bscore.OpRead, LBA: 0, Length: 5, Buffer: readBuf}
	s.Request(read)
	require.Equal(t, int32(0), read.Result)
	assert.Equal(t, "hello", string(readBuf))
}

func TestStoreReadBeyondEndFails(t *testing.T) {
	s := memstore.New(100)
	defer s.Close()

	cmd := &bscore.Command{Op: bscore.OpRead, LBA: 200, Length: 10, Buffer: make([]byte, 10)}
	s.Request(cmd)
	assert.NotEqual(t, int32(0), cmd.Result)
}

func TestStoreUnmapZeroes(t *testing.T) {
	s := memstore.New(100)
	defer s.Close()

	s.Request(&bscore.Command{Op: bscore.OpWrite, LBA: 0, Length: 4, Buffer: []byte("data")})
	s.Request(&bscore.Command{Op: bscore.OpUnmap, LBA: 0, Length: 4})

	buf := make([]byte, 4)
	s.Request(&bscore.Command{Op: bscore.OpRead, LBA: 0, Length: 4, Buffer: buf})
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestStoreSyncAlwaysSucceeds(t *testing.T) {
	s := memstore.New(16)
	defer s.Close()
	cmd := &bscore.Command{Op: bscore.OpSync}
	s.Request(cmd)
	assert.Equal(t, int32(0), cmd.Result)
}

func TestWithLatencyDelays(t *testing.T) {
	s := memstore.New(16)
	defer s.Close()

	req := memstore.WithLatency(s, func(cmd *bscore.Command) time.Duration {
		return 20 * time.Millisecond
	})

	start := time.Now()
	cmd := &bscore.Command{Op: bscore.OpSync}
	req(cmd)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, int32(0), cmd.Result)
}
