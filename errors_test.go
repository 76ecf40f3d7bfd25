package bscore

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Pool.Open", ErrCodeInvalidParameters, "RequestFn is required")

	assert.Equal(t, "Pool.Open", err.Op)
	assert.Equal(t, ErrCodeInvalidParameters, err.Code)
	assert.Equal(t, "bscore: RequestFn is required (op=Pool.Open)", err.Error())
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("numa.Discover", ErrCodeNUMAUnsupported, syscall.ENOSYS)
	assert.Equal(t, syscall.ENOSYS, err.Errno)
	assert.Equal(t, ErrCodeNUMAUnsupported, err.Code)
}

func TestWrapErrorMapsErrno(t *testing.T) {
	wrapped := WrapError("sink.newSignalSink", syscall.ENOMEM)
	assert.Equal(t, ErrCodeNoMemory, wrapped.Code)
	assert.ErrorIs(t, wrapped, syscall.ENOMEM)
}

func TestWrapErrorPreservesBscoreError(t *testing.T) {
	inner := NewError("Pool.Open", ErrCodeNoMemory, "spawn failed")
	wrapped := WrapError("Pool.Reopen", inner)
	assert.Equal(t, ErrCodeNoMemory, wrapped.Code)
	assert.Equal(t, "Pool.Reopen", wrapped.Op)
}

func TestIsCode(t *testing.T) {
	err := NewError("Pool.Submit", ErrCodePoolClosed, "")
	assert.True(t, IsCode(err, ErrCodePoolClosed))
	assert.False(t, IsCode(err, ErrCodeNoMemory))
	assert.False(t, IsCode(errors.New("plain"), ErrCodePoolClosed))
}

func TestErrPoolClosedSentinel(t *testing.T) {
	assert.True(t, errors.Is(ErrPoolClosed, ErrPoolClosed))
	assert.True(t, IsCode(ErrPoolClosed, ErrCodePoolClosed))
}
