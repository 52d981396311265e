// Package pool provides pooled copy buffers for streaming object bodies into
// the content cache.
package pool

import (
	"io"
	"sync"
)

const (
	// SmallBufferSize is used for objects up to 64KB and unknown sizes.
	SmallBufferSize = 4 * 1024
	// MediumBufferSize is used for objects up to 1MB.
	MediumBufferSize = 64 * 1024
	// LargeBufferSize is used for everything bigger.
	LargeBufferSize = 1024 * 1024
)

// BufferPool manages reusable copy buffers of three sizes.
type BufferPool struct {
	small  *sync.Pool
	medium *sync.Pool
	large  *sync.Pool
}

func newSizedPool(size int) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// NewBufferPool creates a buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small:  newSizedPool(SmallBufferSize),
		medium: newSizedPool(MediumBufferSize),
		large:  newSizedPool(LargeBufferSize),
	}
}

func (bp *BufferPool) poolFor(objectSize int64) *sync.Pool {
	switch {
	case objectSize < 0 || objectSize <= 16*SmallBufferSize:
		return bp.small
	case objectSize <= 16*MediumBufferSize:
		return bp.medium
	default:
		return bp.large
	}
}

// Copy copies src to dst through a pooled buffer sized for an object of
// objectSize bytes. A negative size means unknown.
func (bp *BufferPool) Copy(dst io.Writer, src io.Reader, objectSize int64) (int64, error) {
	p := bp.poolFor(objectSize)
	bufPtr, _ := p.Get().(*[]byte)
	defer p.Put(bufPtr)
	return io.CopyBuffer(dst, src, *bufPtr) //nolint:wrapcheck // callers attach context
}

var globalBufferPool = NewBufferPool()

// Copy copies src to dst through the global pool.
func Copy(dst io.Writer, src io.Reader, objectSize int64) (int64, error) {
	return globalBufferPool.Copy(dst, src, objectSize)
}
