// Package chunkup - Chunk buffer reuse
//
// This file provides buffer pooling for chunk reads. Upload sessions read
// each chunk into a buffer before transmission; reusing those buffers
// keeps large uploads from churning the garbage collector. Buffers are
// fixed to one chunk size, so a pool only serves sessions planned with
// the same size.
package chunkup

// BufferPool manages reusable chunk read buffers
type BufferPool struct {
	pool chan []byte
	size int64
}

// NewBufferPool creates a pool of poolSize buffers of chunkSize bytes each
func NewBufferPool(chunkSize int64, poolSize int) *BufferPool {
	return &BufferPool{
		pool: make(chan []byte, poolSize),
		size: chunkSize,
	}
}

// Size returns the buffer size this pool serves.
func (bp *BufferPool) Size() int64 {
	return bp.size
}

// Get retrieves a buffer from the pool or allocates a new one
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.pool:
		return buf
	default:
		return make([]byte, bp.size)
	}
}

// Put returns a buffer to the pool for reuse
func (bp *BufferPool) Put(buf []byte) {
	if int64(len(buf)) != bp.size {
		return // Don't pool buffers of wrong size
	}

	select {
	case bp.pool <- buf:
	default:
		// Pool is full, let GC handle it
	}
}
