package pool

import (
	"sync"
)

// SniffSize is the number of leading bytes read for content type detection.
const SniffSize = 3 * 1024

// BufferPool manages reusable buffers of one fixed size.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the length of buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a buffer of exactly Size bytes.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
// The buffer should not be used after calling Put.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

var (
	poolsMu sync.Mutex
	pools   = make(map[int]*BufferPool)
)

// For returns the shared pool for the given buffer size, creating it on first use.
func For(size int) *BufferPool {
	poolsMu.Lock()
	defer poolsMu.Unlock()

	if bp, ok := pools[size]; ok {
		return bp
	}
	bp := NewBufferPool(size)
	pools[size] = bp
	return bp
}

// GetSniffBuffer returns a SniffSize buffer from the shared pool.
func GetSniffBuffer() []byte {
	return For(SniffSize).Get()
}

// PutSniffBuffer returns a sniff buffer to the shared pool.
func PutSniffBuffer(buf []byte) {
	For(SniffSize).Put(buf)
}
