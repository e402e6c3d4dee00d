// Package bufpool provides reusable copy buffers for streaming file bytes.
//
// Uploads and downloads move whole files between the HTTP layer and the
// storage backends. Copying through a pooled buffer keeps those transfers
// from allocating a fresh 32KB slice per request the way io.Copy does.
//
//	n, err := bufpool.Copy(dst, src)
package bufpool

import (
	"io"
	"sync"
)

// Buffer sizes.
const (
	// SmallSize suits request bodies and streamed responses (64KB).
	SmallSize = 64 << 10

	// LargeSize suits backend writes of big files (1MB).
	LargeSize = 1 << 20
)

// Pool hands out buffers of two size classes.
type Pool struct {
	small     sync.Pool
	large     sync.Pool
	smallSize int
	largeSize int
}

// NewPool creates a pool. Non-positive sizes fall back to the defaults.
func NewPool(smallSize, largeSize int) *Pool {
	if smallSize <= 0 {
		smallSize = SmallSize
	}
	if largeSize <= 0 {
		largeSize = LargeSize
	}
	p := &Pool{smallSize: smallSize, largeSize: largeSize}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a buffer suited to a transfer of size bytes. Unknown sizes
// (negative) get a small buffer. The buffer is at most LargeSize long.
func (p *Pool) Get(size int64) []byte {
	if size >= 0 && size > int64(p.smallSize) {
		return *p.large.Get().(*[]byte)
	}
	return *p.small.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers not obtained from Get are dropped.
func (p *Pool) Put(buf []byte) {
	buf = buf[:cap(buf)]
	switch len(buf) {
	case p.smallSize:
		p.small.Put(&buf)
	case p.largeSize:
		p.large.Put(&buf)
	}
}

// Copy copies src to dst through a pooled buffer sized for size bytes.
func (p *Pool) Copy(dst io.Writer, src io.Reader, size int64) (int64, error) {
	buf := p.Get(size)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var global = NewPool(0, 0)

// Get returns a buffer from the package pool.
func Get(size int64) []byte { return global.Get(size) }

// Put returns a buffer to the package pool.
func Put(buf []byte) { global.Put(buf) }

// Copy copies through a buffer from the package pool. Pass -1 when the
// size is unknown.
func Copy(dst io.Writer, src io.Reader, size int64) (int64, error) {
	return global.Copy(dst, src, size)
}
