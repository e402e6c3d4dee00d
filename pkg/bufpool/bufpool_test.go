package bufpool

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetSizeClasses(t *testing.T) {
	p := NewPool(16, 64)

	if got := len(p.Get(10)); got != 16 {
		t.Errorf("Get(10) length = %d, want 16", got)
	}
	if got := len(p.Get(-1)); got != 16 {
		t.Errorf("Get(-1) length = %d, want 16", got)
	}
	if got := len(p.Get(1 << 30)); got != 64 {
		t.Errorf("Get(1GB) length = %d, want 64", got)
	}
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	p := NewPool(16, 64)
	p.Put(make([]byte, 7))
	p.Put(nil)

	if got := len(p.Get(1)); got != 16 {
		t.Errorf("Get after foreign Put length = %d, want 16", got)
	}
}

func TestPutAfterReslice(t *testing.T) {
	p := NewPool(16, 64)
	buf := p.Get(100)
	p.Put(buf[:3])

	if got := len(p.Get(100)); got != 64 {
		t.Errorf("reused buffer length = %d, want 64", got)
	}
}

func TestCopy(t *testing.T) {
	src := strings.Repeat("storagebox", 10_000)

	var dst bytes.Buffer
	n, err := Copy(&dst, strings.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != int64(len(src)) {
		t.Errorf("copied %d bytes, want %d", n, len(src))
	}
	if dst.String() != src {
		t.Error("copied content differs from source")
	}
}

func TestDefaults(t *testing.T) {
	p := NewPool(0, -1)
	if p.smallSize != SmallSize || p.largeSize != LargeSize {
		t.Errorf("defaults = %d/%d, want %d/%d", p.smallSize, p.largeSize, SmallSize, LargeSize)
	}
}
