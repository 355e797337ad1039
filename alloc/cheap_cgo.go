//go:build cgo

package alloc

/*
#include <stdlib.h>

// Calling malloc from the preamble skips cgo's C.malloc wrapper, which
// aborts on NULL instead of reporting it.
static void *probe_malloc(size_t n) {
	return malloc(n);
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// CHeap allocates with the C library's malloc and free. Built with
// `go build -asan`, loads from freed CHeap blocks are caught by
// AddressSanitizer itself.
type CHeap struct {
	live blocks
}

func NewCHeap() (*CHeap, error) {
	return &CHeap{live: blocks{}}, nil
}

func (c *CHeap) Name() string { return "cgo" }

func (c *CHeap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	p := C.probe_malloc(C.size_t(size))
	if p == nil {
		return nil, errors.Errorf("malloc(%d) returned NULL", size)
	}
	b := unsafe.Slice((*byte)(p), size)
	c.live.add(b)
	return b, nil
}

func (c *CHeap) Free(b []byte) error {
	if err := c.live.remove(b); err != nil {
		return err
	}
	C.free(unsafe.Pointer(unsafe.SliceData(b)))
	return nil
}

func (c *CHeap) Close() error {
	for a := range c.live {
		C.free(unsafe.Pointer(a))
		delete(c.live, a)
	}
	return nil
}
