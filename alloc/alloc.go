// Package alloc provides manual allocators that hand out raw byte blocks
// outside of the Go garbage collector's control. A block stays valid until
// it is passed to Free; after that, any slice still pointing into it is
// dangling and reading through it is undefined.
package alloc

import (
	"unsafe"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSize    = errors.New("allocation size must be positive")
	ErrUnknownBlock   = errors.New("block was not allocated by this allocator or is already freed")
	ErrUnknownBackend = errors.New("unknown allocator backend")
	ErrUnsupported    = errors.New("allocator backend not supported on this build")
)

// Allocator is a manual allocator. Implementations are not safe for
// concurrent use.
type Allocator interface {
	// Alloc returns a block of exactly size bytes. Its contents are
	// unspecified.
	Alloc(size int) ([]byte, error)
	// Free releases a block returned by Alloc. The block must not be
	// used afterwards, but nothing stops a caller from doing so.
	Free(b []byte) error
	// Close releases every block still held and the allocator itself.
	Close() error
	Name() string
}

// New returns the allocator backend registered under kind.
func New(kind string) (Allocator, error) {
	switch kind {
	case "pool":
		return NewPool(), nil
	case "page":
		p, err := NewPage()
		if err != nil {
			return nil, err
		}
		return p, nil
	case "cgo":
		c, err := NewCHeap()
		if err != nil {
			return nil, err
		}
		return c, nil
	case "heap":
		return NewHeap(), nil
	}
	return nil, errors.Wrapf(ErrUnknownBackend, "%q", kind)
}

// Addr returns the address of the first byte of b, or 0 for an empty block.
func Addr(b []byte) uintptr {
	if cap(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// blocks tracks live allocations by start address.
type blocks map[uintptr]int

func (m blocks) add(b []byte) {
	m[Addr(b)] = len(b)
}

func (m blocks) remove(b []byte) error {
	a := Addr(b)
	if _, ok := m[a]; !ok || a == 0 {
		return errors.Wrapf(ErrUnknownBlock, "free of %#x", a)
	}
	delete(m, a)
	return nil
}
