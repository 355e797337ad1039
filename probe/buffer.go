package probe

import (
	"unsafe"

	"github.com/ishworgurung/asanprobe/alloc"
	"github.com/pkg/errors"
)

var (
	ErrAllocationFailure = errors.New("allocation failure")
	ErrNotOwned          = errors.New("buffer is not owned")
)

const intSize = int(unsafe.Sizeof(int(0)))

// State is where a Buffer is in its lifecycle. It only moves forward.
type State int

const (
	Unallocated State = iota
	Owned
	Released
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Owned:
		return "owned"
	case Released:
		return "released"
	}
	return "unknown"
}

// Buffer is a fixed run of ints in memory obtained from an Allocator.
// Release hands the memory back but leaves the Buffer's view of it in
// place, so At keeps reading wherever the view points.
type Buffer struct {
	a     alloc.Allocator
	block []byte
	elems []int
	state State
}

// Allocate takes n ints worth of memory from a.
func Allocate(a alloc.Allocator, n int) (*Buffer, error) {
	block, err := a.Alloc(n * intSize)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocationFailure, "%d ints from %s allocator: %s", n, a.Name(), err)
	}
	return &Buffer{
		a:     a,
		block: block,
		elems: unsafe.Slice((*int)(unsafe.Pointer(unsafe.SliceData(block))), n),
		state: Owned,
	}, nil
}

func (b *Buffer) State() State { return b.state }

func (b *Buffer) Len() int { return len(b.elems) }

// Fill sets element i to i.
func (b *Buffer) Fill() error {
	if b.state != Owned {
		return errors.Wrapf(ErrNotOwned, "fill in state %s", b.state)
	}
	for i := range b.elems {
		b.elems[i] = i
	}
	return nil
}

// At loads element i. It does not look at the state.
func (b *Buffer) At(i int) int {
	return b.elems[i]
}

// Addr returns the address of element i.
func (b *Buffer) Addr(i int) uintptr {
	return alloc.Addr(b.block) + uintptr(i*intSize)
}

// Snapshot copies the elements out while the buffer is still owned.
func (b *Buffer) Snapshot() ([]int, error) {
	if b.state != Owned {
		return nil, errors.Wrapf(ErrNotOwned, "snapshot in state %s", b.state)
	}
	return append([]int(nil), b.elems...), nil
}

// Release frees the backing memory. The buffer is stale afterwards.
func (b *Buffer) Release() error {
	if b.state != Owned {
		return errors.Wrapf(ErrNotOwned, "release in state %s", b.state)
	}
	if err := b.a.Free(b.block); err != nil {
		return errors.Wrap(err, "release")
	}
	b.state = Released
	return nil
}
