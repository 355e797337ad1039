//go:build !cgo

package alloc

import "github.com/pkg/errors"

// CHeap needs cgo; without it only the constructor exists.
type CHeap struct{ Heap }

func NewCHeap() (*CHeap, error) {
	return nil, errors.Wrap(ErrUnsupported, "cgo allocator needs CGO_ENABLED=1")
}
