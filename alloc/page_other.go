//go:build !unix

package alloc

import "github.com/pkg/errors"

// Page is only available on unix targets.
type Page struct{ Heap }

func NewPage() (*Page, error) {
	return nil, errors.Wrap(ErrUnsupported, "page allocator needs mmap")
}
