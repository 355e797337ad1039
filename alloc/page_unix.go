//go:build unix

package alloc

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Page gives every block its own anonymous mapping rounded up to the OS
// page size and unmaps it on Free, so any later access through the block
// faults.
type Page struct {
	pageSize int
	regions  map[uintptr][]byte // block address -> whole mapping
}

func NewPage() (*Page, error) {
	return &Page{
		pageSize: unix.Getpagesize(),
		regions:  map[uintptr][]byte{},
	}, nil
}

func (p *Page) Name() string { return "page" }

func (p *Page) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	n := (size + p.pageSize - 1) &^ (p.pageSize - 1)
	region, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", n)
	}
	p.regions[Addr(region)] = region
	return region[:size:size], nil
}

func (p *Page) Free(b []byte) error {
	a := Addr(b)
	region, ok := p.regions[a]
	if !ok {
		return errors.Wrapf(ErrUnknownBlock, "free of %#x", a)
	}
	delete(p.regions, a)
	// munmap wants the full mapping, len == cap
	return errors.Wrapf(unix.Munmap(region), "munmap %#x", a)
}

func (p *Page) Close() error {
	var firstErr error
	for a, region := range p.regions {
		if err := unix.Munmap(region); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "munmap %#x", a)
		}
		delete(p.regions, a)
	}
	return firstErr
}
