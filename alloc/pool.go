package alloc

import (
	"github.com/pkg/errors"
	"modernc.org/memory"
)

// Pool allocates from mmap'ed pages managed by modernc.org/memory. Small
// blocks share a page; a page is unmapped once its last block is freed.
type Pool struct {
	a    memory.Allocator
	live blocks
}

func NewPool() *Pool {
	return &Pool{live: blocks{}}
}

func (p *Pool) Name() string { return "pool" }

func (p *Pool) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b, err := p.a.Malloc(size)
	if err != nil {
		return nil, errors.Wrapf(err, "pool malloc %d bytes", size)
	}
	p.live.add(b)
	return b, nil
}

func (p *Pool) Free(b []byte) error {
	if err := p.live.remove(b); err != nil {
		return err
	}
	return errors.Wrap(p.a.Free(b), "pool free")
}

func (p *Pool) Close() error {
	p.live = blocks{}
	return errors.Wrap(p.a.Close(), "pool close")
}
