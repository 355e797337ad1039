package sanitizer

import (
	"github.com/ishworgurung/asanprobe/alloc"
)

// shadowed poisons blocks as they are freed by the wrapped allocator.
type shadowed struct {
	alloc.Allocator
	s *Sanitizer
}

// Wrap returns an allocator whose frees are recorded in the sanitizer's
// shadow map, so later loads from freed blocks are reported even when
// the memory is still mapped.
func (s *Sanitizer) Wrap(a alloc.Allocator) alloc.Allocator {
	return &shadowed{Allocator: a, s: s}
}

func (w *shadowed) Alloc(size int) ([]byte, error) {
	b, err := w.Allocator.Alloc(size)
	if err != nil {
		return nil, err
	}
	w.s.unpoison(b)
	return b, nil
}

func (w *shadowed) Free(b []byte) error {
	if err := w.Allocator.Free(b); err != nil {
		return err
	}
	w.s.poison(b, w.Name())
	w.s.lg.Debug().Msgf("poisoned %d bytes at %#x", len(b), alloc.Addr(b))
	return nil
}
