package alloc

// Heap allocates from the Go heap. Free only forgets the block, so stale
// reads keep returning the old contents for as long as something
// references them.
type Heap struct {
	live blocks
}

func NewHeap() *Heap {
	return &Heap{live: blocks{}}
}

func (h *Heap) Name() string { return "heap" }

func (h *Heap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b := make([]byte, size)
	h.live.add(b)
	return b, nil
}

func (h *Heap) Free(b []byte) error {
	return h.live.remove(b)
}

func (h *Heap) Close() error {
	h.live = blocks{}
	return nil
}
