// Package sanitizer is an in-process memory-fault detector for code that
// reads through manually allocated blocks. It keeps a shadow map of freed
// blocks and intercepts hardware faults on loads, and on the first bad
// access it logs a report and aborts the process the way AddressSanitizer
// does.
package sanitizer

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/davecgh/go-spew/spew"
	"github.com/ishworgurung/asanprobe/alloc"
	"github.com/ishworgurung/asanprobe/config"
	"github.com/rs/zerolog"
)

type Kind string

const (
	HeapUseAfterFree Kind = "heap-use-after-free"
	SEGV             Kind = "SEGV"
)

// Report describes one detected bad access.
type Report struct {
	Kind    Kind
	Addr    uintptr // address that was loaded
	Index   int     // element index the caller was reading
	Block   uintptr // start of the freed block; zero for SEGV
	Size    int     // size of the freed block; zero for SEGV
	Backend string  // allocator that freed the block
	Cause   string  // runtime error text for SEGV
}

func (r Report) String() string {
	if r.Kind == SEGV {
		return fmt.Sprintf("%s on unknown address %#x reading element %d (%s)",
			r.Kind, r.Addr, r.Index, r.Cause)
	}
	return fmt.Sprintf("%s on address %#x reading element %d: %d bytes inside of %d-byte region [%#x,%#x) freed by %s allocator",
		r.Kind, r.Addr, r.Index, r.Addr-r.Block, r.Size, r.Block, r.Block+uintptr(r.Size), r.Backend)
}

type Options struct {
	Logger zerolog.Logger
	// ExitCode is used by the default Abort. Zero means
	// config.DefaultSanitizerExitCode.
	ExitCode int
	// Abort is called with the first report and must not return. The
	// default exits the process with ExitCode.
	Abort func(Report)
}

type region struct {
	start   uintptr
	size    int
	backend string
}

type Sanitizer struct {
	lg      zerolog.Logger
	abort   func(Report)
	shadow  []region // poisoned blocks
	reports []Report
}

func New(opts Options) *Sanitizer {
	code := opts.ExitCode
	if code == 0 {
		code = config.DefaultSanitizerExitCode
	}
	abort := opts.Abort
	if abort == nil {
		abort = func(Report) { os.Exit(code) }
	}
	return &Sanitizer{
		lg:    opts.Logger.With().Str("module", "sanitizer").Logger(),
		abort: abort,
	}
}

// Reports returns every report raised so far.
func (s *Sanitizer) Reports() []Report {
	return append([]Report(nil), s.reports...)
}

// Load performs load on behalf of a read at addr. Reads from poisoned
// memory are reported without being performed; reads that fault are
// reported after the fault.
func (s *Sanitizer) Load(addr uintptr, index int, load func() int) int {
	if r, ok := s.poisoned(addr); ok {
		s.fail(Report{
			Kind:    HeapUseAfterFree,
			Addr:    addr,
			Index:   index,
			Block:   r.start,
			Size:    r.size,
			Backend: r.backend,
		})
	}
	v, fault := guardedLoad(load)
	if fault != nil {
		s.fail(Report{
			Kind:  SEGV,
			Addr:  fault.Addr(),
			Index: index,
			Cause: fault.Error(),
		})
	}
	return v
}

type memoryFault interface {
	error
	Addr() uintptr
}

// guardedLoad turns a memory fault inside load into a return value.
// Any other panic propagates.
func guardedLoad(load func() int) (v int, fault memoryFault) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(memoryFault)
		if !ok {
			panic(r)
		}
		fault = f
	}()
	return load(), nil
}

func (s *Sanitizer) fail(r Report) {
	s.reports = append(s.reports, r)
	s.lg.Error().
		Str("kind", string(r.Kind)).
		Str("addr", fmt.Sprintf("%#x", r.Addr)).
		Int("index", r.Index).
		Msg(r.String())
	s.lg.Debug().Msgf("report:\n%s", spew.Sdump(r))
	s.abort(r)
	// Abort returned; still do not let the load go through.
	panic(r)
}

func (s *Sanitizer) poison(b []byte, backend string) {
	s.shadow = append(s.shadow, region{start: alloc.Addr(b), size: len(b), backend: backend})
}

// unpoison drops every poisoned region overlapping b, which happens when
// an allocator hands freed memory out again.
func (s *Sanitizer) unpoison(b []byte) {
	start, end := alloc.Addr(b), alloc.Addr(b)+uintptr(len(b))
	kept := s.shadow[:0]
	for _, r := range s.shadow {
		if r.start < end && start < r.start+uintptr(r.size) {
			continue
		}
		kept = append(kept, r)
	}
	s.shadow = kept
}

func (s *Sanitizer) poisoned(addr uintptr) (region, bool) {
	for _, r := range s.shadow {
		if addr >= r.start && addr < r.start+uintptr(r.size) {
			return r, true
		}
	}
	return region{}, false
}
