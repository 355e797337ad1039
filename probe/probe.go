// Package probe runs a fixed allocate, fill, free, read sequence that
// reads one element back after the memory was freed. It is a fault
// injector for exercising memory-safety tooling: the stale read always
// happens and nothing here tries to catch what it does.
package probe

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/ishworgurung/asanprobe/alloc"
	"github.com/ishworgurung/asanprobe/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	Greeting   = "Hello API!"
	lineFormat = "test asan %d\n"
)

// Instrumentation sees every element load the probe makes, in the way a
// compiler-instrumented build would. It may report and abort; the probe
// never recovers from that.
type Instrumentation interface {
	Load(addr uintptr, index int, load func() int) int
}

type Options struct {
	Out       io.Writer       // defaults to os.Stdout
	Allocator alloc.Allocator // defaults to a pool allocator owned by the Probe
	// Instrument is optional.
	Instrument             Instrumentation
	EnableUseAfterFreeDemo bool
	Logger                 zerolog.Logger
}

type Probe struct {
	out   io.Writer
	a     alloc.Allocator
	instr Instrumentation
	demo  bool
	lg    zerolog.Logger
	owned bool // a was created by New and is closed by Close
}

func New(opts Options) *Probe {
	p := &Probe{
		out:   opts.Out,
		a:     opts.Allocator,
		instr: opts.Instrument,
		demo:  opts.EnableUseAfterFreeDemo,
		lg:    opts.Logger.With().Str("module", "probe").Logger(),
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.a == nil {
		p.a = alloc.NewPool()
		p.owned = true
	}
	return p
}

// Close releases the default allocator if New created one. An allocator
// passed in Options is left to its owner.
func (p *Probe) Close() error {
	if !p.owned {
		return nil
	}
	return p.a.Close()
}

// Greet prints the greeting, then runs the probe if the demo is enabled.
func (p *Probe) Greet() error {
	if _, err := fmt.Fprintln(p.out, Greeting); err != nil {
		return errors.Wrap(err, "greet")
	}
	if !p.demo {
		return nil
	}
	return p.Run()
}

// Run allocates the buffer, fills it, prints one element, releases the
// buffer and prints the same element again through the stale handle.
// The second value is undefined and may instead crash the process or
// trip the instrumentation. The stale read is attempted even when the
// release fails; the release error is returned in that case.
func (p *Probe) Run() error {
	buf, err := Allocate(p.a, config.BufferLen)
	if err != nil {
		return err
	}
	if err := buf.Fill(); err != nil {
		return err
	}
	if snap, err := buf.Snapshot(); err == nil {
		p.lg.Debug().Msgf("filled %d ints at %#x from %s allocator\n%s",
			buf.Len(), buf.Addr(0), p.a.Name(), spew.Sdump(snap))
	}
	if err := p.print(buf); err != nil {
		return err
	}

	relErr := buf.Release()
	if relErr != nil {
		p.lg.Error().Err(relErr).Msg("release failed, reading through the handle anyway")
	}
	p.lg.Debug().
		Str("state", buf.State().String()).
		Msgf("reading element %d at %#x after release", config.ProbeIndex, buf.Addr(config.ProbeIndex))
	if err := p.print(buf); err != nil && relErr == nil {
		return err
	}
	return relErr
}

func (p *Probe) print(buf *Buffer) error {
	_, err := fmt.Fprintf(p.out, lineFormat, p.load(buf, config.ProbeIndex))
	return errors.Wrap(err, "print")
}

func (p *Probe) load(buf *Buffer, i int) int {
	if p.instr == nil {
		return buf.At(i)
	}
	return p.instr.Load(buf.Addr(i), i, func() int { return buf.At(i) })
}
