package main

import (
	"io"

	"github.com/ishworgurung/asanprobe/alloc"
	"github.com/ishworgurung/asanprobe/config"
	"github.com/ishworgurung/asanprobe/probe"
	"github.com/ishworgurung/asanprobe/sanitizer"
	"github.com/rs/zerolog"
)

// runEnv is bound into every command's Run.
type runEnv struct {
	cfg config.Config
	lg  zerolog.Logger
	out io.Writer
}

type greetCmd struct {
	EnableUseAfterFreeDemo bool `help:"Run the probe after greeting." env:"ASANPROBE_ENABLE_USE_AFTER_FREE_DEMO"`
}

func (g *greetCmd) Run(env *runEnv) error {
	p, done, err := newProbe(env.cfg, env.lg, env.out)
	if err != nil {
		return err
	}
	defer done()
	return p.Greet()
}

type runCmd struct{}

func (r *runCmd) Run(env *runEnv) error {
	p, done, err := newProbe(env.cfg, env.lg, env.out)
	if err != nil {
		return err
	}
	defer done()
	return p.Run()
}

// newProbe wires the configured allocator, and the sanitizer when asked
// for, into a probe writing to out.
func newProbe(cfg config.Config, lg zerolog.Logger, out io.Writer) (*probe.Probe, func(), error) {
	a, err := alloc.New(cfg.Allocator)
	if err != nil {
		return nil, nil, err
	}
	opts := probe.Options{
		Out:                    out,
		Allocator:              a,
		EnableUseAfterFreeDemo: cfg.EnableUseAfterFreeDemo,
		Logger:                 lg,
	}
	if cfg.Sanitize {
		s := sanitizer.New(sanitizer.Options{Logger: lg, ExitCode: cfg.ExitCode})
		opts.Allocator = s.Wrap(a)
		opts.Instrument = s
	}
	lg.Debug().
		Str("allocator", a.Name()).
		Bool("sanitize", cfg.Sanitize).
		Bool("demo", cfg.EnableUseAfterFreeDemo).
		Msg("probe configured")

	done := func() {
		if err := a.Close(); err != nil {
			lg.Debug().Err(err).Msg("closing allocator")
		}
	}
	return probe.New(opts), done, nil
}
