package config

import (
	"github.com/pkg/errors"
)

const (
	DefaultAllocator         = "pool"
	DefaultSanitizerExitCode = 1  // same as AddressSanitizer's default exitcode
	BufferLen                = 10 // number of ints in the probe buffer
	ProbeIndex               = 5  // element read before and after release
)

// Backends lists the allocator names understood by alloc.New.
var Backends = []string{"pool", "page", "cgo", "heap"}

// DefaultConfigPaths are searched in order for a JSON config file.
var DefaultConfigPaths = []string{
	"/etc/asanprobe/config.json",
	"~/.config/asanprobe/config.json",
}

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Allocator string // allocator backend name
	Sanitize  bool   // run loads under the in-process sanitizer
	Debug     bool
	ExitCode  int // exit status used when the sanitizer aborts
	// EnableUseAfterFreeDemo makes greet run the probe as well.
	EnableUseAfterFreeDemo bool
}

// Default returns the config used when no flag, env var or file overrides it.
func Default() Config {
	return Config{
		Allocator: DefaultAllocator,
		ExitCode:  DefaultSanitizerExitCode,
	}
}

func (c Config) Validate() error {
	known := false
	for _, b := range Backends {
		if c.Allocator == b {
			known = true
			break
		}
	}
	if !known {
		return errors.Wrapf(ErrInvalidConfig, "unknown allocator %q", c.Allocator)
	}
	// 126 and above are reserved by shells
	if c.ExitCode < 1 || c.ExitCode > 125 {
		return errors.Wrapf(ErrInvalidConfig, "sanitizer exit code %d out of range 1..125", c.ExitCode)
	}
	return nil
}
