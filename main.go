package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/ishworgurung/asanprobe/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type CLI struct {
	Config    kong.ConfigFlag `help:"JSON config file." placeholder:"PATH"`
	Debug     bool            `help:"Debug logging." env:"ASANPROBE_DEBUG"`
	Allocator string          `help:"Allocator backend (${enum})." enum:"${backends}" default:"${allocator}" env:"ASANPROBE_ALLOCATOR"`
	Sanitize  bool            `help:"Report and abort on bad loads instead of reading them." env:"ASANPROBE_SANITIZE"`
	ExitCode  int             `help:"Exit code when the sanitizer aborts." default:"${exitcode}" env:"ASANPROBE_EXIT_CODE"`

	Greet greetCmd `cmd:"" default:"withargs" help:"Print the greeting."`
	Run   runCmd   `cmd:"" help:"Allocate, fill, free and read back the probe buffer once."`
}

// settings flattens the parsed flags into a config.Config.
func (c *CLI) settings() config.Config {
	return config.Config{
		Allocator:              c.Allocator,
		Sanitize:               c.Sanitize,
		Debug:                  c.Debug,
		ExitCode:               c.ExitCode,
		EnableUseAfterFreeDemo: c.Greet.EnableUseAfterFreeDemo,
	}
}

// newParser builds the kong parser; configPaths are JSON files read
// before flags and env vars are applied.
func newParser(c *CLI, configPaths ...string) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("asanprobe"),
		kong.Description("use-after-free probe for memory-safety tooling"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, configPaths...),
		kong.Vars{
			"backends":  strings.Join(config.Backends, ","),
			"allocator": config.DefaultAllocator,
			"exitcode":  strconv.Itoa(config.DefaultSanitizerExitCode),
		},
	)
}

func logger(cfg config.Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, config.DefaultConfigPaths...)
	if err != nil {
		log.Fatal().Err(err).Msg("building cli")
	}
	cliCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg := cli.settings()
	lg := logger(cfg)
	log.Logger = lg
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}

	if err := cliCtx.Run(&runEnv{cfg: cfg, lg: lg, out: os.Stdout}); err != nil {
		log.Fatal().Err(err).Msgf("%s failed", cliCtx.Command())
	}
}
