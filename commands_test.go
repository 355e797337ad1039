package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ishworgurung/asanprobe/alloc"
	"github.com/ishworgurung/asanprobe/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asanprobeArgsEnv makes the test binary act as asanprobe with these
// space separated arguments.
const asanprobeArgsEnv = "ASANPROBE_TEST_MAIN_ARGS"

func TestMain(m *testing.M) {
	if args, ok := os.LookupEnv(asanprobeArgsEnv); ok {
		os.Args = append([]string{"asanprobe"}, strings.Fields(args)...)
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// execMain runs asanprobe in a child process and returns its stdout and
// exit status.
func execMain(t *testing.T, args string) (string, int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), asanprobeArgsEnv+"="+args, "HOME="+t.TempDir())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	t.Logf("asanprobe %s stderr:\n%s", args, stderr.String())
	if err == nil {
		return stdout.String(), 0
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "running asanprobe: %v", err)
	return stdout.String(), exitErr.ExitCode()
}

func TestProcessExit(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		stdout   string
		exitCode int // -1 means any non-zero status
		needPage bool
	}{
		{name: "greet", args: "greet", stdout: "Hello API!\n"},
		{name: "heap run", args: "--allocator=heap run", stdout: "test asan 5\ntest asan 5\n"},
		{name: "sanitized run", args: "--sanitize run", stdout: "test asan 5\n", exitCode: 1},
		{name: "sanitized run custom exit code", args: "--sanitize --exit-code=23 run", stdout: "test asan 5\n", exitCode: 23},
		{name: "sanitized demo greet", args: "--sanitize --allocator=heap greet --enable-use-after-free-demo", stdout: "Hello API!\ntest asan 5\n", exitCode: 1},
		{name: "unwrapped page run crashes", args: "--allocator=page run", stdout: "test asan 5\n", exitCode: -1, needPage: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.needPage {
				if _, err := alloc.NewPage(); err != nil {
					t.Skip(err)
				}
			}
			stdout, code := execMain(t, tt.args)
			assert.Equal(t, tt.stdout, stdout)
			if tt.exitCode < 0 {
				assert.NotZero(t, code)
				return
			}
			assert.Equal(t, tt.exitCode, code)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestParse(t *testing.T) {
	cfgFile := writeConfig(t, `{"allocator": "heap", "sanitize": true}`)

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		command string
		want    config.Config
		wantErr bool
	}{
		{
			name:    "no args greets with defaults",
			command: "greet",
			want:    config.Default(),
		},
		{
			name:    "demo flag",
			args:    []string{"--allocator=heap", "greet", "--enable-use-after-free-demo"},
			command: "greet",
			want:    config.Config{Allocator: "heap", ExitCode: 1, EnableUseAfterFreeDemo: true},
		},
		{
			name:    "demo env var",
			args:    []string{"greet"},
			env:     map[string]string{"ASANPROBE_ENABLE_USE_AFTER_FREE_DEMO": "true"},
			command: "greet",
			want:    config.Config{Allocator: "pool", ExitCode: 1, EnableUseAfterFreeDemo: true},
		},
		{
			name:    "env vars",
			args:    []string{"run"},
			env:     map[string]string{"ASANPROBE_ALLOCATOR": "page", "ASANPROBE_EXIT_CODE": "7", "ASANPROBE_DEBUG": "true"},
			command: "run",
			want:    config.Config{Allocator: "page", ExitCode: 7, Debug: true},
		},
		{
			name:    "json config file",
			args:    []string{"--config", cfgFile, "run"},
			command: "run",
			want:    config.Config{Allocator: "heap", Sanitize: true, ExitCode: 1},
		},
		{
			name:    "unknown allocator",
			args:    []string{"--allocator=jemalloc", "run"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var c CLI
			parser, err := newParser(&c)
			require.NoError(t, err)
			ctx, err := parser.Parse(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.command, ctx.Command())
			assert.Equal(t, tt.want, c.settings())
		})
	}
}

func TestCommandOutput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "greet", args: []string{"--allocator=heap", "greet"}, want: "Hello API!\n"},
		{name: "greet with demo", args: []string{"--allocator=heap", "greet", "--enable-use-after-free-demo"}, want: "Hello API!\ntest asan 5\ntest asan 5\n"},
		{name: "run", args: []string{"--allocator=heap", "run"}, want: "test asan 5\ntest asan 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c CLI
			parser, err := newParser(&c)
			require.NoError(t, err)
			ctx, err := parser.Parse(tt.args)
			require.NoError(t, err)

			var out bytes.Buffer
			require.NoError(t, ctx.Run(&runEnv{cfg: c.settings(), lg: zerolog.Nop(), out: &out}))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestNewProbe(t *testing.T) {
	for _, sanitize := range []bool{false, true} {
		cfg := config.Default()
		cfg.Allocator = "heap"
		cfg.Sanitize = sanitize
		p, done, err := newProbe(cfg, zerolog.Nop(), &bytes.Buffer{})
		require.NoError(t, err)
		assert.NotNil(t, p)
		done()
	}
}

func TestNewProbeUnknownAllocator(t *testing.T) {
	cfg := config.Default()
	cfg.Allocator = "jemalloc"
	_, _, err := newProbe(cfg, zerolog.Nop(), &bytes.Buffer{})
	assert.True(t, errors.Is(err, alloc.ErrUnknownBackend))
}
