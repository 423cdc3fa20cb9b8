// Package cli implements the gobridge command line: inspecting and
// generating trampolines for Go units, calling into them, and managing the
// plugin cache, and serving units over gRPC.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/gobridge/internal/compiler"
	"github.com/funvibe/gobridge/internal/logger"
)

// Version is reported by "gobridge version".
// Can be set at build time using: -ldflags "-X github.com/funvibe/gobridge/pkg/cli.Version=..."
var Version = "dev"

const usage = `Usage: gobridge [options] <command> [arguments]

Commands:
  inspect <file.go>               list the functions and types a unit exposes
  gen <file.go> [-o <dir>]        print or write the generated trampolines
  call <file.go> <func> [args]    load a unit and call one of its functions
  watch <file.go>                 re-inspect a unit every time it changes
  serve <file.go> [--addr <a>]    serve a unit's functions over gRPC
  rpc <addr> list                 list the functions of a running server
  rpc <addr> <func> [args]        call a function on a running server
  cache list                      list cached plugins
  cache clean                     remove every cached plugin
  version                         print the gobridge version

Options:
  --config <path>     use this gobridge.yaml instead of searching for one
  --no-cache          do not read or write the plugin cache
  --strict            fail when a declaration cannot be exposed
  --log-format <fmt>  text, json or auto
  -v, --verbose       log every load step
`

type options struct {
	config    string
	noCache   bool
	strict    bool
	verbose   bool
	logFormat string
}

// env carries the output streams and resolved configuration of one run.
type env struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *compiler.Config
	color  bool
}

func (e *env) errorf(format string, args ...any) int {
	fmt.Fprintf(e.stderr, "Error: "+format+"\n", args...)
	return 1
}

func (e *env) paint(code, s string) string {
	if !e.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Run executes the command line args (without the program name) and
// returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseOptions(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, usage)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch rest[0] {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	case "version":
		fmt.Fprintf(stdout, "gobridge %s\n", Version)
		return 0
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger.Init(loggerConfig(cfg, stderr))

	e := &env{stdout: stdout, stderr: stderr, cfg: cfg, color: isTerminal(stdout)}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "inspect":
		return e.inspect(cmdArgs)
	case "gen":
		return e.gen(cmdArgs)
	case "call":
		return e.call(ctx, cmdArgs)
	case "watch":
		return e.watch(ctx, cmdArgs)
	case "cache":
		return e.cache(ctx, cmdArgs)
	case "serve":
		return e.serve(ctx, cmdArgs)
	case "rpc":
		return e.remote(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", cmd, usage)
		return 2
	}
}

// parseOptions splits leading global options from the command.
func parseOptions(args []string) (*options, []string, error) {
	opts := &options{}
	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-h" || arg == "--help" {
			break
		}
		name, val, hasVal := strings.Cut(arg, "=")
		needValue := func() (string, error) {
			if hasVal {
				return val, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			i++
			return args[i], nil
		}
		var err error
		switch name {
		case "--config":
			opts.config, err = needValue()
		case "--log-format":
			opts.logFormat, err = needValue()
			if err == nil && opts.logFormat != "text" && opts.logFormat != "json" && opts.logFormat != "auto" {
				err = fmt.Errorf("--log-format must be text, json or auto, got %q", opts.logFormat)
			}
		case "--no-cache":
			opts.noCache = true
		case "--strict":
			opts.strict = true
		case "-v", "--verbose":
			opts.verbose = true
		default:
			err = fmt.Errorf("unknown option %s", arg)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return opts, args[i:], nil
}

// resolveConfig loads --config, or the nearest gobridge.yaml, and applies
// the command line overrides.
func resolveConfig(opts *options) (*compiler.Config, error) {
	path := opts.config
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		if path, err = compiler.FindConfig(cwd); err != nil {
			return nil, err
		}
	}

	cfg := compiler.DefaultConfig()
	if path != "" {
		loaded, err := compiler.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.noCache {
		cfg.NoCache = true
	}
	if opts.strict {
		cfg.Strict = true
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	return cfg, nil
}

func loggerConfig(cfg *compiler.Config, out io.Writer) logger.Config {
	lc := logger.DefaultConfig()
	lc.Output = out
	lc.Format = cfg.LogFormat
	if cfg.Verbose {
		lc.Level = logger.LevelDebug
	}
	return lc
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
