// Package compiler drives the Go toolchain: it turns a source unit into a
// plugin, rebuilds it with generated trampolines, loads the result and
// removes the build workspace.
//
// A build goes through these steps:
//  1. Check the toolchain (once per Compiler)
//  2. Set up a temporary module holding the unit
//  3. go build -buildmode=plugin
//  4. Recompile with generated files added
//  5. Load the plugin and delete the workspace
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/funvibe/gobridge/internal/logger"
	"github.com/funvibe/gobridge/internal/trampoline"
)

// Artifact is a compiled unit.
type Artifact struct {
	Name string

	// Path is the plugin file.
	Path string

	// WorkDir is the build workspace, deleted by Load. Empty for
	// artifacts served from the cache.
	WorkDir string

	// Code is the unit as it was compiled.
	Code []byte

	// Files lists the workspace files, relative to WorkDir.
	Files []string
}

// Compiler builds plugins with the go command.
type Compiler struct {
	cfg      *Config
	workRoot string
	log      *slog.Logger

	once         sync.Once
	toolchain    *Toolchain
	toolchainErr error
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithWorkRoot creates build workspaces under dir instead of os.TempDir.
func WithWorkRoot(dir string) Option {
	return func(c *Compiler) { c.workRoot = dir }
}

// WithLogger sets the logger for build steps.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.log = l }
}

// New creates a compiler. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) *Compiler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Compiler{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Component("compiler")
	}
	return c
}

// Config returns the compiler's configuration.
func (c *Compiler) Config() *Config { return c.cfg }

// Toolchain checks the go command once and returns the result.
func (c *Compiler) Toolchain(ctx context.Context) (*Toolchain, error) {
	c.once.Do(func() {
		c.toolchain, c.toolchainErr = CheckToolchain(ctx, c.cfg.Go, c.cfg.MinGoVersion)
		if c.toolchainErr == nil {
			c.log.Debug("toolchain", "go", c.cfg.Go, "version", c.toolchain.Raw)
		}
	})
	return c.toolchain, c.toolchainErr
}

// Compile builds src into a plugin. The workspace is kept for Recompile
// and removed by Load; on error it is removed before returning.
func (c *Compiler) Compile(ctx context.Context, src Source) (*Artifact, error) {
	name := src.UnitName()
	code, err := src.Read()
	if err != nil {
		return nil, err
	}
	if code, err = normalize(name+".go", code); err != nil {
		return nil, err
	}

	tc, err := c.Toolchain(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolchain: %w", err)
	}

	art := &Artifact{Name: name, Code: code}
	if art.WorkDir, err = os.MkdirTemp(c.workRoot, "gobridge-build-*"); err != nil {
		return nil, fmt.Errorf("workspace setup: %w", err)
	}
	logger.LogStep(c.log, name, "workspace", "dir", art.WorkDir)

	fail := func(err error) (*Artifact, error) {
		os.RemoveAll(art.WorkDir)
		return nil, err
	}

	unitFile := name + ".go"
	if err := os.WriteFile(filepath.Join(art.WorkDir, unitFile), code, 0o644); err != nil {
		return fail(fmt.Errorf("writing %s: %w", unitFile, err))
	}
	art.Files = append(art.Files, unitFile)

	if err := c.writeGoMod(art.WorkDir, tc, imports(code, c.cfg.ModulePath)); err != nil {
		return fail(fmt.Errorf("writing go.mod: %w", err))
	}
	art.Files = append(art.Files, "go.mod")

	if art.Path, err = c.build(ctx, art, name+".so"); err != nil {
		return fail(err)
	}
	return art, nil
}

// Recompile writes the generated files into the workspace of art and
// rebuilds it. The returned artifact shares the workspace.
func (c *Compiler) Recompile(ctx context.Context, art *Artifact, files []trampoline.GeneratedFile) (*Artifact, error) {
	if art.WorkDir == "" {
		return nil, fmt.Errorf("recompiling %s: workspace already removed", art.Name)
	}
	tc, err := c.Toolchain(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolchain: %w", err)
	}

	next := *art
	next.Files = append([]string(nil), art.Files...)
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(art.WorkDir, f.Filename), []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Filename, err)
		}
		next.Files = append(next.Files, f.Filename)
		logger.LogStep(c.log, art.Name, "wrote", "file", f.Filename)
	}

	// Generated code always imports gobridge.
	if len(files) > 0 {
		if err := c.writeGoMod(art.WorkDir, tc, true); err != nil {
			return nil, fmt.Errorf("updating go.mod: %w", err)
		}
	}

	if next.Path, err = c.build(ctx, &next, art.Name+".bridge.so"); err != nil {
		return nil, err
	}
	return &next, nil
}

// Cleanup removes the workspace of art.
func (c *Compiler) Cleanup(art *Artifact) error {
	if art.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(art.WorkDir); err != nil {
		return &CleanupError{Dir: art.WorkDir, Err: err}
	}
	art.WorkDir = ""
	return nil
}

func (c *Compiler) writeGoMod(dir string, tc *Toolchain, needBridge bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "module gobridge.local/unit\n\ngo %s\n", tc.GoModVersion())

	if needBridge {
		src, err := c.sourceDir()
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "\nrequire %s v0.0.0\n", c.cfg.ModulePath)
		fmt.Fprintf(&b, "\nreplace %s => %s\n", c.cfg.ModulePath, src)
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(b.String()), 0o644); err != nil {
		return err
	}
	if needBridge {
		return c.goModTidy(dir)
	}
	return nil
}

// sourceDir locates the gobridge tree for the replace directive: the
// configured source_dir, or the tree this binary was built from.
func (c *Compiler) sourceDir() (string, error) {
	if c.cfg.SourceDir != "" {
		return filepath.Abs(c.cfg.SourceDir)
	}
	_, file, _, ok := runtime.Caller(0)
	if ok {
		root := filepath.Dir(filepath.Dir(filepath.Dir(file)))
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root, nil
		}
	}
	return "", fmt.Errorf("cannot locate %s sources, set source_dir in %s", c.cfg.ModulePath, ConfigNames[0])
}

func (c *Compiler) goModTidy(dir string) error {
	cmd := exec.Command(c.cfg.Go, "mod", "tidy")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go mod tidy: %s\n%w", string(output), err)
	}
	return nil
}

func (c *Compiler) build(ctx context.Context, art *Artifact, out string) (string, error) {
	outputPath := filepath.Join(art.WorkDir, out)
	args := []string{"build", "-buildmode=plugin", "-o", outputPath}
	args = append(args, c.cfg.BuildFlags...)
	args = append(args, ".")

	cmd := exec.CommandContext(ctx, c.cfg.Go, args...)
	cmd.Dir = art.WorkDir
	cmd.Env = append(os.Environ(), "GOWORK=off", "CGO_ENABLED=1")

	logger.LogStep(c.log, art.Name, "go build", "args", strings.Join(args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CompileError{
			Unit:        art.Name,
			Err:         err,
			Errors:      parseDiagnostics(string(output)),
			Diagnostics: string(output),
		}
	}
	logger.LogStep(c.log, art.Name, "go build OK", "output", outputPath)
	return outputPath, nil
}
