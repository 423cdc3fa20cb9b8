package cli

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/funvibe/gobridge/internal/compiler"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/loader"
	"github.com/funvibe/gobridge/internal/rpc"
	"github.com/funvibe/gobridge/pkg/value"
)

const unit = `package main

type Counter struct {
	N     int64
	Label string
}

func NewCounter(n int64) *Counter { return &Counter{N: n} }

func (c *Counter) Inc() { c.N++ }

func add(a, b int32) int32 { return a + b }

func shout(s string) string { return s + "!" }

func first(xs chan int) int { return <-xs }
`

// project writes a unit and a gobridge.yaml into a temp dir.
func project(t *testing.T) (dir, cfgPath, unitPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "gobridge.yaml")
	if err := os.WriteFile(cfgPath, []byte("cache_dir: cache\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	unitPath = filepath.Join(dir, "unit.go")
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, cfgPath, unitPath
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		rest    string
		check   func(*options) bool
		wantErr bool
	}{
		{"none", []string{"inspect", "a.go"}, "inspect a.go", func(o *options) bool { return *o == options{} }, false},
		{"config", []string{"--config", "x.yaml", "cache", "list"}, "cache list", func(o *options) bool { return o.config == "x.yaml" }, false},
		{"equals", []string{"--config=x.yaml", "-v", "version"}, "version", func(o *options) bool { return o.config == "x.yaml" && o.verbose }, false},
		{"flags", []string{"--no-cache", "--strict", "--log-format", "json", "gen"}, "gen", func(o *options) bool { return o.noCache && o.strict && o.logFormat == "json" }, false},
		{"command flags untouched", []string{"gen", "a.go", "-o", "out"}, "gen a.go -o out", func(o *options) bool { return true }, false},
		{"missing value", []string{"--config"}, "", nil, true},
		{"bad format", []string{"--log-format", "xml", "gen"}, "", nil, true},
		{"unknown", []string{"--frobnicate", "gen"}, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, rest, err := parseOptions(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(rest, " "); got != tt.rest {
				t.Fatalf("rest = %q, want %q", got, tt.rest)
			}
			if !tt.check(opts) {
				t.Fatalf("options = %+v", opts)
			}
		})
	}
}

func TestRunBasics(t *testing.T) {
	if code, out, _ := run(t, "version"); code != 0 || !strings.HasPrefix(out, "gobridge ") {
		t.Fatalf("version: %d %q", code, out)
	}
	if code, out, _ := run(t, "help"); code != 0 || !strings.Contains(out, "Commands:") {
		t.Fatalf("help: %d %q", code, out)
	}
	if code, _, errOut := run(t); code != 2 || !strings.Contains(errOut, "Usage:") {
		t.Fatalf("no command: %d", code)
	}
	_, cfg, _ := project(t)
	if code, _, errOut := run(t, "--config", cfg, "frobnicate"); code != 2 || !strings.Contains(errOut, "Unknown command") {
		t.Fatalf("unknown command: %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "inspect", "x.go"); code != 1 || !strings.Contains(errOut, "Error:") {
		t.Fatalf("missing config: %d %q", code, errOut)
	}
}

func TestResolveConfig(t *testing.T) {
	dir, cfgPath, _ := project(t)
	cfg, err := resolveConfig(&options{config: cfgPath, noCache: true, strict: true, logFormat: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheDir != filepath.Join(dir, "cache") {
		t.Fatalf("cache dir = %s", cfg.CacheDir)
	}
	if !cfg.NoCache || !cfg.Strict || cfg.LogFormat != "json" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if lc := loggerConfig(cfg, os.Stderr); lc.Format != "json" {
		t.Fatalf("logger format = %s", lc.Format)
	}
}

func TestInspectCommand(t *testing.T) {
	_, cfg, path := project(t)
	code, out, errOut := run(t, "--config", cfg, "inspect", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"package main",
		"func add(a int32, b int32) int32",
		"func shout(s string) string",
		"type Counter",
		"new(n int64)",
		"attr N int64",
		"method Inc() [mut]",
		"not exposed:",
		"first:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	if code, _, _ := run(t, "--config", cfg, "--strict", "inspect", path); code != 1 {
		t.Fatalf("strict inspect exit %d, want 1", code)
	}
	if code, _, _ := run(t, "--config", cfg, "inspect"); code != 1 {
		t.Fatalf("inspect without file exit %d", code)
	}
}

func TestGenCommand(t *testing.T) {
	dir, cfg, path := project(t)

	code, out, errOut := run(t, "--config", cfg, "gen", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "// Code generated by gobridge. DO NOT EDIT.") || !strings.Contains(out, "func Bridge_add(") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	outDir := filepath.Join(dir, "gen")
	if code, _, errOut := run(t, "--config", cfg, "gen", path, "-o", outDir); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "gobridge_trampolines.go"))
	if err != nil {
		t.Fatalf("generated file: %v", err)
	}
	if string(data) != out {
		t.Fatal("written file differs from printed output")
	}

	if code, _, errOut := run(t, "--config", cfg, "--strict", "gen", path); code != 1 || !strings.Contains(errOut, "cannot be exposed") {
		t.Fatalf("strict gen: %d %q", code, errOut)
	}
}

func TestCacheCommands(t *testing.T) {
	dir, cfg, _ := project(t)

	code, out, errOut := run(t, "--config", cfg, "cache", "list")
	if code != 0 || !strings.Contains(out, "No cached plugins") {
		t.Fatalf("list: %d %q %q", code, out, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache")); err != nil {
		t.Fatalf("cache dir not created: %v", err)
	}
	if code, out, _ := run(t, "--config", cfg, "cache", "clean"); code != 0 || !strings.Contains(out, "Cleaned") {
		t.Fatalf("clean: %d %q", code, out)
	}
	if code, _, _ := run(t, "--config", cfg, "cache", "prune"); code != 1 {
		t.Fatalf("unknown cache subcommand exit %d", code)
	}
}

func TestParseArgs(t *testing.T) {
	hl := host.NewLoader("go")
	i32, _ := hl.DefineType("int32", value.Int)
	str, _ := hl.DefineType("string", value.String)
	arr, _ := hl.DefineType("Array", value.Array)

	sig := host.NewSignature(3)
	sig.Set(0, "n", i32)
	sig.Set(1, "s", str)
	sig.Set(2, "xs", arr)

	vals, err := parseArgs(sig, []string{"0x10", "hi", "[1, 2, 3]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToInt(vals[0]) != 16 || value.ToString(vals[1]) != "hi" || value.TypeCount(vals[2]) != 3 {
		t.Fatalf("parsed %v", vals)
	}
	for _, v := range vals {
		v.Release()
	}

	if _, err := parseArgs(sig, []string{"1"}); err == nil {
		t.Fatal("expected argument count error")
	}
	if _, err := parseArgs(sig, []string{"99999999999", "x", "[]"}); err == nil || !strings.Contains(err.Error(), "argument n") {
		t.Fatalf("expected range error for n, got %v", err)
	}

	variadic := host.NewSignature(0)
	variadic.SetVariadic()
	vals, err = parseArgs(variadic, []string{"7", "true", "{a: 1}", "~"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := []value.ID{value.Long, value.Bool, value.Map, value.Null}
	for i, v := range vals {
		if value.TypeID(v) != ids[i] {
			t.Errorf("argument %d has tag %s, want %s", i, value.TypeID(v), ids[i])
		}
		v.Release()
	}
}

func TestFormatValue(t *testing.T) {
	arr := value.FromSlice([]int64{1, 2}, value.CreateLong)
	m, err := value.FromNative(map[string]int64{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		v    *value.Value
		want string
	}{
		{value.CreateInt(5), "5"},
		{value.CreateString("hi"), "hi"},
		{value.CreateBuffer([]byte("ab")), `"ab"`},
		{value.CreateNull(), "null"},
		{value.CreateBool(true), "true"},
		{arr, "[1, 2]"},
		{m, "{a: 1}"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.v); got != tt.want {
			t.Errorf("formatValue(%s) = %q, want %q", tt.v, got, tt.want)
		}
		tt.v.Release()
	}
}

func TestFileWatcher(t *testing.T) {
	_, _, path := project(t)
	fw, err := newFileWatcher(path)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer fw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- fw.Run(ctx, 10*time.Millisecond, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	other := filepath.Join(filepath.Dir(path), "other.go")
	if err := os.WriteFile(other, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(unit+"\nfunc more() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestCallCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	if !compiler.PluginsSupported {
		t.Skip("plugins not supported on this platform")
	}

	_, cfg, path := project(t)
	code, out, errOut := run(t, "--config", cfg, "call", path, "add", "2", "40")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != "42" {
		t.Fatalf("add = %q", out)
	}

	code, _, errOut = run(t, "--config", cfg, "call", path, "nope")
	if code != 1 || !strings.Contains(errOut, "have add") {
		t.Fatalf("unknown function: %d %q", code, errOut)
	}
}

func TestParseRemoteArgs(t *testing.T) {
	fn := rpc.FunctionInfo{Name: "f", Signature: "(a int32, b Array)", ParamKinds: []value.ID{value.Int, value.Array}}
	vals, err := parseRemoteArgs(fn, []string{"5", "[x, y]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToInt(vals[0]) != 5 || value.TypeCount(vals[1]) != 2 {
		t.Fatalf("parsed %v", vals)
	}
	for _, v := range vals {
		v.Release()
	}

	if _, err := parseRemoteArgs(fn, []string{"5"}); err == nil {
		t.Fatal("expected argument count error")
	}
	if _, err := parseRemoteArgs(fn, []string{"five", "[]"}); err == nil || !strings.Contains(err.Error(), "argument 0") {
		t.Fatalf("expected parse error for argument 0, got %v", err)
	}

	fn.Variadic = true
	vals, err = parseRemoteArgs(fn, []string{"1", "[]", "extra"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vals) != 3 || value.ToString(vals[2]) != "extra" {
		t.Fatalf("parsed %v", vals)
	}
	for _, v := range vals {
		v.Release()
	}
}

func TestRemoteCommand(t *testing.T) {
	cfg := compiler.DefaultConfig()
	cfg.NoCache = true
	l, err := loader.Initialize(context.Background(), host.NewLoader(loader.Tag), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Destroy() })
	h, err := l.LoadNative("remote", map[string]any{
		"add": func(a, b int32) int32 { return a + b },
	})
	if err != nil {
		t.Fatal(err)
	}
	hctx := host.NewContext()
	if err := l.Discover(h, hctx); err != nil {
		t.Fatal(err)
	}

	srv, err := rpc.NewServer(hctx.Scope())
	if err != nil {
		t.Fatal(err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	_, cfgPath, _ := project(t)
	addr := lis.Addr().String()

	code, out, errOut := run(t, "--config", cfgPath, "rpc", addr, "list")
	if code != 0 || strings.TrimSpace(out) != "func add(arg0 int32, arg1 int32) int32" {
		t.Fatalf("list: exit %d %q %q", code, out, errOut)
	}
	code, out, errOut = run(t, "--config", cfgPath, "rpc", addr, "add", "2", "40")
	if code != 0 || strings.TrimSpace(out) != "42" {
		t.Fatalf("add: exit %d %q %q", code, out, errOut)
	}
	code, _, errOut = run(t, "--config", cfgPath, "rpc", addr, "mul", "1")
	if code != 1 || !strings.Contains(errOut, "have add") {
		t.Fatalf("unknown function: %d %q", code, errOut)
	}
}
