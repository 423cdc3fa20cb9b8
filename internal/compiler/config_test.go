package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gobridge.yaml")

	cfg, err := ParseConfig([]byte(`
go: /usr/local/go/bin/go
min_go_version: "1.22"
build_flags: ["-race"]
cache_dir: build/cache
verbose: true
log_format: json
`), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Go != "/usr/local/go/bin/go" || cfg.MinGoVersion != "1.22" || !cfg.Verbose {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CacheDir != filepath.Join(dir, "build", "cache") {
		t.Errorf("cache_dir = %q, want it resolved against the config dir", cfg.CacheDir)
	}
	if cfg.ModulePath != DefaultModulePath || cfg.LogFormat != "json" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"), filepath.Join(t.TempDir(), "gobridge.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Go != "go" || cfg.LogFormat != "text" || !strings.HasSuffix(cfg.CacheDir, filepath.Join(".gobridge", "cache")) {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "go: [", "parsing"},
		{"bad version", `min_go_version: "one"`, "min_go_version"},
		{"bad log format", "log_format: xml", "log_format"},
		{"buildmode", `build_flags: ["-buildmode=exe"]`, "buildmode"},
		{"output", `build_flags: ["-o", "x"]`, "output path"},
		{"missing source dir", "source_dir: ./nope", "source_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml), filepath.Join(t.TempDir(), "gobridge.yaml"))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	if path, err := FindConfig(nested); err != nil || path != "" {
		t.Fatalf("FindConfig without config = %q, %v", path, err)
	}

	want := filepath.Join(root, "gobridge.yml")
	if err := os.WriteFile(want, []byte("verbose: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := FindConfig(nested)
	if err != nil || path != want {
		t.Fatalf("FindConfig = %q, %v; want %q", path, err, want)
	}

	cfg, err := LoadConfig(path)
	if err != nil || !cfg.Verbose {
		t.Fatalf("LoadConfig = %+v, %v", cfg, err)
	}
}
