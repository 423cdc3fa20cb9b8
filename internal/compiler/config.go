package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ConfigNames are the file names FindConfig looks for, in order.
var ConfigNames = []string{"gobridge.yaml", "gobridge.yml"}

// Config represents gobridge.yaml.
type Config struct {
	// Go is the go command used for builds. Defaults to "go".
	Go string `yaml:"go,omitempty"`

	// MinGoVersion rejects toolchains older than this version (e.g. "1.22").
	MinGoVersion string `yaml:"min_go_version,omitempty"`

	// BuildFlags are appended to every go build invocation.
	BuildFlags []string `yaml:"build_flags,omitempty"`

	// CacheDir holds compiled plugins and the cache index. Relative paths
	// are resolved against the directory containing the config file.
	// Defaults to .gobridge/cache.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// NoCache disables the artifact cache.
	NoCache bool `yaml:"no_cache,omitempty"`

	// ModulePath is the import path generated code uses for gobridge.
	ModulePath string `yaml:"module_path,omitempty"`

	// SourceDir is the gobridge source tree, used for the replace
	// directive of the build workspace. Optional.
	SourceDir string `yaml:"source_dir,omitempty"`

	// Strict turns skipped declarations into load errors.
	Strict bool `yaml:"strict,omitempty"`

	Verbose   bool   `yaml:"verbose,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

// DefaultModulePath is the import path of this module.
const DefaultModulePath = "github.com/funvibe/gobridge"

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults("")
	return cfg
}

// LoadConfig reads and parses a gobridge.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses gobridge.yaml content. The path is used for error
// messages and to resolve relative directories.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults(filepath.Dir(path))
	return &cfg, nil
}

// FindConfig searches for gobridge.yaml starting from dir and walking up
// to parent directories. It returns "" and a nil error when none is found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range ConfigNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.MinGoVersion != "" {
		if _, err := semver.NewVersion(strings.TrimPrefix(c.MinGoVersion, "go")); err != nil {
			return fmt.Errorf("%s: min_go_version %q: %w", path, c.MinGoVersion, err)
		}
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("%s: log_format must be text or json, got %q", path, c.LogFormat)
	}
	for i, flag := range c.BuildFlags {
		if flag == "-buildmode" || strings.HasPrefix(flag, "-buildmode=") {
			return fmt.Errorf("%s: build_flags[%d]: buildmode is fixed to plugin", path, i)
		}
		if flag == "-o" || strings.HasPrefix(flag, "-o=") {
			return fmt.Errorf("%s: build_flags[%d]: output path is managed by gobridge", path, i)
		}
	}
	if c.SourceDir != "" {
		dir := c.SourceDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s: source_dir %q not found: %w", path, c.SourceDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: source_dir %q is not a directory", path, c.SourceDir)
		}
	}
	return nil
}

func (c *Config) setDefaults(configDir string) {
	if c.Go == "" {
		c.Go = "go"
	}
	if c.ModulePath == "" {
		c.ModulePath = DefaultModulePath
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".gobridge", "cache")
	}
	if configDir != "" {
		if !filepath.IsAbs(c.CacheDir) {
			c.CacheDir = filepath.Join(configDir, c.CacheDir)
		}
		if c.SourceDir != "" && !filepath.IsAbs(c.SourceDir) {
			c.SourceDir = filepath.Join(configDir, c.SourceDir)
		}
	}
}
