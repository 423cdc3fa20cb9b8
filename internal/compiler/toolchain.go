package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrToolchainTooOld is returned when the go command is older than the
// configured min_go_version.
var ErrToolchainTooOld = errors.New("go toolchain too old")

// Toolchain is a checked go command.
type Toolchain struct {
	Go      string
	Raw     string // output of go env GOVERSION
	Version *semver.Version
}

// GoModVersion is the version for the go directive of a generated go.mod.
func (t *Toolchain) GoModVersion() string {
	return fmt.Sprintf("%d.%d", t.Version.Major(), t.Version.Minor())
}

var goVersionRe = regexp.MustCompile(`go(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseGoVersion extracts the release version from a GOVERSION string such
// as "go1.25.3", "go1.26rc1" or "devel go1.26-abcdef".
func ParseGoVersion(s string) (*semver.Version, error) {
	m := goVersionRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("unrecognized go version %q", s)
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	return semver.NewVersion(m[1] + "." + m[2] + "." + patch)
}

// CheckToolchain runs `go env GOVERSION` and enforces min when it is set.
func CheckToolchain(ctx context.Context, goCmd, min string) (*Toolchain, error) {
	cmd := exec.CommandContext(ctx, goCmd, "env", "GOVERSION")
	cmd.Env = append(os.Environ(), "GOWORK=off")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", goCmd, err)
	}
	raw := strings.TrimSpace(string(out))
	v, err := ParseGoVersion(raw)
	if err != nil {
		return nil, err
	}
	tc := &Toolchain{Go: goCmd, Raw: raw, Version: v}

	if min != "" {
		if err := checkMin(v, min); err != nil {
			return tc, err
		}
	}
	return tc, nil
}

func checkMin(v *semver.Version, min string) error {
	c, err := semver.NewConstraint(">= " + strings.TrimPrefix(min, "go"))
	if err != nil {
		return fmt.Errorf("min_go_version %q: %w", min, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: have %s, need %s", ErrToolchainTooOld, v, min)
	}
	return nil
}
