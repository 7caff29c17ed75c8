package lang

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Program is a recognized external executable: an absolute or PATH-relative
// binary, its invocation options, an environment overlay, and a version
// probe. Programs are created once at descriptor-registration time and are
// immutable thereafter except for the cached version probe.
type Program struct {
	Path string   `yaml:"path"`
	Opts []string `yaml:"opts,omitempty"`
	Env  []string `yaml:"env,omitempty"`

	// VersionOpt is the argument passed to Path to print its version,
	// defaulting to "--version". VersionLines caps how many lines of
	// output are kept; 0 means keep everything.
	VersionOpt   string `yaml:"version_opt,omitempty"`
	VersionLines int    `yaml:"version_lines,omitempty"`

	versionMu   sync.Mutex
	versionDone bool
	version     string
}

// Executable reports whether Path resolves to a binary the current process
// can execute. A nil Program (an optional compiler or interpreter that a
// descriptor doesn't declare) is always eligible.
func (p *Program) Executable() bool {
	if p == nil {
		return true
	}
	_, err := exec.LookPath(p.Path)
	return err == nil
}

// Version runs the version probe and returns its output trimmed to
// VersionLines lines. The first successful result is cached and later
// calls return it without re-invoking the binary; a failed probe is not
// cached, so the next call probes again.
func (p *Program) Version(ctx context.Context) (string, error) {
	if p == nil {
		return "", fmt.Errorf("lang: version probe on nil program")
	}
	p.versionMu.Lock()
	defer p.versionMu.Unlock()
	if p.versionDone {
		return p.version, nil
	}
	opt := p.VersionOpt
	if opt == "" {
		opt = "--version"
	}
	out, err := exec.CommandContext(ctx, p.Path, opt).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("lang: probing version of %s: %w", p.Path, err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if p.VersionLines > 0 && p.VersionLines < len(lines) {
		lines = lines[:p.VersionLines]
	}
	p.version = strings.Join(lines, "\n")
	p.versionDone = true
	return p.version, nil
}

// Argv returns the program's invocation as a single argv slice, options
// first, ready to be appended to by a caller.
func (p *Program) Argv() []string {
	out := make([]string, 0, 1+len(p.Opts))
	out = append(out, p.Path)
	out = append(out, p.Opts...)
	return out
}
