// Package sandbox implements the sandbox driver: scoped acquisition of a
// numbered box under an external isolation tool, with guaranteed release
// on every exit path.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sentinel errors surfaced to the collaborator.
var (
	ErrInitFailed     = errors.New("sandbox: box initialization failed")
	ErrSandboxCrashed = errors.New("sandbox: isolation tool produced no meta file")
)

// DefaultMaxCaptureBytes bounds stdout/stderr capture when a run carries
// no fsize limit of its own.
const DefaultMaxCaptureBytes = 64 * 1024 * 1024

// Handle is a transient lease on one numbered box. The language instance
// that requested it exclusively owns it from Acquire to Release.
type Handle struct {
	ID      int
	WorkDir string
	Limits  Limits

	driver   *IsolateDriver
	released sync.Once
}

// Driver is the abstraction over the sandbox backend. A single
// implementation (IsolateDriver) is registered by default; the interface
// exists so an alternate isolation tool can be swapped in without
// touching the pipeline, the same "driver abstraction behind a registry"
// shape the teacher used for its Docker/Firecracker split.
type Driver interface {
	Acquire(ctx context.Context, limits Limits) (*Handle, error)
	Run(ctx context.Context, h *Handle, argv []string, env []string, stdin []byte, extraDirs []string) (retcode int, meta RunMeta, err error)
	Release(ctx context.Context, h *Handle) error
}

// DriverFactory constructs a Driver from configuration.
type DriverFactory func(cfg map[string]any) (Driver, error)

var driverRegistry = make(map[string]DriverFactory)

// RegisterDriver registers a driver factory under name, called from each
// driver implementation's init().
func RegisterDriver(name string, factory DriverFactory) {
	driverRegistry[name] = factory
}

// NewDriver constructs the named driver.
func NewDriver(name string, cfg map[string]any) (Driver, error) {
	factory, ok := driverRegistry[name]
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown driver %q", name)
	}
	return factory(cfg)
}

func init() {
	RegisterDriver("isolate", newIsolateDriverFromConfig)
}

// IsolateDriver drives an external isolate-compatible binary via os/exec.
// It owns no long-lived state beyond the box-id pool, which it guarantees
// to release even on failure.
type IsolateDriver struct {
	toolPath string
	cgroups  bool
	pool     *BoxPool
}

// IsolateDriverConfig configures a new IsolateDriver.
type IsolateDriverConfig struct {
	ToolPath string // default "isolate"
	NumBoxes int    // default 64
	CGroups  bool
}

// NewIsolateDriver constructs a driver against cfg.
func NewIsolateDriver(cfg IsolateDriverConfig) *IsolateDriver {
	if cfg.ToolPath == "" {
		cfg.ToolPath = "isolate"
	}
	if cfg.NumBoxes <= 0 {
		cfg.NumBoxes = 64
	}
	return &IsolateDriver{
		toolPath: cfg.ToolPath,
		cgroups:  cfg.CGroups,
		pool:     NewBoxPool(cfg.NumBoxes),
	}
}

func newIsolateDriverFromConfig(cfg map[string]any) (Driver, error) {
	c := IsolateDriverConfig{}
	if v, ok := cfg["tool_path"].(string); ok {
		c.ToolPath = v
	}
	if v, ok := cfg["num_boxes"].(int); ok {
		c.NumBoxes = v
	}
	if v, ok := cfg["cgroups"].(bool); ok {
		c.CGroups = v
	}
	return NewIsolateDriver(c), nil
}

// Acquire reserves a free box id and runs `isolate --init` to provision
// its filesystem, returning a Handle bound to the resulting working
// directory.
func (d *IsolateDriver) Acquire(ctx context.Context, limits Limits) (*Handle, error) {
	id, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.toolPath, d.initArgs(id)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		d.pool.Release(id)
		return nil, fmt.Errorf("%w: box %d: %s", ErrInitFailed, id, stderr.String())
	}

	workDir := filepath.Join("/var/local/lib/isolate", fmt.Sprintf("%d", id), "box")
	if out := firstLine(stdout.Bytes()); out != "" {
		workDir = filepath.Join(out, "box")
	}

	return &Handle{ID: id, WorkDir: workDir, Limits: limits, driver: d}, nil
}

// Run executes argv inside h's box under the sandbox's resource limits,
// draining stdout/stderr concurrently with Wait to avoid pipe-buffer
// deadlock, and parses the resulting meta file.
//
// This call may suspend on process I/O but never blocks on a mutex held
// across that suspension, so the scheduler is free to run other requests.
func (d *IsolateDriver) Run(ctx context.Context, h *Handle, argv []string, env []string, stdin []byte, extraDirs []string) (int, RunMeta, error) {
	if len(stdin) > 0 {
		stdinPath := filepath.Join(h.WorkDir, ".stdin")
		if err := os.WriteFile(stdinPath, stdin, 0o644); err != nil {
			return 0, RunMeta{}, fmt.Errorf("sandbox: writing stdin: %w", err)
		}
		h.Limits.Stdin = ".stdin"
	}

	metaPath, err := NewMetaPath(h.ID)
	if err != nil {
		return 0, RunMeta{}, err
	}
	defer os.Remove(metaPath)

	dirs := dedupDirs(extraDirs)
	scrubbedArgv := make([]string, len(argv))
	for i, a := range argv {
		scrubbedArgv[i] = ScrubBoxPrefix(a)
	}

	full := d.runArgs(h.ID, metaPath, h.Limits, env, dirs, scrubbedArgv)
	cmd := exec.CommandContext(ctx, d.toolPath, full...)

	maxCapture := h.Limits.FSize * 1024
	if maxCapture <= 0 {
		maxCapture = DefaultMaxCaptureBytes
	}
	var stdout, stderr boundedBuffer
	stdout.limit = int(maxCapture)
	stderr.limit = int(maxCapture)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	rawMeta, readErr := os.ReadFile(metaPath)
	if readErr != nil {
		return 0, RunMeta{}, fmt.Errorf("%w: %v", ErrSandboxCrashed, readErr)
	}
	if len(rawMeta) == 0 {
		// NewMetaPath created the file empty; isolate never wrote to it.
		return 0, RunMeta{}, fmt.Errorf("%w: box %d", ErrSandboxCrashed, h.ID)
	}

	meta := ParseMeta(rawMeta)
	meta.Stdout = stdout.Bytes()
	meta.Stderr = stderr.Bytes()

	retcode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		retcode = exitErr.ExitCode()
	} else if runErr != nil {
		return 0, RunMeta{}, fmt.Errorf("sandbox: running isolate: %w", runErr)
	}

	return retcode, meta, nil
}

// Release tears down h's box and returns its id to the pool. It is
// idempotent: repeated calls after the first are no-ops, and it runs on
// every exit path including cancellation.
func (d *IsolateDriver) Release(ctx context.Context, h *Handle) error {
	var releaseErr error
	h.released.Do(func() {
		cmd := exec.CommandContext(context.Background(), d.toolPath, d.cleanupArgs(h.ID)...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			log.Warn().Err(err).Int("box", h.ID).Str("stderr", stderr.String()).Msg("isolate cleanup failed")
			releaseErr = fmt.Errorf("sandbox: cleanup box %d: %w", h.ID, err)
		}
		d.pool.Release(h.ID)
	})
	return releaseErr
}

// PoolStats reports the box pool's total capacity and current lease count,
// for periodic metrics export.
func (d *IsolateDriver) PoolStats() (total, inUse int) {
	return d.pool.Size(), d.pool.InUse()
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
