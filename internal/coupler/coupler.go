// Package coupler implements the interactive coupler: two sandboxed
// processes wired stdout-to-stdin in both directions, metered
// independently, with a joint termination protocol.
package coupler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// Side bundles one child's launch parameters: its argv, the environment
// overlay its program declares, and the directories its descriptor
// requires bind-mounted, the same three inputs Driver.Run takes for an
// ordinary single-program run.
type Side struct {
	Argv []string
	Env  []string
	Dirs []string
}

// NewSide builds a Side from its three components.
func NewSide(argv, env, dirs []string) Side {
	return Side{Argv: argv, Env: env, Dirs: dirs}
}

// Pair is the result of a coupled run: one RunMeta per side.
type Pair struct {
	Solution   sandbox.RunMeta
	Interactor sandbox.RunMeta
}

// Coupler drives two children through crossed pipes. It execs the
// isolation tool directly (mirroring sandbox.IsolateDriver's own
// invocation style) because it needs raw control over stdio that
// Driver.Run, which owns its own pipes end-to-end, doesn't expose.
type Coupler struct {
	tool      string
	cgroups   bool
	graceWait time.Duration
}

// New creates a Coupler against the given isolation tool binary.
func New(toolPath string, cgroups bool) *Coupler {
	if toolPath == "" {
		toolPath = "isolate"
	}
	return &Coupler{tool: toolPath, cgroups: cgroups, graceWait: 2 * time.Second}
}

// Run starts the solution and interactor inside their respective handles
// with crossed pipes: the solution's stdout feeds the interactor's
// stdin, and vice versa. seed, if non-nil, is written to seedPath inside
// the interactor's box before launch and appended as the interactor's
// final argv element. sol and inter each carry the argv, env overlay, and
// allowed-directory list their own descriptor declares, the same
// per-program inputs a single-program run passes to Driver.Run, routed
// through the same argv grammar via sandbox.BuildRunArgs so interactive
// runs get identical --dir/-E/--meta treatment.
//
// Both children are started before either is awaited, and each child's
// stderr is copied by os/exec into its own in-memory buffer. These
// buffers are not bounded by the box's fsize limit. One goroutine per
// child awaits its Wait.
func (c *Coupler) Run(ctx context.Context, solHandle, interHandle *sandbox.Handle, sol, inter Side, seed []byte, seedPath string) (Pair, error) {
	if len(seed) > 0 {
		full := interHandle.WorkDir + "/" + seedPath
		if err := os.WriteFile(full, seed, 0o644); err != nil {
			return Pair{}, fmt.Errorf("coupler: writing seed file: %w", err)
		}
		inter.Argv = append(inter.Argv, "/box/"+seedPath)
	}

	solMetaPath, err := sandbox.NewMetaPath(solHandle.ID)
	if err != nil {
		return Pair{}, fmt.Errorf("coupler: solution meta file: %w", err)
	}
	defer os.Remove(solMetaPath)
	interMetaPath, err := sandbox.NewMetaPath(interHandle.ID)
	if err != nil {
		return Pair{}, fmt.Errorf("coupler: interactor meta file: %w", err)
	}
	defer os.Remove(interMetaPath)

	// solR/interW: solution reads the interactor's output on its stdin.
	// interR/solW: interactor reads the solution's output on its stdin.
	solR, interW, err := os.Pipe()
	if err != nil {
		return Pair{}, fmt.Errorf("coupler: allocating pipe: %w", err)
	}
	interR, solW, err := os.Pipe()
	if err != nil {
		return Pair{}, fmt.Errorf("coupler: allocating pipe: %w", err)
	}

	var solStderr, interStderr bytes.Buffer

	solCmd := c.buildCmd(ctx, solHandle, solMetaPath, sol)
	solCmd.Stdin = solR
	solCmd.Stdout = solW
	solCmd.Stderr = &solStderr

	interCmd := c.buildCmd(ctx, interHandle, interMetaPath, inter)
	interCmd.Stdin = interR
	interCmd.Stdout = interW
	interCmd.Stderr = &interStderr

	if err := solCmd.Start(); err != nil {
		closeAll(solR, interW, interR, solW)
		return Pair{}, fmt.Errorf("coupler: starting solution: %w", err)
	}
	if err := interCmd.Start(); err != nil {
		_ = solCmd.Process.Kill()
		closeAll(solR, interW, interR, solW)
		return Pair{}, fmt.Errorf("coupler: starting interactor: %w", err)
	}

	// The parent process must not hold its own copy of the ends each
	// child owns, or the child never sees EOF when its peer exits.
	solR.Close()
	interW.Close()
	interR.Close()
	solW.Close()
	launched := time.Now()

	solDone := make(chan error, 1)
	interDone := make(chan error, 1)
	go func() { solDone <- solCmd.Wait() }()
	go func() { interDone <- interCmd.Wait() }()

	wallCap := maxDuration(wallTimeOf(solHandle), wallTimeOf(interHandle))
	if wallCap <= 0 {
		wallCap = 30 * time.Second
	}

	var solErr, interErr error
	var solTimedOutByGrace bool

	select {
	case solErr = <-solDone:
		// Solution finished first: the interactor still holds the other
		// end of the pipe, so it'll see EOF on its own; give it the
		// remaining wall-time budget before forcing termination.
		select {
		case interErr = <-interDone:
		case <-time.After(wallCap - time.Since(launched)):
			_ = interCmd.Process.Kill()
			interErr = <-interDone
		}
	case interErr = <-interDone:
		select {
		case solErr = <-solDone:
		case <-time.After(c.graceWait):
			_ = solCmd.Process.Kill()
			solErr = <-solDone
			solTimedOutByGrace = true
		}
	case <-ctx.Done():
		_ = solCmd.Process.Kill()
		_ = interCmd.Process.Kill()
		<-solDone
		<-interDone
		return Pair{}, ctx.Err()
	}

	solMeta := resultMeta(solMetaPath, solErr, solStderr.Bytes())
	if solTimedOutByGrace {
		// A solution killed by the post-interactor grace timer is
		// reported as TIMED_OUT rather than as a generic failure.
		solMeta.Status = sandbox.StatusTimedOut
		solMeta.Killed = true
	}
	interMeta := resultMeta(interMetaPath, interErr, interStderr.Bytes())

	return Pair{Solution: solMeta, Interactor: interMeta}, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// buildCmd builds one child's command line through the same
// sandbox.BuildRunArgs grammar the single-program driver uses, so
// interactive runs get identical --meta/--dir/-E/resource-flag treatment
// instead of the hand-rolled flag subset this coupler used to build.
func (c *Coupler) buildCmd(ctx context.Context, h *sandbox.Handle, metaPath string, s Side) *exec.Cmd {
	args := sandbox.BuildRunArgs(h.ID, metaPath, c.cgroups, h.Limits, s.Env, s.Dirs, s.Argv)
	return exec.CommandContext(ctx, c.tool, args...)
}

// resultMeta reads the isolate meta file isolate itself wrote for this
// child, the same way sandbox.ParseMeta backs an ordinary single-program
// run, so ExitCode/CgMem/Time/etc. reflect the sandboxed program rather
// than isolate's own process exit. If isolate was killed before it could
// write the file (our own grace-period enforcement, or context
// cancellation), it falls back to classifying the outcome from the wait
// error alone.
func resultMeta(metaPath string, waitErr error, stderr []byte) sandbox.RunMeta {
	if raw, err := os.ReadFile(metaPath); err == nil && len(raw) > 0 {
		meta := sandbox.ParseMeta(raw)
		meta.Stdout = []byte{}
		meta.Stderr = stderr
		return meta
	}

	meta := sandbox.RunMeta{Stdout: []byte{}, Stderr: stderr}
	if waitErr == nil {
		meta.Status = sandbox.StatusOK
		return meta
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		meta.ExitCode = exitErr.ExitCode()
		meta.Status = sandbox.StatusRuntimeError
		return meta
	}
	meta.Status = sandbox.StatusTimedOut
	meta.Killed = true
	return meta
}

func wallTimeOf(h *sandbox.Handle) time.Duration {
	if h.Limits.WallTime <= 0 {
		return 0
	}
	return time.Duration(h.Limits.WallTime * float64(time.Second))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
