package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

// boxPrefix matches the isolate tool's host-visible working directory
// prefix. Any argv/env value containing it must be scrubbed so a
// sandboxed child only ever observes a stable "/box" view.
var boxPrefix = regexp.MustCompile(`/var/(local/)?lib/isolate/[0-9]+`)

// ScrubBoxPrefix removes the host box-directory prefix from s.
func ScrubBoxPrefix(s string) string {
	return boxPrefix.ReplaceAllString(s, "")
}

// NewMetaPath allocates a fresh, empty isolate meta file under the host
// temp directory for boxID, named with a UUID so concurrent runs against
// the same box id never collide on a predictable name. The caller owns
// removing it.
func NewMetaPath(boxID int) (string, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("isolate-meta-%d-%s.txt", boxID, uuid.NewString()))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", fmt.Errorf("sandbox: creating meta file: %w", err)
	}
	return path, nil
}

// initArgs builds the arguments (excluding the tool path) for
// initializing box id under the configured isolation tool.
func (d *IsolateDriver) initArgs(boxID int) []string {
	argv := []string{fmt.Sprintf("--box-id=%d", boxID)}
	if d.cgroups {
		argv = append(argv, "--cg")
	}
	return append(argv, "--init")
}

// cleanupArgs builds the arguments for tearing down box id.
func (d *IsolateDriver) cleanupArgs(boxID int) []string {
	argv := []string{fmt.Sprintf("--box-id=%d", boxID)}
	if d.cgroups {
		argv = append(argv, "--cg")
	}
	return append(argv, "--cleanup")
}

// runArgs builds the arguments for a metered run inside boxID: box-id,
// optional --cg, --meta, repeated --dir, repeated -E, the short resource
// flags, optional stdio redirection, then "--run -- " + the command
// itself.
func (d *IsolateDriver) runArgs(boxID int, metaPath string, limits Limits, env []string, dirs []string, argv []string) []string {
	return BuildRunArgs(boxID, metaPath, d.cgroups, limits, env, dirs, argv)
}

// BuildRunArgs builds the isolation-tool argv for a metered run inside
// boxID, exported so other callers that drive the tool directly (the
// interactive coupler, which needs raw control over stdio that Driver.Run
// doesn't expose) build the exact same grammar instead of a hand-rolled
// subset of it.
func BuildRunArgs(boxID int, metaPath string, cgroups bool, limits Limits, env []string, dirs []string, argv []string) []string {
	out := []string{fmt.Sprintf("--box-id=%d", boxID)}
	if cgroups {
		out = append(out, "--cg")
	}
	out = append(out, "--meta="+metaPath)

	for _, dir := range dirs {
		out = append(out, "--dir="+dir)
	}
	for _, kv := range env {
		out = append(out, "-E"+kv)
	}
	if limits.Environ {
		out = append(out, "--full-env")
	}
	if limits.MountProc {
		out = append(out, "--dir=proc=proc:maxsize=8:fstype=proc")
	}

	if limits.Time > 0 {
		out = append(out, fmt.Sprintf("-t%g", limits.Time))
	}
	if limits.WallTime > 0 {
		out = append(out, fmt.Sprintf("-w%g", limits.WallTime))
	}
	if limits.Mem > 0 {
		out = append(out, fmt.Sprintf("-m%d", limits.Mem))
	}
	if limits.FSize > 0 {
		out = append(out, fmt.Sprintf("-f%d", limits.FSize))
	}
	if limits.Processes > 0 {
		out = append(out, fmt.Sprintf("-p%d", limits.Processes))
	}
	if limits.Stack > 0 {
		out = append(out, fmt.Sprintf("--stack=%d", limits.Stack))
	}
	if limits.VirtMem > 0 {
		out = append(out, fmt.Sprintf("--cg-mem=%d", limits.VirtMem))
	}
	if limits.Quota != "" {
		out = append(out, "--quota="+limits.Quota)
	}

	if limits.Stdin != "" {
		out = append(out, "--stdin="+limits.Stdin)
	}
	if limits.Stdout != "" {
		out = append(out, "--stdout="+limits.Stdout)
	}
	if limits.Stderr != "" {
		out = append(out, "--stderr="+limits.Stderr)
	}

	out = append(out, "--run", "--")
	out = append(out, argv...)
	return out
}

// dedupDirs merges descriptor-declared and config-declared allowed
// directories, preserving first-occurrence order.
func dedupDirs(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, d := range set {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
