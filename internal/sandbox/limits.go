package sandbox

import (
	"fmt"

	"github.com/docker/go-units"
)

// Limits mirrors the resource-limit keys the isolation tool accepts
// directly, plus a handful of stdio redirection flags.
//
// Numeric fields hold plain numbers in the tool's native unit (seconds
// for time, kilobytes for sizes). Memory, stack and fsize can also be
// given as human strings such as "256m" in MemHuman/StackHuman/FSizeHuman;
// ParseHumanSizes folds those into the numeric fields. Merge does not
// copy the *Human fields, and the request path never calls
// ParseHumanSizes, so human strings sent in a request do not change the
// limits a run gets.
type Limits struct {
	Time      float64 `json:"time,omitempty" yaml:"time,omitempty" msgpack:"time,omitempty"`
	WallTime  float64 `json:"wall-time,omitempty" yaml:"wall-time,omitempty" msgpack:"wall-time,omitempty"`
	Mem       int64   `json:"mem,omitempty" yaml:"mem,omitempty" msgpack:"mem,omitempty"`
	VirtMem   int64   `json:"virt-mem,omitempty" yaml:"virt-mem,omitempty" msgpack:"virt-mem,omitempty"`
	Stack     int64   `json:"stack,omitempty" yaml:"stack,omitempty" msgpack:"stack,omitempty"`
	FSize     int64   `json:"fsize,omitempty" yaml:"fsize,omitempty" msgpack:"fsize,omitempty"`
	Processes int     `json:"processes,omitempty" yaml:"processes,omitempty" msgpack:"processes,omitempty"`
	Quota     string  `json:"quota,omitempty" yaml:"quota,omitempty" msgpack:"quota,omitempty"`
	Environ   bool    `json:"environ,omitempty" yaml:"environ,omitempty" msgpack:"environ,omitempty"`
	MountProc bool    `json:"mount-proc,omitempty" yaml:"mount-proc,omitempty" msgpack:"mount-proc,omitempty"`
	Stdin     string  `json:"stdin,omitempty" yaml:"stdin,omitempty" msgpack:"stdin,omitempty"`
	Stdout    string  `json:"stdout,omitempty" yaml:"stdout,omitempty" msgpack:"stdout,omitempty"`
	Stderr    string  `json:"stderr,omitempty" yaml:"stderr,omitempty" msgpack:"stderr,omitempty"`

	// MemHuman/StackHuman/FSizeHuman allow the same fields to be supplied
	// as "256m"/"1g" strings in config files; ParseHumanSizes folds them
	// into the numeric fields above (in kilobytes) using go-units, the
	// way the teacher already depends on go-units for Docker resource
	// math.
	MemHuman   string `json:"mem_human,omitempty" yaml:"mem_human,omitempty" msgpack:"mem_human,omitempty"`
	StackHuman string `json:"stack_human,omitempty" yaml:"stack_human,omitempty" msgpack:"stack_human,omitempty"`
	FSizeHuman string `json:"fsize_human,omitempty" yaml:"fsize_human,omitempty" msgpack:"fsize_human,omitempty"`
}

// ParseHumanSizes resolves any *Human string fields into their numeric
// kilobyte counterparts, returning an error if a string fails to parse.
func (l *Limits) ParseHumanSizes() error {
	for _, pair := range []struct {
		human string
		dst   *int64
	}{
		{l.MemHuman, &l.Mem},
		{l.StackHuman, &l.Stack},
		{l.FSizeHuman, &l.FSize},
	} {
		if pair.human == "" {
			continue
		}
		bytes, err := units.FromHumanSize(pair.human)
		if err != nil {
			return fmt.Errorf("sandbox: invalid size %q: %w", pair.human, err)
		}
		*pair.dst = bytes / 1024
	}
	return nil
}

// Merge returns a copy of base with every non-zero field of override
// applied on top. Used to layer per-test overrides over a request's
// default execution limits.
func (base Limits) Merge(override Limits) Limits {
	out := base
	if override.Time != 0 {
		out.Time = override.Time
	}
	if override.WallTime != 0 {
		out.WallTime = override.WallTime
	}
	if override.Mem != 0 {
		out.Mem = override.Mem
	}
	if override.VirtMem != 0 {
		out.VirtMem = override.VirtMem
	}
	if override.Stack != 0 {
		out.Stack = override.Stack
	}
	if override.FSize != 0 {
		out.FSize = override.FSize
	}
	if override.Processes != 0 {
		out.Processes = override.Processes
	}
	if override.Quota != "" {
		out.Quota = override.Quota
	}
	if override.Environ {
		out.Environ = true
	}
	if override.MountProc {
		out.MountProc = true
	}
	if override.Stdin != "" {
		out.Stdin = override.Stdin
	}
	if override.Stdout != "" {
		out.Stdout = override.Stdout
	}
	if override.Stderr != "" {
		out.Stderr = override.Stderr
	}
	return out
}

// DefaultLimits returns conservative defaults applied when a request omits
// a stage's limits entirely.
func DefaultLimits() Limits {
	return Limits{
		Time:      5,
		WallTime:  10,
		Mem:       256 * 1024,
		Stack:     64 * 1024,
		FSize:     16 * 1024,
		Processes: 1,
	}
}
