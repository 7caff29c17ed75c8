// Package wire defines the plain JSON/msgpack request and response shapes
// exchanged with collaborators, and the conversions between them and the
// pipeline's internal types. It replaces the JSON-RPC agent protocol the
// teacher used to talk to an in-sandbox agent process, since this service
// drives the isolation tool directly and has no such agent.
package wire

import (
	"github.com/akshayaggarwal99/judge/internal/pipeline"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// Limits is the wire-facing mirror of sandbox.Limits: identical field set,
// kept as a separate type so the wire schema can evolve (e.g. accepting
// "256m"-style strings) without touching the sandbox package's own
// contract with the isolation tool.
type Limits struct {
	Time       float64 `json:"time,omitempty" msgpack:"time,omitempty"`
	WallTime   float64 `json:"wall-time,omitempty" msgpack:"wall-time,omitempty"`
	Mem        int64   `json:"mem,omitempty" msgpack:"mem,omitempty"`
	VirtMem    int64   `json:"virt-mem,omitempty" msgpack:"virt-mem,omitempty"`
	Stack      int64   `json:"stack,omitempty" msgpack:"stack,omitempty"`
	FSize      int64   `json:"fsize,omitempty" msgpack:"fsize,omitempty"`
	Processes  int     `json:"processes,omitempty" msgpack:"processes,omitempty"`
	Quota      string  `json:"quota,omitempty" msgpack:"quota,omitempty"`
	Environ    bool    `json:"environ,omitempty" msgpack:"environ,omitempty"`
	MountProc  bool    `json:"mount-proc,omitempty" msgpack:"mount-proc,omitempty"`
	Stdin      string  `json:"stdin,omitempty" msgpack:"stdin,omitempty"`
	Stdout     string  `json:"stdout,omitempty" msgpack:"stdout,omitempty"`
	Stderr     string  `json:"stderr,omitempty" msgpack:"stderr,omitempty"`
	MemHuman   string  `json:"mem_human,omitempty" msgpack:"mem_human,omitempty"`
	StackHuman string  `json:"stack_human,omitempty" msgpack:"stack_human,omitempty"`
	FSizeHuman string  `json:"fsize_human,omitempty" msgpack:"fsize_human,omitempty"`
}

func (l Limits) toSandbox() sandbox.Limits {
	return sandbox.Limits{
		Time: l.Time, WallTime: l.WallTime, Mem: l.Mem, VirtMem: l.VirtMem,
		Stack: l.Stack, FSize: l.FSize, Processes: l.Processes, Quota: l.Quota,
		Environ: l.Environ, MountProc: l.MountProc, Stdin: l.Stdin,
		Stdout: l.Stdout, Stderr: l.Stderr, MemHuman: l.MemHuman,
		StackHuman: l.StackHuman, FSizeHuman: l.FSizeHuman,
	}
}

// TestSpec is one entry of a SingleRun's "tests" list; limit overrides are
// inlined at the top level alongside name/stdin/fatal, matching the
// isolation tool's own flat option grammar.
type TestSpec struct {
	Name  string `json:"name,omitempty" msgpack:"name,omitempty"`
	Stdin []byte `json:"stdin,omitempty" msgpack:"stdin,omitempty"`
	Fatal bool   `json:"fatal,omitempty" msgpack:"fatal,omitempty"`
	Limits
}

func (t TestSpec) toPipeline() pipeline.TestSpec {
	return pipeline.TestSpec{Name: t.Name, Stdin: t.Stdin, Fatal: t.Fatal, Limits: t.Limits.toSandbox()}
}

// SingleRun is the request body for POST /run, and each half of an
// Interactive request's prog/interact pair.
type SingleRun struct {
	Lang     string     `json:"lang" msgpack:"lang"`
	Source   []byte     `json:"source" msgpack:"source"`
	Compile  Limits     `json:"compile,omitempty" msgpack:"compile,omitempty"`
	Execute  Limits     `json:"execute,omitempty" msgpack:"execute,omitempty"`
	Tests    []TestSpec `json:"tests,omitempty" msgpack:"tests,omitempty"`
	AllFatal bool       `json:"all_fatal,omitempty" msgpack:"all_fatal,omitempty"`
}

// ToOptionBag converts the wire request into the pipeline's OptionBag,
// applying the "tests absent defaults to a single empty spec" rule is left
// to pipeline.NormalizeTests so this conversion stays a straight field
// mapping.
func (s SingleRun) ToOptionBag() pipeline.OptionBag {
	tests := make([]pipeline.TestSpec, len(s.Tests))
	for i, t := range s.Tests {
		tests[i] = t.toPipeline()
	}
	return pipeline.OptionBag{
		Source:   s.Source,
		Compile:  s.Compile.toSandbox(),
		Execute:  s.Execute.toSandbox(),
		Tests:    tests,
		AllFatal: s.AllFatal,
	}
}

// Interactive is the request body for POST /interactive.
type Interactive struct {
	Prog     SingleRun `json:"prog" msgpack:"prog"`
	Interact SingleRun `json:"interact" msgpack:"interact"`
}

// RunMetaView is a RunMeta augmented with the test name it was reported
// under, the shape the response's "tests" array calls for.
type RunMetaView struct {
	sandbox.RunMeta
	Name string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// Result is the response shape for a single-program run.
type Result struct {
	Success bool             `json:"success" msgpack:"success"`
	Error   string           `json:"error,omitempty" msgpack:"error,omitempty"`
	Compile *sandbox.RunMeta `json:"compile,omitempty" msgpack:"compile,omitempty"`
	Tests   []RunMetaView    `json:"tests,omitempty" msgpack:"tests,omitempty"`
}

// FromPipelineResult converts a pipeline.Result into its wire shape on
// success.
func FromPipelineResult(r pipeline.Result) Result {
	out := Result{Success: true, Compile: r.Compile}
	if r.Tests != nil {
		out.Tests = make([]RunMetaView, len(r.Tests))
		for i, tr := range r.Tests {
			out.Tests[i] = RunMetaView{RunMeta: tr.Meta, Name: tr.Name}
		}
	}
	return out
}

// InteractiveResult is the response shape for an interactive run.
type InteractiveResult struct {
	Success  bool   `json:"success" msgpack:"success"`
	Error    string `json:"error,omitempty" msgpack:"error,omitempty"`
	Prog     Result `json:"prog" msgpack:"prog"`
	Interact Result `json:"interact" msgpack:"interact"`
}

// FromPipelineInteractiveResult converts a pipeline.InteractiveResult into
// its wire shape on success.
func FromPipelineInteractiveResult(r pipeline.InteractiveResult) InteractiveResult {
	return InteractiveResult{
		Success:  true,
		Prog:     FromPipelineResult(r.Prog),
		Interact: FromPipelineResult(r.Interact),
	}
}

// ErrorResult builds the host-level-failure response shape shared by both
// endpoints: {success: false, error: "..."}.
func ErrorResult(msg string) Result {
	return Result{Success: false, Error: msg}
}
