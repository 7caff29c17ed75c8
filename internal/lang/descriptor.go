package lang

import (
	"strings"

	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// Descriptor is immutable metadata describing one supported language: how
// to recognize its source, how to compile it (if at all), how to run the
// resulting artifact, and what a reference source looks like for smoke
// testing.
type Descriptor struct {
	Name            string     `yaml:"name"`
	SourceExt       string     `yaml:"source_ext"`
	Compiler        *Program   `yaml:"compiler,omitempty"`
	Interpreter     *Program   `yaml:"interpreter,omitempty"`
	Extra           []*Program `yaml:"extra,omitempty"`
	AllowedDirs     []string   `yaml:"allowed_dirs,omitempty"`
	ReferenceSource string     `yaml:"reference_source,omitempty"`

	// CompileOptOut overrides the default "-o <output>" output-selector
	// syntax for compilers that spell it differently. Each token is
	// copied verbatim except for a literal "%s", which is replaced with
	// the artifact path.
	CompileOptOut []string `yaml:"compile_opt_out,omitempty"`
}

// Key is the descriptor's lowercase registry name.
func (d *Descriptor) Key() string {
	return strings.ToLower(d.Name)
}

func (d *Descriptor) requiredPrograms() []*Program {
	var out []*Program
	if d.Compiler != nil {
		out = append(out, d.Compiler)
	}
	if d.Interpreter != nil {
		out = append(out, d.Interpreter)
	}
	return out
}

// Eligible reports whether every program this descriptor requires resolves
// to an executable binary on the host.
func (d *Descriptor) Eligible() bool {
	for _, p := range d.requiredPrograms() {
		if !p.Executable() {
			return false
		}
	}
	return true
}

func (d *Descriptor) compileOptOut(output string) []string {
	tmpl := d.CompileOptOut
	if len(tmpl) == 0 {
		tmpl = []string{"-o", "%s"}
	}
	out := make([]string, len(tmpl))
	for i, t := range tmpl {
		out[i] = strings.ReplaceAll(t, "%s", output)
	}
	return out
}

// Instance binds a Descriptor to one request. It is created per request
// and discarded at response emission; it carries no state of its own
// beyond the descriptor reference, since every operation below is a pure
// function of (descriptor, paths).
type Instance struct {
	*Descriptor
}

// NewInstance wraps d for one request.
func NewInstance(d *Descriptor) *Instance {
	return &Instance{Descriptor: d}
}

// SourceFilename is "source" + the descriptor's source extension.
func (i *Instance) SourceFilename() string {
	return "source" + i.SourceExt
}

// ArtifactFilename is "compiled" when a compiler is declared (the name
// handed to the compiler's output selector), or "compiled" + source extension for
// interpreted languages, which round-trip the source bytes unchanged.
func (i *Instance) ArtifactFilename() string {
	if i.Compiler != nil {
		return "compiled"
	}
	return "compiled" + i.SourceExt
}

// CompileCommand builds the compiler invocation for src -> out, with host
// box-prefix scrubbing applied to both paths. Returns nil if the
// descriptor declares no compiler.
func (i *Instance) CompileCommand(src, out string) []string {
	if i.Compiler == nil {
		return nil
	}
	cmd := i.Compiler.Argv()
	cmd = append(cmd, i.compileOptOut(sandbox.ScrubBoxPrefix(out))...)
	cmd = append(cmd, sandbox.ScrubBoxPrefix(src))
	return cmd
}

// ExecuteCommand builds the execution invocation for the compiled or
// round-tripped artifact at out, prefixing the interpreter's argv when the
// descriptor declares one.
func (i *Instance) ExecuteCommand(out string) []string {
	var cmd []string
	if i.Interpreter != nil {
		cmd = append(cmd, i.Interpreter.Argv()...)
	}
	return append(cmd, sandbox.ScrubBoxPrefix(out))
}
