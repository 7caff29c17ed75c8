// Package pipeline implements the language-agnostic compile/execute state
// machine (the execution pipeline and its interactive variant) on top of
// the sandbox driver and the language registry.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// Pipeline drives one Language Instance through compile and per-test
// execute stages against a sandbox driver.
type Pipeline struct {
	driver sandbox.Driver
}

// New builds a Pipeline over driver.
func New(driver sandbox.Driver) *Pipeline {
	return &Pipeline{driver: driver}
}

// Run executes the full compile -> per-test state machine for inst against
// opts, returning a Result even when the compile stage fails (compile
// failure is not transport-level error, just a non-zero compile retcode).
// Err is non-nil only for host-level failures (pool exhaustion, isolation
// tool missing, meta file unparseable) that abort the whole request.
func (p *Pipeline) Run(ctx context.Context, inst *lang.Instance, opts OptionBag) (Result, error) {
	var result Result

	artifact := opts.Source
	if inst.Compiler != nil {
		compiled, meta, retcode, err := p.compile(ctx, inst, opts.Source, opts.Compile)
		result.Compile = &meta
		if err != nil {
			return result, err
		}
		if retcode != 0 || compiled == nil {
			return result, nil
		}
		artifact = compiled
	}

	tests, err := p.executeLoop(ctx, inst, artifact, opts)
	result.Tests = tests
	return result, err
}

// RunMetaLanguage is the C5 entry point for a chained descriptor: it
// compiles every stage in sequence through the same sandbox driver, then
// runs the execute loop against the final stage's artifact using the final
// stage's own execute semantics (interpreted or compiled).
func (p *Pipeline) RunMetaLanguage(ctx context.Context, meta *lang.MetaDescriptor, opts OptionBag) (Result, error) {
	var result Result

	artifact, runMeta, retcode, err := meta.Compile(ctx, opts.Source, p.runStage)
	result.Compile = &runMeta
	if err != nil {
		return result, err
	}
	if retcode != 0 || artifact == nil {
		return result, nil
	}

	final := lang.NewInstance(meta.Chain[len(meta.Chain)-1])
	tests, err := p.executeLoop(ctx, final, artifact, opts)
	result.Tests = tests
	return result, err
}

func (p *Pipeline) runStage(ctx context.Context, stage *lang.Descriptor, source []byte) ([]byte, sandbox.RunMeta, int, error) {
	inst := lang.NewInstance(stage)
	if inst.Compiler == nil {
		return source, sandbox.RunMeta{Status: sandbox.StatusOK}, 0, nil
	}
	return p.compile(ctx, inst, source, sandbox.Limits{})
}

func (p *Pipeline) executeLoop(ctx context.Context, inst *lang.Instance, artifact []byte, opts OptionBag) ([]TestResult, error) {
	var tests []TestResult
	shorted := false
	for _, t := range NormalizeTests(opts.Tests) {
		if shorted {
			tests = append(tests, TestResult{Name: t.Name, Meta: sandbox.ShortCircuitMeta()})
			continue
		}

		limits := sandbox.DefaultLimits().Merge(opts.Execute).Merge(t.Limits)
		retcode, meta, err := p.execute(ctx, inst, artifact, t.Stdin, limits)
		if err != nil {
			return tests, err
		}
		tests = append(tests, TestResult{Name: t.Name, Meta: meta})

		if meta.Status == sandbox.StatusTimedOut || meta.Status == sandbox.StatusRuntimeError {
			shorted = true
		}
		if retcode != 0 && (t.Fatal || opts.AllFatal) {
			break
		}
	}
	return tests, nil
}

func (p *Pipeline) compile(ctx context.Context, inst *lang.Instance, source []byte, limitOverrides sandbox.Limits) ([]byte, sandbox.RunMeta, int, error) {
	limits := sandbox.DefaultLimits().Merge(limitOverrides)

	h, err := p.driver.Acquire(ctx, limits)
	if err != nil {
		return nil, sandbox.RunMeta{}, 0, fmt.Errorf("pipeline: acquiring compile sandbox: %w", err)
	}
	defer p.driver.Release(ctx, h)

	srcPath := filepath.Join(h.WorkDir, inst.SourceFilename())
	if err := os.WriteFile(srcPath, source, 0o644); err != nil {
		return nil, sandbox.RunMeta{}, 0, fmt.Errorf("pipeline: writing source: %w", err)
	}
	outPath := filepath.Join(h.WorkDir, "compiled")
	argv := inst.CompileCommand(srcPath, outPath)

	retcode, meta, err := p.driver.Run(ctx, h, argv, inst.Compiler.Env, nil, inst.AllowedDirs)
	if err != nil {
		return nil, meta, retcode, fmt.Errorf("pipeline: running compiler: %w", err)
	}
	if retcode != 0 {
		return nil, meta, retcode, nil
	}

	compiled, err := os.ReadFile(outPath)
	if err != nil {
		meta.Stderr = append(meta.Stderr, []byte("\nCannot find result binary")...)
		return nil, meta, retcode, nil
	}
	return compiled, meta, retcode, nil
}

func (p *Pipeline) execute(ctx context.Context, inst *lang.Instance, artifact []byte, stdin []byte, limits sandbox.Limits) (int, sandbox.RunMeta, error) {
	h, err := p.driver.Acquire(ctx, limits)
	if err != nil {
		return 0, sandbox.RunMeta{}, fmt.Errorf("pipeline: acquiring execute sandbox: %w", err)
	}
	defer p.driver.Release(ctx, h)

	outPath := filepath.Join(h.WorkDir, inst.ArtifactFilename())
	if err := os.WriteFile(outPath, artifact, 0o755); err != nil {
		return 0, sandbox.RunMeta{}, fmt.Errorf("pipeline: writing artifact: %w", err)
	}
	argv := inst.ExecuteCommand(outPath)

	var env []string
	if inst.Interpreter != nil {
		env = inst.Interpreter.Env
	}

	retcode, meta, err := p.driver.Run(ctx, h, argv, env, stdin, inst.AllowedDirs)
	if err != nil {
		return 0, meta, fmt.Errorf("pipeline: running artifact: %w", err)
	}
	return retcode, meta, nil
}
