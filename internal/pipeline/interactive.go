package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akshayaggarwal99/judge/internal/coupler"
	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// InteractivePipeline is the C7 orchestrator: it compiles a solution and an
// interactor independently, then runs each test through the Coupler,
// collecting paired results.
type InteractivePipeline struct {
	pipeline *Pipeline
	coupler  *coupler.Coupler
}

// NewInteractive builds an InteractivePipeline sharing one sandbox driver
// for both compile stages and one Coupler for the paired test runs.
func NewInteractive(driver sandbox.Driver, c *coupler.Coupler) *InteractivePipeline {
	return &InteractivePipeline{pipeline: New(driver), coupler: c}
}

// Run compiles prog and interact independently; if either fails to
// produce a binary, every test is skipped. The interactor's test list is
// authoritative: its length defines how many paired tests run, and the
// interactor's own stdin overrides carry the seed data written into its
// working directory as input.txt.
func (ip *InteractivePipeline) Run(ctx context.Context, progInst, interInst *lang.Instance, progOpts, interOpts OptionBag) (InteractiveResult, error) {
	var out InteractiveResult

	progArtifact, progMeta, progOK, err := ip.compileStage(ctx, progInst, progOpts)
	if err != nil {
		return out, err
	}
	out.Prog.Compile = progMeta

	interArtifact, interMeta, interOK, err := ip.compileStage(ctx, interInst, interOpts)
	if err != nil {
		return out, err
	}
	out.Interact.Compile = interMeta

	if !progOK || !interOK {
		return out, nil
	}

	tests := NormalizeTests(interOpts.Tests)
	shorted := false
	for _, t := range tests {
		if shorted {
			out.Prog.Tests = append(out.Prog.Tests, TestResult{Name: t.Name, Meta: sandbox.ShortCircuitMeta()})
			out.Interact.Tests = append(out.Interact.Tests, TestResult{Name: t.Name, Meta: sandbox.ShortCircuitMeta()})
			continue
		}

		progMeta, interMeta, err := ip.runTest(ctx, progInst, interInst, progArtifact, interArtifact, progOpts, interOpts, t)
		if err != nil {
			return out, err
		}
		out.Prog.Tests = append(out.Prog.Tests, TestResult{Name: t.Name, Meta: progMeta})
		out.Interact.Tests = append(out.Interact.Tests, TestResult{Name: t.Name, Meta: interMeta})

		// Only prog's own failure modes short-circuit remaining tests;
		// an interactor crash does not, as specified.
		if progMeta.Status == sandbox.StatusTimedOut || progMeta.Status == sandbox.StatusRuntimeError {
			shorted = true
		}

		progFatal := t.Fatal || progOpts.AllFatal
		interFatal := t.Fatal || interOpts.AllFatal
		if progFatal && progMeta.ExitCode != 0 {
			break
		}
		if interFatal && interMeta.ExitCode != 0 {
			break
		}
	}

	return out, nil
}

// compileStage returns the compiled (or round-tripped) artifact, the
// compile metadata (nil when the descriptor has no compiler), and whether
// a binary was produced.
func (ip *InteractivePipeline) compileStage(ctx context.Context, inst *lang.Instance, opts OptionBag) ([]byte, *sandbox.RunMeta, bool, error) {
	if inst.Compiler == nil {
		return opts.Source, nil, true, nil
	}
	artifact, meta, retcode, err := ip.pipeline.compile(ctx, inst, opts.Source, opts.Compile)
	if err != nil {
		return nil, &meta, false, err
	}
	return artifact, &meta, retcode == 0 && artifact != nil, nil
}

func (ip *InteractivePipeline) runTest(ctx context.Context, progInst, interInst *lang.Instance, progArtifact, interArtifact []byte, progOpts, interOpts OptionBag, t TestSpec) (sandbox.RunMeta, sandbox.RunMeta, error) {
	progLimits := sandbox.DefaultLimits().Merge(progOpts.Execute).Merge(t.Limits)
	interLimits := sandbox.DefaultLimits().Merge(interOpts.Execute).Merge(t.Limits)

	progHandle, err := ip.pipeline.driver.Acquire(ctx, progLimits)
	if err != nil {
		return sandbox.RunMeta{}, sandbox.RunMeta{}, fmt.Errorf("pipeline: acquiring prog sandbox: %w", err)
	}
	defer ip.pipeline.driver.Release(ctx, progHandle)

	interHandle, err := ip.pipeline.driver.Acquire(ctx, interLimits)
	if err != nil {
		return sandbox.RunMeta{}, sandbox.RunMeta{}, fmt.Errorf("pipeline: acquiring interactor sandbox: %w", err)
	}
	defer ip.pipeline.driver.Release(ctx, interHandle)

	progOut := filepath.Join(progHandle.WorkDir, progInst.ArtifactFilename())
	if err := os.WriteFile(progOut, progArtifact, 0o755); err != nil {
		return sandbox.RunMeta{}, sandbox.RunMeta{}, fmt.Errorf("pipeline: writing prog artifact: %w", err)
	}
	interOut := filepath.Join(interHandle.WorkDir, interInst.ArtifactFilename())
	if err := os.WriteFile(interOut, interArtifact, 0o755); err != nil {
		return sandbox.RunMeta{}, sandbox.RunMeta{}, fmt.Errorf("pipeline: writing interactor artifact: %w", err)
	}

	var progEnv, interEnv []string
	if progInst.Interpreter != nil {
		progEnv = progInst.Interpreter.Env
	}
	if interInst.Interpreter != nil {
		interEnv = interInst.Interpreter.Env
	}

	progSide := coupler.NewSide(progInst.ExecuteCommand(progOut), progEnv, progInst.AllowedDirs)
	interSide := coupler.NewSide(interInst.ExecuteCommand(interOut), interEnv, interInst.AllowedDirs)

	pair, err := ip.coupler.Run(ctx, progHandle, interHandle, progSide, interSide, t.Stdin, "input.txt")
	if err != nil {
		return sandbox.RunMeta{}, sandbox.RunMeta{}, fmt.Errorf("pipeline: coupling prog and interactor: %w", err)
	}
	return pair.Solution, pair.Interactor, nil
}
