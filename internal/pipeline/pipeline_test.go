package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// fakeDriver is a hand-rolled stand-in for the real isolate-backed driver:
// it hands out a fresh temp directory per Acquire and simulates program
// behavior by pattern-matching the argv the pipeline built, rather than
// execing anything.
type fakeDriver struct {
	nextID int
	runFn  func(argv []string, stdin []byte) (int, sandbox.RunMeta, error)
}

func (f *fakeDriver) Acquire(ctx context.Context, limits sandbox.Limits) (*sandbox.Handle, error) {
	dir, err := os.MkdirTemp("", "pipeline-test-box-*")
	if err != nil {
		return nil, err
	}
	f.nextID++
	return &sandbox.Handle{ID: f.nextID, WorkDir: dir, Limits: limits}, nil
}

func (f *fakeDriver) Run(ctx context.Context, h *sandbox.Handle, argv []string, env []string, stdin []byte, extraDirs []string) (int, sandbox.RunMeta, error) {
	return f.runFn(argv, stdin)
}

func (f *fakeDriver) Release(ctx context.Context, h *sandbox.Handle) error {
	return os.RemoveAll(h.WorkDir)
}

func echoDescriptor() *lang.Descriptor {
	return &lang.Descriptor{Name: "shecho", SourceExt: ".sh", Interpreter: &lang.Program{Path: "sh"}}
}

func compiledDescriptor() *lang.Descriptor {
	return &lang.Descriptor{Name: "cxx", SourceExt: ".cc", Compiler: &lang.Program{Path: "g++"}}
}

func TestPipelineRunInterpretedCleanRun(t *testing.T) {
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			return 0, sandbox.RunMeta{Status: sandbox.StatusOK, Stdout: []byte("42\n")}, nil
		},
	}
	p := New(fd)
	inst := lang.NewInstance(echoDescriptor())

	result, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("echo 42"),
		Tests:  []TestSpec{{}},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Compile)
	require.Len(t, result.Tests, 1)
	assert.Equal(t, "test000", result.Tests[0].Name)
	assert.Equal(t, sandbox.StatusOK, result.Tests[0].Meta.Status)
	assert.Equal(t, []byte("42\n"), result.Tests[0].Meta.Stdout)
}

func TestPipelineRunCompileErrorSkipsTests(t *testing.T) {
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			return 1, sandbox.RunMeta{Status: sandbox.StatusRuntimeError, Stderr: []byte("syntax error")}, nil
		},
	}
	p := New(fd)
	inst := lang.NewInstance(compiledDescriptor())

	result, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("int main(){ return; }"),
		Tests:  []TestSpec{{}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Compile)
	assert.Equal(t, sandbox.StatusRuntimeError, result.Compile.Status)
	assert.Nil(t, result.Tests)
}

func TestPipelineRunMissingBinarySkipsTestsDespiteZeroRetcode(t *testing.T) {
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			// isolate exits 0 but the compiler produced no output file,
			// e.g. a compiler that silently no-ops on its input.
			return 0, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
		},
	}
	p := New(fd)
	inst := lang.NewInstance(compiledDescriptor())

	result, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("int main(){}"),
		Tests:  []TestSpec{{}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Compile)
	assert.Contains(t, string(result.Compile.Stderr), "Cannot find result binary")
	assert.Nil(t, result.Tests)
}

func TestPipelineRunTimeoutShortCircuitsRemainingTests(t *testing.T) {
	call := 0
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			call++
			if call == 1 {
				return 1, sandbox.RunMeta{Status: sandbox.StatusTimedOut}, nil
			}
			t.Fatal("second test should have been short-circuited")
			return 0, sandbox.RunMeta{}, nil
		},
	}
	p := New(fd)
	inst := lang.NewInstance(echoDescriptor())

	result, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("loop forever"),
		Tests:  []TestSpec{{}, {Name: "second"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Tests, 2)
	assert.Equal(t, sandbox.StatusTimedOut, result.Tests[0].Meta.Status)
	assert.Equal(t, sandbox.StatusShortCircuit, result.Tests[1].Meta.Status)
	assert.Equal(t, "second", result.Tests[1].Name)
}

func TestPipelineRunFatalTestBreaksLoop(t *testing.T) {
	call := 0
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			call++
			switch call {
			case 1:
				return 0, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
			case 2:
				return 1, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
			default:
				t.Fatal("third test should not run after a fatal failure")
				return 0, sandbox.RunMeta{}, nil
			}
		},
	}
	p := New(fd)
	inst := lang.NewInstance(echoDescriptor())

	result, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("whatever"),
		Tests: []TestSpec{
			{},
			{Name: "middle", Fatal: true},
			{Name: "last"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Tests, 2)
	assert.Equal(t, "test000", result.Tests[0].Name)
	assert.Equal(t, "middle", result.Tests[1].Name)
}

func TestPipelineRunRoundTripsInterpretedSourceAsArtifact(t *testing.T) {
	var gotArtifact []byte
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			last := argv[len(argv)-1]
			b, err := os.ReadFile(last)
			require.NoError(t, err)
			gotArtifact = b
			return 0, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
		},
	}
	p := New(fd)
	inst := lang.NewInstance(echoDescriptor())

	_, err := p.Run(context.Background(), inst, OptionBag{
		Source: []byte("print(42)"),
		Tests:  []TestSpec{{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "print(42)", string(gotArtifact))
}

func TestPipelineRunMetaLanguageChainsCompileStages(t *testing.T) {
	var compiledSources [][]byte
	fd := &fakeDriver{
		runFn: func(argv []string, stdin []byte) (int, sandbox.RunMeta, error) {
			if len(argv) == 1 {
				// execute stage: argv is just the final stage's artifact
				return 0, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
			}
			src := argv[len(argv)-1]
			b, err := os.ReadFile(src)
			require.NoError(t, err)
			compiledSources = append(compiledSources, b)

			out := argv[len(argv)-2]
			require.NoError(t, os.WriteFile(out, append(b, '!'), 0o755))
			return 0, sandbox.RunMeta{Status: sandbox.StatusOK}, nil
		},
	}
	p := New(fd)

	stage1 := &lang.Descriptor{Name: "stage1", SourceExt: ".s1", Compiler: &lang.Program{Path: "s1c"}}
	stage2 := &lang.Descriptor{Name: "stage2", SourceExt: ".s2", Compiler: &lang.Program{Path: "s2c"}}
	meta := lang.NewMetaDescriptor("chain", stage1, stage2)

	result, err := p.RunMetaLanguage(context.Background(), meta, OptionBag{
		Source: []byte("src"),
		Tests:  []TestSpec{{}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Compile)
	assert.Equal(t, sandbox.StatusOK, result.Compile.Status)
	require.Len(t, result.Tests, 1)
	assert.Equal(t, [][]byte{[]byte("src"), []byte("src!")}, compiledSources)
}

func TestExecuteCommandUsesAbsoluteOutPathLastArgvElement(t *testing.T) {
	i := lang.NewInstance(echoDescriptor())
	cmd := i.ExecuteCommand(filepath.Join("/tmp/box", "compiled.sh"))
	assert.Equal(t, "/tmp/box/compiled.sh", cmd[len(cmd)-1])
}
