package pipeline

import (
	"fmt"

	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// TestSpec is one test invocation within an Option Bag: per-test overrides
// layered over the request's default execute limits.
type TestSpec struct {
	Name   string
	Stdin  []byte
	Fatal  bool
	Limits sandbox.Limits
}

// OptionBag is the structured configuration a Language Instance binds to
// one request.
type OptionBag struct {
	Source   []byte
	Compile  sandbox.Limits
	Execute  sandbox.Limits
	Tests    []TestSpec
	AllFatal bool
}

// TestResult is one test's Run Metadata, tagged with the name it was
// reported under.
type TestResult struct {
	Name string
	Meta sandbox.RunMeta
}

// Result is the outcome of a single-program run: an optional compile
// record (absent when the descriptor has no compiler) and an ordered list
// of per-test records.
type Result struct {
	Compile *sandbox.RunMeta
	Tests   []TestResult
}

// InteractiveResult pairs a Result for the solution with one for the
// interactor.
type InteractiveResult struct {
	Prog     Result
	Interact Result
}

// NormalizeTests fills in the "tests defaults to a single empty spec" rule
// and resolves each test's display name.
func NormalizeTests(tests []TestSpec) []TestSpec {
	if len(tests) == 0 {
		tests = []TestSpec{{}}
	}
	out := make([]TestSpec, len(tests))
	for i, t := range tests {
		if t.Name == "" {
			t.Name = testName(i)
		}
		out[i] = t
	}
	return out
}

func testName(i int) string {
	return fmt.Sprintf("test%03d", i)
}
