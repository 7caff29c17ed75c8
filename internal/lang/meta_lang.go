package lang

import (
	"context"
	"fmt"

	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

// StageRunner compiles one chain stage's source into its artifact,
// returning the same triple an ordinary compile stage would. It is
// supplied by the caller (the execution pipeline) because it's the
// pipeline, not this package, that owns the sandbox driver.
type StageRunner func(ctx context.Context, stage *Descriptor, source []byte) (artifact []byte, meta sandbox.RunMeta, retcode int, err error)

// MetaDescriptor chains an ordered sequence of Descriptors so each stage's
// compiled artifact becomes the next stage's source. It does not satisfy
// the ordinary single-compiler contract and must never be registered as a
// Descriptor's Compiler.
type MetaDescriptor struct {
	Name  string
	Chain []*Descriptor
}

// NewMetaDescriptor builds a chain descriptor over the given stages, in
// compile order.
func NewMetaDescriptor(name string, chain ...*Descriptor) *MetaDescriptor {
	return &MetaDescriptor{Name: name, Chain: chain}
}

// Compile runs each stage of the chain through runStage in order, aborting
// on the first stage that errors or returns a non-zero retcode and
// surfacing that stage's metadata as the chain's own result.
func (m *MetaDescriptor) Compile(ctx context.Context, source []byte, runStage StageRunner) (artifact []byte, meta sandbox.RunMeta, retcode int, err error) {
	if len(m.Chain) == 0 {
		return nil, sandbox.RunMeta{}, 0, fmt.Errorf("lang: meta descriptor %q has no chain stages", m.Name)
	}
	cur := source
	for _, stage := range m.Chain {
		artifact, meta, retcode, err = runStage(ctx, stage, cur)
		if err != nil || retcode != 0 || artifact == nil {
			return artifact, meta, retcode, err
		}
		cur = artifact
	}
	return cur, meta, retcode, nil
}
