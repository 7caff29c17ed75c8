package lang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

func TestMetaDescriptorCompileChainsStages(t *testing.T) {
	stage1 := &Descriptor{Name: "stage1"}
	stage2 := &Descriptor{Name: "stage2"}
	m := NewMetaDescriptor("chained", stage1, stage2)

	var seen []string
	runner := func(ctx context.Context, stage *Descriptor, source []byte) ([]byte, sandbox.RunMeta, int, error) {
		seen = append(seen, stage.Name+":"+string(source))
		return append(source, '!'), sandbox.RunMeta{Status: sandbox.StatusOK}, 0, nil
	}

	artifact, meta, retcode, err := m.Compile(context.Background(), []byte("src"), runner)
	require.NoError(t, err)
	assert.Equal(t, 0, retcode)
	assert.Equal(t, sandbox.StatusOK, meta.Status)
	assert.Equal(t, "src!!", string(artifact))
	assert.Equal(t, []string{"stage1:src", "stage2:src!"}, seen)
}

func TestMetaDescriptorCompileAbortsOnFailingStage(t *testing.T) {
	stage1 := &Descriptor{Name: "stage1"}
	stage2 := &Descriptor{Name: "stage2"}
	m := NewMetaDescriptor("chained", stage1, stage2)

	calls := 0
	runner := func(ctx context.Context, stage *Descriptor, source []byte) ([]byte, sandbox.RunMeta, int, error) {
		calls++
		if stage.Name == "stage1" {
			return nil, sandbox.RunMeta{Status: sandbox.StatusRuntimeError}, 1, nil
		}
		t.Fatal("stage2 should not run after stage1 fails")
		return nil, sandbox.RunMeta{}, 0, nil
	}

	_, meta, retcode, err := m.Compile(context.Background(), []byte("src"), runner)
	require.NoError(t, err)
	assert.Equal(t, 1, retcode)
	assert.Equal(t, sandbox.StatusRuntimeError, meta.Status)
	assert.Equal(t, 1, calls)
}

func TestMetaDescriptorCompileRejectsEmptyChain(t *testing.T) {
	m := NewMetaDescriptor("empty")
	_, _, _, err := m.Compile(context.Background(), nil, nil)
	assert.Error(t, err)
}
