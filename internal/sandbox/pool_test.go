package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxPoolAcquireReleaseNeverDoubleAssigns(t *testing.T) {
	pool := NewBoxPool(2)
	ctx := context.Background()

	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrBoxExhausted)

	pool.Release(a)
	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestBoxPoolInUse(t *testing.T) {
	pool := NewBoxPool(3)
	assert.Equal(t, 0, pool.InUse())
	id, _ := pool.Acquire(context.Background())
	assert.Equal(t, 1, pool.InUse())
	pool.Release(id)
	assert.Equal(t, 0, pool.InUse())
}
