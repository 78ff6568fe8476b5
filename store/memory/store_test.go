package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	_, ok, err := s.GetInt64(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Commit(ctx, map[string]int64{"a": -1, "b": 2}))

	v, ok, err := s.GetInt64(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok, "stored -1 must be distinct from absent")
	assert.Equal(t, int64(-1), v)

	require.NoError(t, s.Commit(ctx, map[string]int64{"b": 3}))
	v, _, err = s.GetInt64(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, 2, s.Len())
}

func TestStoreCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	require.ErrorIs(t, s.Commit(ctx, map[string]int64{"a": 1}), context.Canceled)
	assert.Equal(t, 0, s.Len())

	_, _, err := s.GetInt64(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
}
