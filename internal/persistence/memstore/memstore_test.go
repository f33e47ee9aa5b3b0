package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/persistence"
)

func TestMemstore_PutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemstore_GetReturnsDefensiveCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("original")))

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'X'

	v2, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), v2, "mutating a returned value must not affect stored state")
}

func TestMemstore_TxAppliesAllOpsAtomically(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "stale", []byte("x")))

	err := s.Tx(ctx, []persistence.Op{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "stale", Delete: true},
	})
	require.NoError(t, err)

	_, ok, _ := s.Get(ctx, "stale")
	assert.False(t, ok)

	v, ok, _ := s.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}
