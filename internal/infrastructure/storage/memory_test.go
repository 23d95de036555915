package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	data := []byte("payload")
	require.NoError(t, s.Put(ctx, "b/1", data, ""))
	require.NoError(t, s.Put(ctx, "a/2", []byte("x"), ""))
	require.NoError(t, s.Put(ctx, "a/1", []byte("y"), ""))
	data[0] = 'P'

	assert.Equal(t, "payload", readObject(t, s, "b/1"), "Put stores a copy")

	objects, err := s.List(ctx, "a/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a/1", objects[0].Key)
	assert.Equal(t, "a/2", objects[1].Key)

	require.NoError(t, s.Delete(ctx, "a/1", "zzz"))
	assert.Equal(t, []string{"a/2", "b/1"}, s.Keys())

	_, err = s.Open(ctx, "a/1")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Error(t, s.Put(ctx, "", nil, ""))
}

func TestMemoryStorage_FailPut(t *testing.T) {
	s := NewMemoryStorage()
	boom := errors.New("boom")
	s.FailPut = func(key string) error {
		if strings.Contains(key, "part=3") {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "out/part=1/x", nil, ""))
	assert.ErrorIs(t, s.Put(ctx, "out/part=3/x", nil, ""), boom)

	_, ok := s.Get("out/part=3/x")
	assert.False(t, ok)
}
