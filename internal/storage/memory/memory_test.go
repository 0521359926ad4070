package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

func put(t *testing.T, s *Store, key, body string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), "text/plain"))
}

func TestPutGetHead(t *testing.T) {
	ctx := context.Background()
	s := New()
	put(t, s, "docs/a.txt", "hello")

	obj, err := s.Get(ctx, "docs/a.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), obj.Info.Size)

	info, err := s.Head(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", info.ContentType)

	_, err = s.Get(ctx, "docs/missing.txt")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = s.Head(ctx, "docs/missing.txt")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	put(t, s, "a.txt", "x")
	require.NoError(t, s.Delete(context.Background(), "a.txt"))
	require.NoError(t, s.Delete(context.Background(), "a.txt"))
	assert.False(t, s.Has("a.txt"))
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	put(t, s, "a.txt", "x")

	require.NoError(t, s.Copy(ctx, "a.txt", "b/a.txt"))
	assert.True(t, s.Has("a.txt"))
	assert.True(t, s.Has("b/a.txt"))

	err := s.Copy(ctx, "nope.txt", "c.txt")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListWithAndWithoutDelimiter(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"a/", "a/x.txt", "a/b/", "a/b/y.txt", "c.txt"} {
		put(t, s, k, "")
	}

	flat, err := s.List(ctx, "a/", "")
	require.NoError(t, err)
	var keys []string
	for _, o := range flat.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"a/", "a/b/", "a/b/y.txt", "a/x.txt"}, keys)
	assert.Empty(t, flat.CommonPrefixes)

	grouped, err := s.List(ctx, "a/", "/")
	require.NoError(t, err)
	keys = keys[:0]
	for _, o := range grouped.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"a/", "a/x.txt"}, keys)
	assert.Equal(t, []string{"a/b/"}, grouped.CommonPrefixes)
	assert.True(t, grouped.Objects[0].IsFolderMarker)
}
