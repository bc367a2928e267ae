package diskstore

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newMemStore() *Store {
	return New(memfs.New(), quietLogger())
}

func TestStore_WriteRead(t *testing.T) {
	s := newMemStore()

	require.NoError(t, s.Write("a.jpg", []byte("bytes")))

	got, err := s.Read("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), got)
	assert.True(t, s.Exists("a.jpg"))
}

func TestStore_ReadMissing(t *testing.T) {
	s := newMemStore()

	_, err := s.Read("missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Exists("missing.jpg"))
}

func TestStore_OverwriteReplacesContent(t *testing.T) {
	s := newMemStore()
	require.NoError(t, s.Write("a.jpg", []byte("first version")))
	require.NoError(t, s.Write("a.jpg", []byte("v2")))

	got, err := s.Read("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStore_DeleteMissingIsSuccess(t *testing.T) {
	s := newMemStore()
	require.NoError(t, s.Write("a.jpg", []byte("x")))

	require.NoError(t, s.Delete("a.jpg"))
	require.NoError(t, s.Delete("a.jpg"))
	assert.False(t, s.Exists("a.jpg"))
}

func TestStore_RejectsPathNames(t *testing.T) {
	s := newMemStore()

	for _, name := range []string{"", "..", "../etc/passwd", "dir/file.jpg", ".tmp"} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			assert.ErrorIs(t, s.Write(name, []byte("x")), ErrInvalidName)
			_, err := s.Read(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestStore_SizeAndPurge(t *testing.T) {
	s := newMemStore()
	require.NoError(t, s.Write("a.jpg", []byte("12345")))
	require.NoError(t, s.Write("b.jpg", []byte("123")))

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)

	require.NoError(t, s.Purge())
	assert.False(t, s.Exists("a.jpg"))
	size, err = s.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, first.Write("photo.jpg", []byte("durable")))

	// A new process opens the same directory.
	second, err := Open(dir, quietLogger())
	require.NoError(t, err)
	got, err := second.Read("photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := newMemStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Write(fmt.Sprintf("f%d.jpg", i%4), []byte{byte(i)}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		got, err := s.Read(fmt.Sprintf("f%d.jpg", i))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
}
