package records

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satmihir/photocache/internal/gateway"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// storeContract runs the same behaviour checks against every implementation.
func storeContract(t *testing.T, s gateway.RecordStore) {
	ctx := context.Background()

	second := gateway.PhotoRecord{LocalFilename: "b.jpg", Position: 1}.Committed("stamps/s1/B.jpg")
	first := gateway.PhotoRecord{LocalFilename: "a.jpg", Position: 0}.Committed("stamps/s1/A.jpg")

	// Commit out of capture order; listing follows position.
	require.NoError(t, s.CommitPhoto(ctx, "s1", second))
	require.NoError(t, s.CommitPhoto(ctx, "s1", first))
	require.NoError(t, s.CommitPhoto(ctx, "s2", gateway.PhotoRecord{LocalFilename: "c.jpg"}.Committed("x/C.jpg")))

	recs, err := s.ListPhotos(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []gateway.PhotoRecord{first, second}, recs)

	// Upsert keeps one row per photo.
	moved := first.Committed("stamps/s1/A2.jpg")
	require.NoError(t, s.CommitPhoto(ctx, "s1", moved))
	recs, err = s.ListPhotos(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "stamps/s1/A2.jpg", recs[0].RemoteStoragePath)
	assert.Equal(t, gateway.Committed, recs[0].UploadState)

	require.NoError(t, s.DeletePhoto(ctx, "s1", "a.jpg"))
	require.NoError(t, s.DeletePhoto(ctx, "s1", "missing.jpg"))
	recs, err = s.ListPhotos(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []gateway.PhotoRecord{second}, recs)

	recs, err = s.ListPhotos(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContract(t, newSQLiteStore(t))
}

func TestMemoryStore_CountsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CommitPhoto(ctx, "s1", gateway.PhotoRecord{LocalFilename: "a.jpg"}.Committed("p")))
	assert.Equal(t, 1, s.Writes("s1", "a.jpg"))
	assert.Zero(t, s.Writes("s1", "b.jpg"))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, dsn, nil)
	require.NoError(t, err)
	require.NoError(t, first.CommitPhoto(ctx, "s1", gateway.PhotoRecord{LocalFilename: "a.jpg"}.Committed("p/a.jpg")))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, dsn, nil)
	require.NoError(t, err)
	defer second.Close()

	recs, err := second.ListPhotos(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p/a.jpg", recs[0].RemoteStoragePath)
}
