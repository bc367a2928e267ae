// Package records implements gateway.RecordStore, in memory and on SQLite.
package records

import (
	"context"
	"slices"
	"sync"

	"github.com/satmihir/photocache/internal/gateway"
)

// MemoryStore keeps records in a map and counts writes per photo, so tests
// can check how many remote writes a lifecycle produced.
type MemoryStore struct {
	mu     sync.Mutex
	stamps map[string][]gateway.PhotoRecord
	writes map[string]int
}

var _ gateway.RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stamps: make(map[string][]gateway.PhotoRecord),
		writes: make(map[string]int),
	}
}

func (s *MemoryStore) ListPhotos(ctx context.Context, stampID string) ([]gateway.PhotoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stamps[stampID]), nil
}

func (s *MemoryStore) CommitPhoto(ctx context.Context, stampID string, rec gateway.PhotoRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes[writeKey(stampID, rec.LocalFilename)]++

	recs := s.stamps[stampID]
	if i := indexOf(recs, rec.LocalFilename); i >= 0 {
		recs[i] = rec
		return nil
	}
	recs = append(recs, rec)
	slices.SortStableFunc(recs, func(a, b gateway.PhotoRecord) int {
		return a.Position - b.Position
	})
	s.stamps[stampID] = recs
	return nil
}

func (s *MemoryStore) DeletePhoto(ctx context.Context, stampID, localFilename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.stamps[stampID]
	if i := indexOf(recs, localFilename); i >= 0 {
		s.stamps[stampID] = slices.Delete(recs, i, i+1)
	}
	return nil
}

// Writes returns how many CommitPhoto calls targeted the photo.
func (s *MemoryStore) Writes(stampID, localFilename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[writeKey(stampID, localFilename)]
}

func writeKey(stampID, localFilename string) string {
	return stampID + "/" + localFilename
}

func indexOf(recs []gateway.PhotoRecord, localFilename string) int {
	return slices.IndexFunc(recs, func(r gateway.PhotoRecord) bool {
		return r.LocalFilename == localFilename
	})
}
