// Package gateway defines the remote collaborators of the image core: a blob
// service for image bytes and a record store for the stamp entries that embed
// photo records. Both are asynchronous, fallible and eventually consistent.
package gateway

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound    = errors.New("remote object not found")
	ErrInvalidPath = errors.New("invalid storage path")
)

// AssetGateway uploads, downloads and deletes image blobs. Successful results
// are delivered at least once; concurrent calls are unordered.
type AssetGateway interface {
	// Upload stores data and returns the storage path it was assigned.
	// destinationHint is a path prefix such as "stamps/<id>".
	Upload(ctx context.Context, data []byte, destinationHint string) (string, error)
	// Download returns the blob at storagePath, or ErrNotFound.
	Download(ctx context.Context, storagePath string) ([]byte, error)
	// Delete removes the blob. Callers treat failures as best-effort.
	Delete(ctx context.Context, storagePath string) error
}

// RecordStore persists the photo records of stamp-collection entries.
type RecordStore interface {
	// ListPhotos returns the stamp's records in insertion order.
	ListPhotos(ctx context.Context, stampID string) ([]PhotoRecord, error)
	// CommitPhoto writes a committed record, state and storage path together,
	// in a single write.
	CommitPhoto(ctx context.Context, stampID string, rec PhotoRecord) error
	// DeletePhoto removes the record. A missing record is not an error.
	DeletePhoto(ctx context.Context, stampID, localFilename string) error
}

// NewStoragePath assigns a fresh storage path under hint.
func NewStoragePath(hint, ext string) (string, error) {
	hint = strings.Trim(path.Clean("/"+hint), "/")
	if strings.Contains(hint, "..") {
		return "", ErrInvalidPath
	}
	if ext == "" {
		ext = ".jpg"
	}
	name := ulid.Make().String() + ext
	if hint == "" {
		return name, nil
	}
	return hint + "/" + name, nil
}

// ValidatePath rejects empty paths and paths that escape their root.
func ValidatePath(storagePath string) error {
	if storagePath == "" || strings.HasPrefix(storagePath, "/") {
		return ErrInvalidPath
	}
	for _, part := range strings.Split(storagePath, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}
