// Package memory is an in-process AssetGateway. It backs the "memory" remote
// backend and lets tests count calls and inject failures or delays.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/satmihir/photocache/internal/gateway"
)

// UploadHook runs at the start of every Upload. A non-nil error fails the
// upload; blocking in the hook delays it.
type UploadHook func(ctx context.Context, destinationHint string) error

// AssetGateway keeps blobs in a map.
type AssetGateway struct {
	mu    sync.Mutex
	blobs map[string][]byte

	uploadErr   error
	downloadErr error
	deleteErr   error
	uploadHook  UploadHook

	uploads   atomic.Int64
	downloads atomic.Int64
	deletes   atomic.Int64
}

var _ gateway.AssetGateway = (*AssetGateway)(nil)

func NewAssetGateway() *AssetGateway {
	return &AssetGateway{blobs: make(map[string][]byte)}
}

func (g *AssetGateway) Upload(ctx context.Context, data []byte, destinationHint string) (string, error) {
	g.uploads.Add(1)

	g.mu.Lock()
	hook, injected := g.uploadHook, g.uploadErr
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, destinationHint); err != nil {
			return "", err
		}
	}
	if injected != nil {
		return "", injected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	storagePath, err := gateway.NewStoragePath(destinationHint, "")
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.blobs[storagePath] = append([]byte(nil), data...)
	g.mu.Unlock()
	return storagePath, nil
}

func (g *AssetGateway) Download(ctx context.Context, storagePath string) ([]byte, error) {
	g.downloads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.downloadErr != nil {
		return nil, g.downloadErr
	}
	data, ok := g.blobs[storagePath]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (g *AssetGateway) Delete(ctx context.Context, storagePath string) error {
	g.deletes.Add(1)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	delete(g.blobs, storagePath)
	return nil
}

// Put seeds a blob directly, bypassing the call counters.
func (g *AssetGateway) Put(storagePath string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blobs[storagePath] = append([]byte(nil), data...)
}

// Has reports whether a blob exists at storagePath.
func (g *AssetGateway) Has(storagePath string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blobs[storagePath]
	return ok
}

// Len returns the number of stored blobs.
func (g *AssetGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.blobs)
}

func (g *AssetGateway) SetUploadError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadErr = err
}

func (g *AssetGateway) SetDownloadError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downloadErr = err
}

func (g *AssetGateway) SetDeleteError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteErr = err
}

func (g *AssetGateway) SetUploadHook(hook UploadHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadHook = hook
}

func (g *AssetGateway) Uploads() int64   { return g.uploads.Load() }
func (g *AssetGateway) Downloads() int64 { return g.downloads.Load() }
func (g *AssetGateway) Deletes() int64   { return g.deletes.Load() }
