// Package images resolves image bytes through memory, disk and remote tiers
// and runs the local-save and upload stages of the photo pipeline.
package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/constants"
	"github.com/satmihir/photocache/internal/diskstore"
	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/imagecache"
	"github.com/satmihir/photocache/internal/imaging"
	"github.com/satmihir/photocache/internal/inflight"
)

// Disk is the persistent tier. *diskstore.Store implements it.
type Disk interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Delete(name string) error
}

// Config tunes compression and upload bookkeeping.
type Config struct {
	MaxDimension       int
	Quality            int
	ThumbnailDimension int
	ThumbnailQuality   int
	// UploadTTL bounds how long an upload counts as in flight.
	UploadTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDimension:       constants.MaxDimension,
		Quality:            constants.JPEGQuality,
		ThumbnailDimension: constants.ThumbnailDimension,
		ThumbnailQuality:   constants.ThumbnailQuality,
		UploadTTL:          inflight.DefaultTTL,
	}
}

// Manager is the image manager. One instance per process, shared by every
// collection; all state it touches synchronises internally.
type Manager struct {
	cfg      Config
	memory   *imagecache.Manager
	disk     Disk
	remote   gateway.AssetGateway
	inflight *inflight.Registry
	log      logrus.FieldLogger
}

// New wires a Manager over its three tiers.
func New(cfg Config, memory *imagecache.Manager, disk Disk, remote gateway.AssetGateway, log logrus.FieldLogger) *Manager {
	def := DefaultConfig()
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.Quality <= 0 {
		cfg.Quality = def.Quality
	}
	if cfg.ThumbnailDimension <= 0 {
		cfg.ThumbnailDimension = def.ThumbnailDimension
	}
	if cfg.ThumbnailQuality <= 0 {
		cfg.ThumbnailQuality = def.ThumbnailQuality
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = def.UploadTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Manager{
		cfg:      cfg,
		memory:   memory,
		disk:     disk,
		remote:   remote,
		inflight: inflight.NewRegistry(),
		log:      log.WithField("component", "images"),
	}
}

// Close stops background bookkeeping.
func (m *Manager) Close() {
	m.inflight.Stop()
}

// Resolve returns the bytes for identity, trying memory, then disk, then the
// remote locator. Every tier that missed is backfilled on success. An empty
// locator means the image has no remote copy.
//
// ctx is the caller's cancellation token; it only affects the remote tier.
// Concurrent resolves of the same identity are not coalesced.
func (m *Manager) Resolve(ctx context.Context, identity, locator string) ([]byte, error) {
	if data, ok := m.memory.Get(identity); ok {
		return data, nil
	}

	log := m.log.WithField("identity", identity)
	name := diskstore.NameFor(identity)

	data, err := m.disk.Read(name)
	if err == nil {
		m.memory.Set(identity, data)
		return data, nil
	}
	if !errors.Is(err, diskstore.ErrNotFound) {
		// A broken disk tier is a miss, not a failure.
		log.WithError(err).Warn("Disk read failed, treating as miss")
	}

	if locator == "" {
		return nil, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrRemoteFetchFailed, identity, err)
	}

	data, err = m.remote.Download(ctx, locator)
	if err != nil {
		log.WithError(err).WithField("locator", locator).Warn("Remote fetch failed")
		return nil, newError(ErrRemoteFetchFailed, identity, err)
	}

	// Another resolve may have finished first; its bytes are the same.
	if cached, ok := m.memory.Get(identity); ok {
		return cached, nil
	}

	// Disk first: memory is only filled once the disk write succeeded.
	if err := m.disk.Write(name, data); err != nil {
		log.WithError(err).Error("Failed to persist fetched image")
		return nil, newError(ErrRemoteFetchFailed, identity, err)
	}
	m.memory.Set(identity, data)
	return data, nil
}

// SaveLocal compresses raw, writes the full image and its thumbnail to disk
// under a new filename and seeds the memory tiers. Once it returns, the photo
// survives going offline or a process restart.
func (m *Manager) SaveLocal(ctx context.Context, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(ErrLocalWriteFailed, "", err)
	}

	full, err := imaging.Compress(raw, m.cfg.MaxDimension, m.cfg.Quality)
	if err != nil {
		return "", newError(ErrLocalWriteFailed, "", err)
	}
	thumb, err := imaging.Compress(full, m.cfg.ThumbnailDimension, m.cfg.ThumbnailQuality)
	if err != nil {
		return "", newError(ErrLocalWriteFailed, "", err)
	}

	name := diskstore.NewPhotoName()
	thumbName := imagecache.ThumbnailKey(name)
	log := m.log.WithField("file", name)

	if err := m.disk.Write(name, full); err != nil {
		log.WithError(err).Error("Failed to save photo locally")
		return "", newError(ErrLocalWriteFailed, name, err)
	}
	if err := m.disk.Write(thumbName, thumb); err != nil {
		log.WithError(err).Error("Failed to save thumbnail locally")
		if derr := m.disk.Delete(name); derr != nil {
			log.WithError(derr).Warn("Failed to remove partially saved photo")
		}
		return "", newError(ErrLocalWriteFailed, name, err)
	}

	m.memory.SetFullImage(name, full)
	m.memory.SetThumbnail(thumbName, thumb)

	log.WithField("bytes", len(full)).Info("Photo saved locally")
	return name, nil
}

// Upload sends the locally saved photo to the remote store under hint and
// returns its storage path. Failures leave the local copy untouched.
func (m *Manager) Upload(ctx context.Context, filename, hint string) (string, error) {
	claim, ok := m.inflight.Begin(filename, m.cfg.UploadTTL)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadInProgress, filename)
	}
	defer m.inflight.Done(claim)

	log := m.log.WithField("file", filename)

	data, err := m.disk.Read(filename)
	if err != nil {
		log.WithError(err).Error("Cannot read photo for upload")
		return "", newError(ErrRemoteUploadFailed, filename, err)
	}

	storagePath, err := m.remote.Upload(ctx, data, hint)
	if err != nil {
		log.WithError(err).Warn("Photo upload failed")
		return "", newError(ErrRemoteUploadFailed, filename, err)
	}

	log.WithField("path", storagePath).Info("Photo uploaded")
	return storagePath, nil
}

// Uploading reports whether an upload of filename is in flight.
func (m *Manager) Uploading(filename string) bool {
	return m.inflight.Exists(filename)
}

// Remove deletes a photo from disk and both memory tiers, then deletes its
// remote copy if storagePath is set. Remote failures are logged and
// swallowed; only local failures are returned.
func (m *Manager) Remove(ctx context.Context, filename, storagePath string) error {
	thumbName := imagecache.ThumbnailKey(filename)

	m.memory.Evict(filename)
	m.memory.Evict(thumbName)

	err := errors.Join(m.disk.Delete(filename), m.disk.Delete(thumbName))
	if err != nil {
		m.log.WithError(err).WithField("file", filename).Error("Failed to delete local photo")
		err = newError(ErrLocalWriteFailed, filename, err)
	}

	if storagePath != "" {
		m.DeleteRemote(ctx, storagePath)
	}
	return err
}

// DeleteRemote deletes a remote blob best-effort.
func (m *Manager) DeleteRemote(ctx context.Context, storagePath string) {
	if err := m.remote.Delete(ctx, storagePath); err != nil {
		m.log.WithError(newError(ErrRemoteDeleteFailed, storagePath, err)).Warn("Ignoring remote delete failure")
	}
}

// HandleMemoryWarning forwards an OS low-memory notification to the cache.
func (m *Manager) HandleMemoryWarning() {
	m.memory.HandleMemoryWarning()
}

// Stats reports memory tier occupancy.
func (m *Manager) Stats() imagecache.Stats {
	return m.memory.Stats()
}
