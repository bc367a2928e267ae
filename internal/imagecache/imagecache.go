// Package imagecache holds decoded-size image bytes in two independent LRU
// tiers: a large tier for thumbnails and a small tier for full images.
package imagecache

import (
	"path"
	"strings"

	"github.com/satmihir/photocache/cache"
	"github.com/sirupsen/logrus"
)

// ThumbnailMarker is the suffix, placed before the file extension, that routes
// a key to the thumbnail tier. Thumbnail and full-image key spaces are kept
// apart only by this naming convention.
const ThumbnailMarker = "_thumb"

const (
	DefaultThumbnailCapacity = 200
	DefaultFullImageCapacity = 30
)

// Config sizes the two tiers.
type Config struct {
	ThumbnailCapacity int
	FullImageCapacity int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ThumbnailCapacity: DefaultThumbnailCapacity,
		FullImageCapacity: DefaultFullImageCapacity,
	}
}

// Stats is a point-in-time view of tier occupancy.
type Stats struct {
	Thumbnails        int `json:"thumbnails"`
	ThumbnailCapacity int `json:"thumbnail_capacity"`
	FullImages        int `json:"full_images"`
	FullImageCapacity int `json:"full_image_capacity"`
}

// Manager composes the thumbnail and full-image caches. Construct one per
// process and pass it to whatever needs it.
type Manager struct {
	thumbnails *cache.Bounded[string, []byte]
	fullImages *cache.Bounded[string, []byte]
	log        logrus.FieldLogger
}

// New creates a Manager. Zero capacities fall back to the defaults.
func New(cfg Config, log logrus.FieldLogger) *Manager {
	if cfg.ThumbnailCapacity <= 0 {
		cfg.ThumbnailCapacity = DefaultThumbnailCapacity
	}
	if cfg.FullImageCapacity <= 0 {
		cfg.FullImageCapacity = DefaultFullImageCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "imagecache")

	evicted := func(tier string) cache.Option[string, []byte] {
		return cache.WithEvictCallback(func(key string, value []byte) {
			log.WithFields(logrus.Fields{
				"tier":  tier,
				"key":   key,
				"bytes": len(value),
			}).Debug("Evicted image from memory")
		})
	}

	return &Manager{
		thumbnails: cache.New(cfg.ThumbnailCapacity, evicted("thumbnail")),
		fullImages: cache.New(cfg.FullImageCapacity, evicted("full")),
		log:        log,
	}
}

func (m *Manager) Thumbnail(key string) ([]byte, bool) {
	return m.thumbnails.Get(key)
}

func (m *Manager) SetThumbnail(key string, data []byte) {
	m.thumbnails.Set(key, data)
}

func (m *Manager) FullImage(key string) ([]byte, bool) {
	return m.fullImages.Get(key)
}

func (m *Manager) SetFullImage(key string, data []byte) {
	m.fullImages.Set(key, data)
}

// Get looks key up in the tier its name selects.
func (m *Manager) Get(key string) ([]byte, bool) {
	if IsThumbnailKey(key) {
		return m.Thumbnail(key)
	}
	return m.FullImage(key)
}

// Set stores data in the tier key's name selects.
func (m *Manager) Set(key string, data []byte) {
	if IsThumbnailKey(key) {
		m.SetThumbnail(key, data)
		return
	}
	m.SetFullImage(key, data)
}

// Evict drops key from both tiers.
func (m *Manager) Evict(key string) {
	m.thumbnails.Remove(key)
	m.fullImages.Remove(key)
}

// HandleMemoryWarning is the hook for an OS low-memory notification. Only the
// full-image tier is cleared; thumbnails are cheap to keep.
func (m *Manager) HandleMemoryWarning() {
	dropped := m.fullImages.Len()
	m.fullImages.Clear()
	m.log.WithField("dropped", dropped).Info("Cleared full-image cache on memory warning")
}

func (m *Manager) Stats() Stats {
	return Stats{
		Thumbnails:        m.thumbnails.Len(),
		ThumbnailCapacity: m.thumbnails.Cap(),
		FullImages:        m.fullImages.Len(),
		FullImageCapacity: m.fullImages.Cap(),
	}
}

// ThumbnailKey derives the thumbnail key for an image name:
// "photo.jpg" becomes "photo_thumb.jpg".
func ThumbnailKey(name string) string {
	if IsThumbnailKey(name) {
		return name
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + ThumbnailMarker + ext
}

// IsThumbnailKey reports whether key names a thumbnail.
func IsThumbnailKey(key string) bool {
	ext := path.Ext(key)
	return strings.HasSuffix(strings.TrimSuffix(key, ext), ThumbnailMarker)
}
