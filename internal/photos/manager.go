package photos

import (
	"context"
	"path"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/retry"
)

// DefaultHintPrefix is the remote prefix photos are uploaded under,
// followed by the stamp ID.
const DefaultHintPrefix = "stamps"

type Config struct {
	HintPrefix string
	// Retry is the schedule RetryUploads uses per photo.
	Retry retry.Config
}

func DefaultConfig() Config {
	return Config{
		HintPrefix: DefaultHintPrefix,
		Retry:      retry.UploadConfig(),
	}
}

// Manager hands out one Collection per stamp and owns the background
// uploads of all of them. One per process.
type Manager struct {
	cfg     Config
	images  ImagePipeline
	records gateway.RecordStore
	log     logrus.FieldLogger

	// Uploads run under ctx, not under the request that started them.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	collections map[string]*Collection
}

func NewManager(cfg Config, images ImagePipeline, records gateway.RecordStore, log logrus.FieldLogger) *Manager {
	if cfg.HintPrefix == "" {
		cfg.HintPrefix = DefaultHintPrefix
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.UploadConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:         cfg,
		images:      images,
		records:     records,
		log:         log.WithField("component", "photos"),
		ctx:         ctx,
		cancel:      cancel,
		collections: make(map[string]*Collection),
	}
}

// For returns the collection of stampID, creating it on first use. Every
// caller asking for the same stamp gets the same instance.
func (m *Manager) For(stampID string) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[stampID]; ok {
		return c
	}
	c := &Collection{
		stampID: stampID,
		hint:    path.Join(m.cfg.HintPrefix, stampID),
		images:  m.images,
		records: m.records,
		retry:   m.cfg.Retry,
		owner:   m,
		log:     m.log.WithField("stamp", stampID),
		sending: make(map[string]struct{}),
		subs:    make(map[int]chan Snapshot),
	}
	m.collections[stampID] = c
	return c
}

// Close cancels background uploads and waits for them to return.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// goAsync runs fn in the background under the manager's context. It
// reports false, without running fn, once the manager is closed.
func (m *Manager) goAsync(fn func(ctx context.Context)) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
	return true
}
