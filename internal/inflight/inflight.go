// Package inflight tracks work that is currently running, such as photo
// uploads, so a second caller does not start the same work twice. Claims
// expire after a TTL in case their owner never reports back.
package inflight

import (
	"sync"
	"time"
)

const (
	// DefaultTTL bounds how long a claim survives without being released.
	DefaultTTL = 5 * time.Minute

	sweepInterval = 30 * time.Second
)

// Claim is the right to run the work named Key until it is released or
// ExpiresAt passes. Token tells apart successive claims on the same key.
type Claim struct {
	Key       string
	Token     uint64
	StartedAt time.Time
	ExpiresAt time.Time
}

func (c Claim) live(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Registry holds the live claims by key.
type Registry struct {
	mu        sync.Mutex
	claims    map[string]Claim
	lastToken uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a Registry and starts sweeping expired claims.
func NewRegistry() *Registry {
	r := &Registry{
		claims: make(map[string]Claim),
		stop:   make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Begin claims key for ttl. It reports false while another claim on key
// is live.
func (r *Registry) Begin(key string, ttl time.Duration) (Claim, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if held, ok := r.claims[key]; ok && held.live(now) {
		return Claim{}, false
	}
	r.lastToken++
	c := Claim{Key: key, Token: r.lastToken, StartedAt: now, ExpiresAt: now.Add(ttl)}
	r.claims[key] = c
	return c, true
}

// Done releases c. A claim that expired and was taken over by a later
// Begin stays with its new owner.
func (r *Registry) Done(c Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.claims[c.Key]; ok && held.Token == c.Token {
		delete(r.claims, c.Key)
	}
}

// Get returns the live claim on key.
func (r *Registry) Get(key string) (Claim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[key]
	if !ok {
		return Claim{}, false
	}
	if !c.live(time.Now()) {
		delete(r.claims, key)
		return Claim{}, false
	}
	return c, true
}

// Exists reports whether key has a live claim.
func (r *Registry) Exists(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Len returns the number of held claims, expired ones not yet swept
// included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

// Stop ends the sweeper. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, c := range r.claims {
		if !c.live(now) {
			delete(r.claims, key)
		}
	}
}
