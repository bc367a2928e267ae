package shard

import (
	"encoding/binary"
	"sort"
	"sync/atomic"

	"github.com/satmihir/photocache/internal/gateway"
)

// Backend is one asset store in the shard set.
type Backend struct {
	// Name identifies the backend for routing; renaming a backend moves
	// its keys.
	Name    string
	Gateway gateway.AssetGateway

	nameHash uint64 // pre-computed, immutable hash of Name
}

// NewBackend creates a Backend.
func NewBackend(name string, gw gateway.AssetGateway) *Backend {
	return &Backend{
		Name:     name,
		Gateway:  gw,
		nameHash: NewXXH3Hash64(nil).Hash64([]byte(name)),
	}
}

// Router ranks backends for a key by rendezvous (highest random weight)
// hashing. Adding or removing a backend only moves the keys that backend
// wins or loses. Safe for concurrent use.
type Router struct {
	backends atomic.Value // stores []*Backend
	hasher   Hash64
}

func NewRouter(backends []*Backend, salt []byte) *Router {
	r := &Router{hasher: NewXXH3Hash64(salt)}
	r.backends.Store(([]*Backend)(nil)) // initialize with typed nil
	r.SetBackends(backends)
	return r
}

// SetBackends replaces the backend set.
func (r *Router) SetBackends(backends []*Backend) {
	copied := make([]*Backend, len(backends))
	copy(copied, backends)
	r.backends.Store(copied)
}

type score struct {
	backend *Backend
	value   uint64
}

// better returns true if a is better than b (higher score, or same score with lower name).
func better(a, b score) bool {
	if a.value != b.value {
		return a.value > b.value
	}
	return a.backend.Name < b.backend.Name
}

// Rank returns up to k backends for key, best first.
func (r *Router) Rank(key string, k int) []*Backend {
	backends := r.backends.Load().([]*Backend)
	if len(backends) == 0 || k <= 0 {
		return nil
	}

	// Allocate combined key buffer once
	combined := make([]byte, len(key)+8)
	copy(combined, key)

	compute := func(b *Backend) score {
		binary.LittleEndian.PutUint64(combined[len(key):], b.nameHash)
		return score{backend: b, value: r.hasher.Hash64(combined)}
	}

	// Fast path for k=1: single pass to find max
	if k == 1 {
		best := compute(backends[0])
		for _, b := range backends[1:] {
			if s := compute(b); better(s, best) {
				best = s
			}
		}
		return []*Backend{best.backend}
	}

	scores := make([]score, len(backends))
	for i, b := range backends {
		scores[i] = compute(b)
	}
	sort.Slice(scores, func(i, j int) bool {
		return better(scores[i], scores[j])
	})

	k = min(k, len(scores))
	result := make([]*Backend, k)
	for i := range result {
		result[i] = scores[i].backend
	}
	return result
}
