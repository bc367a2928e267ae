package shard

import (
	"github.com/zeebo/xxh3"
)

// Hash64 is the hash used to score backends.
type Hash64 interface {
	Hash64(data []byte) uint64
}

// XXH3Hash64 is a Hash64 implementation using xxhash3, optionally seeded.
type XXH3Hash64 struct {
	seed uint64
}

// NewXXH3Hash64 seeds the hash from salt. A nil or empty salt gives the
// unseeded hash.
func NewXXH3Hash64(salt []byte) *XXH3Hash64 {
	h := &XXH3Hash64{}
	if len(salt) > 0 {
		// Hash the salt down to a 64-bit seed
		h.seed = xxh3.Hash(salt)
	}
	return h
}

func (x *XXH3Hash64) Hash64(data []byte) uint64 {
	return xxh3.HashSeed(data, x.seed)
}
