// Package nodestore caches node coordinates between the two extraction
// passes. Pass 1 writes every node's location; pass 2 resolves way refs
// against the finalized, read-only store.
//
// Three backends cover different input sizes:
//
//   - sparse: an append-only sorted flat file, binary-searched through a
//     memory map. Memory use scales with the node count, so it suits
//     regional extracts. Requires node IDs in ascending order.
//   - dense: a direct-addressed sparse file where a node's record lives at
//     offset id*8. Constant-time lookups regardless of ID distribution,
//     best for planet-scale inputs.
//   - memory: a plain map, no disk usage, for small inputs and tests.
//
// Coordinates are stored as fixed-point int32 degrees (scaled by 1e7),
// matching the source data's precision.
package nodestore

import (
	"fmt"

	"github.com/wegman-software/osmextract/internal/config"
)

const (
	recordSize      = 8  // 4 bytes lon + 4 bytes lat, fixed-point int32
	sparseEntrySize = 16 // 8 bytes id + one coordinate record
	scaleFactor     = 1e7
)

// Store is the write side of the cache, used during pass 1.
type Store interface {
	// Put records a node's coordinate. Sparse stores require ascending ids.
	Put(id int64, lat, lon float64) error
	// Finalize flushes the store and returns the read side. The Store must
	// not be used afterwards; closing the Reader releases all resources.
	Finalize() (Reader, error)
	// Close releases resources without finalizing, for abort paths.
	Close() error
}

// Reader is the read side, shared read-only across pass-2 workers.
type Reader interface {
	Get(id int64) (lat, lon float64, ok bool)
	Close() error
}

// Options configure store creation.
type Options struct {
	// Path is the cache file location for the dense backend. Empty means a
	// temporary file removed on close.
	Path string
	// MaxNodes bounds the id space (dense) or the node count (memory).
	MaxNodes int64
}

// New creates a store for the given cache mode. Mode must already be
// resolved; CacheAuto is not accepted here.
func New(mode config.CacheMode, opts Options) (Store, error) {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = config.DefaultMaxNodes
	}
	switch mode {
	case config.CacheSparse:
		return newSparse()
	case config.CacheDense:
		return newDense(opts.Path, opts.MaxNodes)
	case config.CacheMemory:
		return newMemory(opts.MaxNodes), nil
	default:
		return nil, fmt.Errorf("cannot create node store for cache mode %q", mode)
	}
}

// OrderIndependent reports whether the backend accepts concurrent Puts for
// distinct ids. Only the dense store does: each id owns a fixed byte range.
// The sparse store depends on insertion order and the memory store's map is
// not safe for concurrent writes.
func OrderIndependent(mode config.CacheMode) bool {
	return mode == config.CacheDense
}

func toFixed(coord float64) int32 {
	return int32(coord * scaleFactor)
}

func fromFixed(fixed int32) float64 {
	return float64(fixed) / scaleFactor
}
