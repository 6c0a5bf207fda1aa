// Package nncache implements the two-tier neural-network evaluation cache
// described in spec.md §3/§4.2: an in-memory LRU keyed by position
// fingerprint, backed by an append-only on-disk log indexed in memory.
package nncache

import (
	"fmt"

	"github.com/lp200/leela-zero/internal/nnerrors"
)

// Sentinel is the reserved fingerprint value that must never be stored.
const Sentinel uint64 = 0xFFFFFFFFFFFFFFFF

// NetResult is the decoded output of a neural-network evaluation: a policy
// distribution over the board's intersections plus the two scalar outputs
// that accompany it.
type NetResult struct {
	Policy     []float32
	PolicyPass float32
	Winrate    float32
}

// MinCacheCount and MaxCacheCount bound the memory-tier budget once a
// file tier is in use; EntrySize is the empirically-observed average
// in-memory footprint of one Entry (pointer + ~32 bytes compressed policy on
// average, rounded up with margin), used to size the file-index budget.
const (
	MinCacheCount = 6_000
	MaxCacheCount = 150_000
	EntrySize     = 15_000
)

// errDecode/errIO/errUnsupported wrap the shared sentinel kinds so callers
// can errors.Is against nnerrors.ErrDecode etc. A Decode failure on lookup
// is treated by the caller as a miss, never propagated as a hard error.
func errDecode(msg string) error {
	return fmt.Errorf("nncache: %w: %s", nnerrors.ErrDecode, msg)
}

func errIO(msg string) error {
	return fmt.Errorf("nncache: %w: %s", nnerrors.ErrIO, msg)
}

func errUnsupported(msg string) error {
	return fmt.Errorf("nncache: %w: %s", nnerrors.ErrUnsupported, msg)
}
