// Package evaluator composes the NN cache and the distributed client
// behind a single facade, the only type an external tree-search
// collaborator is expected to call: look up in the cache, compute on a
// miss (remote, falling back to local), insert the result, optionally
// cross-check the two paths in selfcheck mode.
package evaluator

import (
	"context"
	"fmt"
	"log"

	"github.com/lp200/leela-zero/internal/config"
	"github.com/lp200/leela-zero/internal/distclient"
	"github.com/lp200/leela-zero/internal/nncache"
	"github.com/lp200/leela-zero/internal/storage"
)

// Evaluator is the facade's public surface.
type Evaluator interface {
	Evaluate(ctx context.Context, fingerprint uint64, features []byte) (nncache.NetResult, error)
	Stats() storage.EvaluatorStats
	Close() error
}

// facade wires a cache in front of a distclient.Client, in the same
// cache-wraps-an-inner-prober shape as a cached lookup layered over a
// slower underlying source: check the cache, fall through to the client on
// a miss, write the result back.
type facade struct {
	cache     *nncache.Cache
	client    *distclient.Client
	boardSize int
	selfcheck bool
}

// New builds the evaluator facade from cfg: opens the cache file if
// cfg.CachePath is set, builds the distributed client from cfg.Servers,
// and initializes the client (bounded retry, then background reconnector).
func New(cfg *config.Config, local distclient.LocalEvaluator) (Evaluator, error) {
	cache := nncache.New(cfg.CacheSizeHint, cfg.NumIntersections)
	if cfg.CachePath != "" {
		if err := cache.OpenCacheFile(cfg.CachePath); err != nil {
			return nil, fmt.Errorf("evaluator: open cache file: %w", err)
		}
	}
	cache.Resize(cfg.CacheSizeHint)

	client := distclient.New(cfg.Servers, cfg.ModelHash, cfg.NumIntersections, local, cfg.Verbose)
	if err := client.Initialize(cfg.DesiredThreads); err != nil {
		cache.Close()
		return nil, fmt.Errorf("evaluator: initialize distributed client: %w", err)
	}

	return &facade{
		cache:     cache,
		client:    client,
		boardSize: cfg.NumIntersections,
		selfcheck: cfg.SelfCheck,
	}, nil
}

// Evaluate returns a cached result if one exists, otherwise computes one
// through the distributed client (remote or local fallback) and inserts it
// into the cache before returning.
func (f *facade) Evaluate(ctx context.Context, fingerprint uint64, features []byte) (nncache.NetResult, error) {
	if r, ok := f.cache.Lookup(fingerprint); ok {
		if !f.selfcheck {
			return r, nil
		}
		computed, err := f.compute(ctx, fingerprint, features)
		if err != nil {
			return r, nil
		}
		if mismatch(r, computed) {
			log.Printf("evaluator: selfcheck mismatch for fingerprint %x: cached=%+v computed=%+v", fingerprint, r, computed)
		}
		return r, nil
	}

	r, err := f.compute(ctx, fingerprint, features)
	if err != nil {
		return nncache.NetResult{}, err
	}
	f.cache.Insert(fingerprint, r)
	return r, nil
}

func (f *facade) compute(ctx context.Context, fingerprint uint64, features []byte) (nncache.NetResult, error) {
	resp, err := f.client.Evaluate(ctx, fingerprint, features)
	if err != nil {
		return nncache.NetResult{}, fmt.Errorf("evaluator: compute: %w", err)
	}
	return nncache.NetResult{Policy: resp.Policy, PolicyPass: resp.PolicyPass, Winrate: resp.Winrate}, nil
}

func mismatch(a, b nncache.NetResult) bool {
	if a.PolicyPass != b.PolicyPass || a.Winrate != b.Winrate {
		return true
	}
	if len(a.Policy) != len(b.Policy) {
		return true
	}
	for i := range a.Policy {
		if a.Policy[i] != b.Policy[i] {
			return true
		}
	}
	return false
}

// Stats copies the cache's lookup, hit and insert counters into one
// persistable snapshot. It does not include the cache's estimated size or
// the distributed client's connection count, and leaves HealthyServers
// empty.
func (f *facade) Stats() storage.EvaluatorStats {
	cacheStats := f.cache.Stats()
	return storage.EvaluatorStats{
		Lookups: cacheStats.Lookups,
		Hits:    cacheStats.Hits,
		Inserts: cacheStats.Inserts,
	}
}

// Close releases the cache file handle and stops the distributed client's
// background reconnector, joining it before returning.
func (f *facade) Close() error {
	f.client.Stop()
	return f.cache.Close()
}
