// Package config holds the evaluator's process-wide settings (spec.md §9's
// "global state", collected into one struct instead of package-level
// mutable globals) and the flag parsing and persistence that produce it.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/lp200/leela-zero/internal/nnerrors"
	"github.com/lp200/leela-zero/internal/storage"
)

// Config carries everything the cache, the distributed client/server, and
// the evaluator facade need, constructed once at process start and passed
// by reference from then on.
type Config struct {
	DesiredThreads   int
	Verbose          bool
	NumIntersections int
	InputChannels    int
	ModelHash        uint64
	Servers          []string
	CachePath        string
	CacheSizeHint    int
	SelfCheck        bool
}

// FromFlags parses args (excluding the program name, in the style of
// flag.Parse elsewhere in this repo) into a Config. A malformed server
// token — anything without exactly one colon — is rejected with
// nnerrors.ErrMalformed before any connection is attempted, per the client
// CLI's documented behavior.
func FromFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("nnclient", flag.ContinueOnError)

	threads := fs.Int("threads", 1, "desired number of distributed worker connections")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	intersections := fs.Int("intersections", 361, "number of board intersections (N)")
	channels := fs.Int("channels", 18, "number of input feature planes")
	modelHash := fs.String("model-hash", "0", "model hash as a decimal or 0x-prefixed hex u64")
	servers := fs.String("servers", "", "comma-separated host:port list of remote evaluation servers")
	cachePath := fs.String("cache", "", "on-disk NN cache file path (empty disables the file tier)")
	cacheSize := fs.Int("cache-size", storageDefaultCacheSizeHint, "total cache entry budget (split between memory and the file index when -cache is set)")
	selfcheck := fs.Bool("selfcheck", false, "on a cache hit, re-evaluate through the distributed client and log any mismatch with the cached result (the local evaluator is not forced)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	hash, err := ParseModelHash(*modelHash)
	if err != nil {
		return nil, fmt.Errorf("config: %w: model-hash %q: %v", nnerrors.ErrMalformed, *modelHash, err)
	}

	serverList, err := ParseServerList(*servers)
	if err != nil {
		return nil, err
	}

	return &Config{
		DesiredThreads:   *threads,
		Verbose:          *verbose,
		NumIntersections: *intersections,
		InputChannels:    *channels,
		ModelHash:        hash,
		Servers:          serverList,
		CachePath:        *cachePath,
		CacheSizeHint:    *cacheSize,
		SelfCheck:        *selfcheck,
	}, nil
}

const storageDefaultCacheSizeHint = 150_000

// ParseModelHash parses a decimal or 0x-prefixed hex u64 model hash.
func ParseModelHash(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// ParseServerList splits a comma-separated host:port list, rejecting any
// token that doesn't contain exactly one colon. Exported so callers with
// their own flag.FlagSet (e.g. cmd/nnclient, which layers -bench/-weights
// on top) can reuse the same validation without going through FromFlags.
func ParseServerList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	tokens := strings.Split(s, ",")
	servers := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.Count(tok, ":") != 1 {
			return nil, fmt.Errorf("config: %w: server token %q has no single host:port colon", nnerrors.ErrMalformed, tok)
		}
		parts := strings.SplitN(tok, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("config: %w: server token %q missing host or port", nnerrors.ErrMalformed, tok)
		}
		servers = append(servers, tok)
	}
	return servers, nil
}

// Load reconstructs the persisted subset of Config (server roster, cache
// path/size) from store, leaving flag-only fields (threads, verbosity,
// selfcheck) at their zero value for the caller to overlay from FromFlags.
func Load(store *storage.PreferenceStore) (*Config, error) {
	persisted, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: load persisted config: %w", err)
	}
	if persisted == nil {
		return &Config{}, nil
	}
	return &Config{
		Servers:       persisted.Servers,
		CachePath:     persisted.CachePath,
		CacheSizeHint: persisted.CacheSizeHint,
	}, nil
}

// Save persists the server roster and cache path/size so a future Load can
// restore them.
func (c *Config) Save(store *storage.PreferenceStore) error {
	return store.SaveConfig(&storage.PersistedConfig{
		Servers:       c.Servers,
		CachePath:     c.CachePath,
		CacheSizeHint: c.CacheSizeHint,
	})
}
