package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keyConfig = "config"
	keyStats  = "stats"
)

// PersistedConfig is the subset of the evaluator's Config worth carrying
// across restarts: the server roster and cache path, not the flags that are
// re-supplied on every invocation (threads, verbosity).
type PersistedConfig struct {
	Servers       []string `json:"servers"`
	CachePath     string   `json:"cache_path"`
	CacheSizeHint int      `json:"cache_size_hint"`
}

// EvaluatorStats is the persisted activity snapshot described in SPEC_FULL's
// Config/EvaluatorStats data model: cache hit-rate, lookup counts, and the
// last-known-good server roster, so a restarted process can reconnect to
// servers that were last healthy instead of starting cold.
type EvaluatorStats struct {
	Lookups        int64     `json:"lookups"`
	Hits           int64     `json:"hits"`
	Inserts        int64     `json:"inserts"`
	HealthyServers []string  `json:"healthy_servers"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// PreferenceStore wraps BadgerDB for persisting evaluator configuration and
// stats using a plain Update/View-plus-JSON pattern.
type PreferenceStore struct {
	db *badger.DB
}

// NewPreferenceStore opens (creating if necessary) the preference database
// in the platform data directory.
func NewPreferenceStore() (*PreferenceStore, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, fmt.Errorf("storage: resolve database directory: %w", err)
	}
	return OpenPreferenceStore(dbDir)
}

// OpenPreferenceStore opens the preference database at an explicit
// directory, bypassing platform path resolution; used by tests and by
// callers with a custom data directory.
func OpenPreferenceStore(dbDir string) (*PreferenceStore, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %s: %w", dbDir, err)
	}
	return &PreferenceStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PreferenceStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig persists the server roster and cache path.
func (s *PreferenceStore) SaveConfig(cfg *PersistedConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: marshal config: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyConfig), data)
	})
}

// LoadConfig loads the last-persisted config, returning (nil, nil) if none
// has ever been saved.
func (s *PreferenceStore) LoadConfig() (*PersistedConfig, error) {
	var cfg *PersistedConfig
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyConfig))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cfg = &PersistedConfig{}
			return json.Unmarshal(val, cfg)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load config: %w", err)
	}
	return cfg, nil
}

// SaveStats persists an EvaluatorStats snapshot, stamping RecordedAt.
func (s *PreferenceStore) SaveStats(stats *EvaluatorStats) error {
	stats.RecordedAt = time.Now()
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("storage: marshal stats: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyStats), data)
	})
}

// LoadStats loads the last-persisted stats snapshot, returning a zero value
// if none exists yet.
func (s *PreferenceStore) LoadStats() (*EvaluatorStats, error) {
	stats := &EvaluatorStats{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyStats))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, stats)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load stats: %w", err)
	}
	return stats, nil
}
