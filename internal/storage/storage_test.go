package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPreferenceStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "nn-evaluator-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbDir := filepath.Join(tmpDir, "db")
	store, err := OpenPreferenceStore(dbDir)
	if err != nil {
		t.Fatalf("OpenPreferenceStore: %v", err)
	}
	defer store.Close()

	t.Run("LoadConfigBeforeSaveIsNil", func(t *testing.T) {
		cfg, err := store.LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg != nil {
			t.Errorf("expected nil config before any save, got %+v", cfg)
		}
	})

	t.Run("SaveThenLoadConfigRoundTrips", func(t *testing.T) {
		want := &PersistedConfig{
			Servers:       []string{"10.0.0.1:8000", "10.0.0.2:8000"},
			CachePath:     "/tmp/nn.cache",
			CacheSizeHint: 150000,
		}
		if err := store.SaveConfig(want); err != nil {
			t.Fatalf("SaveConfig: %v", err)
		}
		got, err := store.LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if got == nil {
			t.Fatal("expected non-nil config after save")
		}
		if got.CachePath != want.CachePath || got.CacheSizeHint != want.CacheSizeHint {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if len(got.Servers) != len(want.Servers) {
			t.Errorf("got %d servers, want %d", len(got.Servers), len(want.Servers))
		}
	})

	t.Run("SaveThenLoadStatsRoundTrips", func(t *testing.T) {
		want := &EvaluatorStats{
			Lookups:        100,
			Hits:           80,
			Inserts:        20,
			HealthyServers: []string{"10.0.0.1:8000"},
		}
		if err := store.SaveStats(want); err != nil {
			t.Fatalf("SaveStats: %v", err)
		}
		got, err := store.LoadStats()
		if err != nil {
			t.Fatalf("LoadStats: %v", err)
		}
		if got.Lookups != want.Lookups || got.Hits != want.Hits || got.Inserts != want.Inserts {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if got.RecordedAt.IsZero() {
			t.Error("expected RecordedAt to be stamped on save")
		}
	})

	t.Run("LoadStatsBeforeSaveIsZeroValue", func(t *testing.T) {
		dbDir2 := filepath.Join(tmpDir, "db2")
		fresh, err := OpenPreferenceStore(dbDir2)
		if err != nil {
			t.Fatalf("OpenPreferenceStore: %v", err)
		}
		defer fresh.Close()

		stats, err := fresh.LoadStats()
		if err != nil {
			t.Fatalf("LoadStats: %v", err)
		}
		if stats.Lookups != 0 || stats.Hits != 0 {
			t.Errorf("expected zero-value stats, got %+v", stats)
		}
	})
}

func TestDataPaths(t *testing.T) {
	dataDir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir failed: %v", err)
	}
	if dataDir == "" {
		t.Error("GetDataDir returned empty path")
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Data directory was not created: %s", dataDir)
	}
}
