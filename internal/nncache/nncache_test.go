package nncache

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleResult(n int, seed float32) NetResult {
	policy := make([]float32, n)
	policy[0] = seed
	return NetResult{Policy: policy, PolicyPass: seed, Winrate: seed}
}

func TestMemoryOnlyLookupMiss(t *testing.T) {
	c := New(4, 9)
	if _, ok := c.Lookup(1); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestInsertThenLookupHits(t *testing.T) {
	c := New(4, 9)
	want := sampleResult(9, 0.25)
	c.Insert(42, want)

	got, ok := c.Lookup(42)
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got.Winrate != want.Winrate || got.PolicyPass != want.PolicyPass {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSentinelFingerprintIsRefused(t *testing.T) {
	c := New(4, 9)
	c.Insert(Sentinel, sampleResult(9, 0.5))
	if _, ok := c.Lookup(Sentinel); ok {
		t.Fatal("sentinel fingerprint must never be stored")
	}
}

// scenario 3: a 4-entry memory tier evicts the oldest fingerprint once a
// fifth distinct fingerprint is inserted.
func TestFourEntryEviction(t *testing.T) {
	c := New(4, 9)
	for i := uint64(1); i <= 4; i++ {
		c.Insert(i, sampleResult(9, float32(i)))
	}
	c.Insert(5, sampleResult(9, 5))

	if _, ok := c.Lookup(1); ok {
		t.Error("fingerprint 1 should have been evicted first")
	}
	for i := uint64(2); i <= 5; i++ {
		if _, ok := c.Lookup(i); !ok {
			t.Errorf("fingerprint %d should still be cached", i)
		}
	}
}

// scenario 4: opening a file whose header doesn't match the magic number
// fails outright rather than silently truncating or ignoring it.
func TestOpenCacheFileWrongMagicFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cache")
	if err := os.WriteFile(path, []byte("NOTANNCACHEFILE"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(4, 9)
	if err := c.OpenCacheFile(path); err == nil {
		t.Fatal("expected error opening file with wrong magic")
	}
}

// scenario 5: a log truncated mid-record is tolerated at load time; the
// reader resyncs at the next guard (or gives up cleanly at EOF) instead of
// refusing to open the cache.
func TestLoadToleratesTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trunc.cache")

	c := New(4, 9)
	if err := c.OpenCacheFile(path); err != nil {
		t.Fatalf("OpenCacheFile: %v", err)
	}
	c.Insert(7, sampleResult(9, 0.7))
	c.Insert(8, sampleResult(9, 0.8))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Truncate off the last few bytes, simulating a crash mid-write.
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, fi.Size()-3); err != nil {
		t.Fatal(err)
	}

	reopened := New(4, 9)
	if err := reopened.OpenCacheFile(path); err != nil {
		t.Fatalf("reopen after truncation should not fail outright: %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestResizeEvictsDownToNewBudget(t *testing.T) {
	c := New(10, 9)
	for i := uint64(1); i <= 10; i++ {
		c.Insert(i, sampleResult(9, float32(i)))
	}
	c.Resize(3)
	s := c.stats()
	if s.MemCount > 3 {
		t.Errorf("MemCount = %d after resize to 3, want <= 3", s.MemCount)
	}
}

// A re-insert of a fingerprint already in memory counts toward the inserts
// stat but otherwise changes nothing: no duplicate file-tier record, no
// fileIndex churn, and the stored value is unchanged.
func TestReinsertIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reinsert.cache")

	c := New(10, 9)
	if err := c.OpenCacheFile(path); err != nil {
		t.Fatalf("OpenCacheFile: %v", err)
	}
	defer c.Close()

	c.Insert(42, sampleResult(9, 0.25))
	firstOffset := c.fileIndex[42]

	c.Insert(42, sampleResult(9, 0.99))

	got, ok := c.Lookup(42)
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got.Winrate != 0.25 {
		t.Errorf("Winrate = %v after reinsert, want unchanged 0.25", got.Winrate)
	}
	if c.fileIndex[42] != firstOffset {
		t.Errorf("fileIndex offset changed from %d to %d on reinsert", firstOffset, c.fileIndex[42])
	}

	s := c.stats()
	if s.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2 (stat still counts the no-op reinsert)", s.Inserts)
	}
}

func TestResizeBoundsFileIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bounded.cache")

	c := New(MinCacheCount, 9)
	if err := c.OpenCacheFile(path); err != nil {
		t.Fatalf("OpenCacheFile: %v", err)
	}
	defer c.Close()

	// size == MinCacheCount puts the whole budget into memory, leaving
	// maxFileEntries at exactly 0: every file-tier append should be evicted
	// from the index again immediately.
	c.Resize(MinCacheCount)
	if c.maxFileEntries != 0 {
		t.Fatalf("maxFileEntries = %d, want 0 when size == MinCacheCount", c.maxFileEntries)
	}

	for i := uint64(1); i <= 50; i++ {
		c.Insert(i, sampleResult(9, float32(i)))
	}
	if len(c.fileIndex) > c.maxFileEntries {
		t.Errorf("fileIndex has %d entries, want <= maxFileEntries %d", len(c.fileIndex), c.maxFileEntries)
	}
}

func TestHitRateReflectsLookups(t *testing.T) {
	c := New(4, 9)
	c.Insert(1, sampleResult(9, 1))
	c.Lookup(1)
	c.Lookup(2)
	if got, want := c.HitRate(), 0.5; got != want {
		t.Errorf("HitRate = %v, want %v", got, want)
	}
}

func TestFileBackedLookupSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.cache")

	c := New(4, 9)
	if err := c.OpenCacheFile(path); err != nil {
		t.Fatalf("OpenCacheFile: %v", err)
	}
	want := sampleResult(9, 0.9)
	c.Insert(99, want)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := New(0, 9) // memory tier empty, must come from the file
	if err := reopened.OpenCacheFile(path); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Lookup(99)
	if !ok {
		t.Fatal("expected hit from file tier after reopen")
	}
	if got.Winrate != want.Winrate {
		t.Errorf("Winrate = %v, want %v", got.Winrate, want.Winrate)
	}
}
