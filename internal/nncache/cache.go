package nncache

import (
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Cache is the two-tier NN evaluation cache: a bounded in-memory map with
// strict FIFO eviction backed by an optional append-only on-disk log whose
// offsets are tracked in a second in-memory index. It mirrors the
// transposition-table shape of a sharded hash table with atomic hit/probe
// counters, collapsed here to a single table since the policy payload (not
// lock contention) dominates cost.
type Cache struct {
	mu sync.RWMutex

	sizeHint int
	mem      map[uint64]*compressedEntry
	memOrder *fifoQueue

	fileIndex      map[uint64]int64
	maxFileEntries int
	fileBudgetSet  bool // true once Resize has computed a real max_file_entries; until then the file index is unbounded
	file           *os.File
	nSinceGuard    int

	boardSize int // N, the policy vector length; needed to decode entries

	hits   atomic.Int64
	lookups atomic.Int64
	inserts atomic.Int64
}

// New allocates the memory tier sized for sizeHint distinct positions.
// boardSize is N, the length of the policy vector every cached NetResult
// carries; it must be fixed for the lifetime of the cache since the on-disk
// format stores no explicit length for the uncompressed vector.
func New(sizeHint, boardSize int) *Cache {
	c := &Cache{
		sizeHint:  sizeHint,
		mem:       make(map[uint64]*compressedEntry, sizeHint),
		memOrder:  &fifoQueue{},
		boardSize: boardSize,
	}
	return c
}

// OpenCacheFile opens (creating if necessary) the on-disk log at path and
// loads its index into memory, tolerating corruption by resyncing at the
// next 16-byte guard. This is the Go analogue of load_cachefile: the magic
// number is validated only if the file already had content; a fresh file
// gets one written along with an initial guard.
func (c *Cache) OpenCacheFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errIO(err.Error())
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return errIO(err.Error())
	}

	index := make(map[uint64]int64)
	if fi.Size() == 0 {
		if _, err := f.Write(magic[:]); err != nil {
			f.Close()
			return errIO(err.Error())
		}
		if err := writeGuard(f); err != nil {
			f.Close()
			return errIO(err.Error())
		}
	} else {
		var hdr [4]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil || hdr != magic {
			f.Close()
			return errUnsupported("cache file has unrecognized magic number")
		}
		index, err = loadIndex(f)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return errIO(err.Error())
		}
		if err := writeGuard(f); err != nil {
			f.Close()
			return errIO(err.Error())
		}
	}

	c.mu.Lock()
	c.file = f
	c.fileIndex = index
	c.nSinceGuard = 0
	c.mu.Unlock()
	return nil
}

// loadIndex forward-scans the log from the current position (just past the
// magic number) to EOF, recording each valid record's fingerprint and
// offset. On hitting bytes it cannot parse as a record, it resyncs at the
// next 16-byte 0xFF guard and resumes, exactly as load_cachefile tolerates a
// truncated or corrupted tail instead of refusing to start.
func loadIndex(f *os.File) (map[uint64]int64, error) {
	index := make(map[uint64]int64)
	for {
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, errIO(err.Error())
		}
		peek := make([]byte, 16)
		n, _ := io.ReadFull(f, peek)
		if n < 16 {
			return index, nil
		}
		allFF := true
		for _, b := range peek {
			if b != 0xFF {
				allFF = false
				break
			}
		}
		if allFF {
			continue // consumed one guard, keep scanning for the next record
		}
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return nil, errIO(err.Error())
		}
		fingerprint, e, err := readRecord(f, Sentinel)
		if err != nil {
			log.Printf("nncache: corrupt record at offset %d, resyncing: %v", pos, err)
			if _, err := f.Seek(pos, io.SeekStart); err != nil {
				return nil, errIO(err.Error())
			}
			consumed, found, serr := scanForGuard(f)
			if serr != nil {
				return nil, errIO(serr.Error())
			}
			if !found {
				return index, nil
			}
			_ = consumed
			continue
		}
		if fingerprint != Sentinel {
			index[fingerprint] = pos
		}
		_ = e
	}
}

// Lookup returns the decoded NetResult for fingerprint, checking the memory
// tier first and falling back to the file tier on a miss. A record present
// in fileIndex but unreadable or undecodable on disk is treated as a miss,
// never a hard error, mirroring NNCache::lookup's "something's wrong with
// the file, act as if we missed" behavior.
func (c *Cache) Lookup(fingerprint uint64) (NetResult, bool) {
	c.lookups.Add(1)
	c.mu.RLock()
	if e, ok := c.mem[fingerprint]; ok {
		c.mu.RUnlock()
		r, err := e.decode(c.boardSize)
		if err != nil {
			return NetResult{}, false
		}
		c.hits.Add(1)
		return r, true
	}
	var offset int64
	var inFile bool
	if c.fileIndex != nil {
		offset, inFile = c.fileIndex[fingerprint]
	}
	file := c.file
	boardSize := c.boardSize
	c.mu.RUnlock()

	if !inFile || file == nil {
		return NetResult{}, false
	}

	fh, err := os.Open(file.Name())
	if err != nil {
		return NetResult{}, false
	}
	defer fh.Close()
	if _, err := fh.Seek(offset, io.SeekStart); err != nil {
		return NetResult{}, false
	}
	_, e, err := readRecord(fh, fingerprint)
	if err != nil {
		return NetResult{}, false
	}
	r, err := e.decode(boardSize)
	if err != nil {
		return NetResult{}, false
	}
	c.hits.Add(1)
	return r, true
}

// Insert adds fingerprint/result to the memory tier, evicting the oldest
// entry under FIFO order once sizeHint is exceeded, and appends it to the
// file tier if one is open. The sentinel fingerprint is silently refused:
// it must never occupy a slot since it also means "not found".
func (c *Cache) Insert(fingerprint uint64, r NetResult) {
	if fingerprint == Sentinel {
		return
	}
	c.inserts.Add(1)

	c.mu.Lock()
	if _, exists := c.mem[fingerprint]; exists {
		c.mu.Unlock()
		return
	}

	e := newCompressedEntry(r)

	if c.file != nil && e.sizeInBytes() < 256 {
		if _, err := c.file.Seek(0, io.SeekEnd); err == nil {
			if pos, werr := writeRecord(c.file, fingerprint, e); werr == nil {
				c.fileIndex[fingerprint] = pos
				c.nSinceGuard++
				if c.nSinceGuard >= guardEvery {
					if gerr := writeGuard(c.file); gerr == nil {
						c.nSinceGuard = 0
					}
				}
				c.evictFileOverflow()
			} else {
				log.Printf("nncache: disabling file tier after write error: %v", werr)
				c.file = nil
			}
		}
	}

	c.mem[fingerprint] = e
	c.memOrder.pushBack(fingerprint)
	c.evictMemOverflow()
	c.mu.Unlock()
}

func (c *Cache) evictMemOverflow() {
	for len(c.mem) > c.sizeHint && c.memOrder.len() > 0 {
		oldest, ok := c.memOrder.popFront()
		if !ok {
			break
		}
		delete(c.mem, oldest)
	}
}

// evictFileOverflow drops arbitrary file-index entries, taken in Go map
// iteration order, while the index exceeds maxFileEntries. Dropping an index
// entry only forgets where the record lives; the bytes stay on disk until
// the log is rewritten. Before the first Resize call there is no budget
// decision to enforce yet, so the index is left unbounded.
func (c *Cache) evictFileOverflow() {
	if !c.fileBudgetSet {
		return
	}
	for len(c.fileIndex) > c.maxFileEntries {
		for h := range c.fileIndex {
			delete(c.fileIndex, h)
			break
		}
	}
}

// recomputeBudgets implements resize(size, reserve_file): with no file tier,
// the whole budget goes to memory and the file index is capped at zero.
// With a file tier active, the first MinCacheCount entries go to memory,
// anything past MaxCacheCount goes to file, and the band between is split
// 50/50; the file budget is sized in fixed EntrySize/32 chunks from whatever
// of size remains once the memory share is taken. Caller must hold mu.
func (c *Cache) recomputeBudgets(size int) {
	c.fileBudgetSet = true
	if c.file == nil {
		c.sizeHint = size
		c.maxFileEntries = 0
		return
	}
	memBudget := MinCacheCount + (size-MinCacheCount)/2
	if memBudget < MinCacheCount {
		memBudget = MinCacheCount
	}
	if memBudget > MaxCacheCount {
		memBudget = MaxCacheCount
	}
	c.sizeHint = memBudget
	fileBudget := (size - memBudget) * EntrySize / 32
	if fileBudget < 0 {
		fileBudget = 0
	}
	c.maxFileEntries = fileBudget
}

// Resize recomputes the memory and file-tier budgets for a new size hint
// following NNCache::resize, then evicts whatever now overflows either cap.
func (c *Cache) Resize(newSizeHint int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeBudgets(newSizeHint)
	c.evictMemOverflow()
	c.evictFileOverflow()
}

// Stats is a snapshot of cumulative counters for DumpStats/logging.
type Stats struct {
	Lookups   int64
	Hits      int64
	Inserts   int64
	MemCount  int
	FileCount int
}

// Stats returns a snapshot of cumulative cache counters, suitable for
// periodic logging or handing to a preference store.
func (c *Cache) Stats() Stats {
	return c.stats()
}

func (c *Cache) stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Lookups:   c.lookups.Load(),
		Hits:      c.hits.Load(),
		Inserts:   c.inserts.Load(),
		MemCount:  len(c.mem),
		FileCount: len(c.fileIndex),
	}
}

// HitRate returns the fraction of lookups that were hits, or 0 if there have
// been no lookups yet.
func (c *Cache) HitRate() float64 {
	s := c.stats()
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// EstimatedSize returns the approximate memory-tier footprint in bytes,
// using the same EntrySize-per-record heuristic as the original
// get_estimated_size.
func (c *Cache) EstimatedSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.mem)) * EntrySize
}

// DumpStats logs a one-line summary of cumulative cache activity.
func (c *Cache) DumpStats() {
	s := c.stats()
	log.Printf("nncache: %d lookups, %d hits (%.1f%%), %d inserts, %d in memory, %d on disk",
		s.Lookups, s.Hits, c.HitRate()*100, s.Inserts, s.MemCount, s.FileCount)
}

// Close flushes and releases the file tier, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
