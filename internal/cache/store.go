package cache

import (
	"errors"
	"fmt"
	"sync"
)

// TieredStore coordinates the memory and disk levels: reads check L1 then L2
// and promote disk hits; writes go to disk first so a successful Put is
// durable.
type TieredStore struct {
	l1 *MemoryCache // nil when disabled
	l2 *DiskCache

	mu    sync.Mutex
	stats TieredStats
}

// TieredStats aggregates per-level statistics.
type TieredStats struct {
	L1 CacheStats
	L2 CacheStats

	L1Hits     int64
	L2Hits     int64
	Misses     int64
	Promotions int64
}

// NewTieredStore opens the disk level at cfg.DiskPath and, when
// cfg.MemoryCapacity is positive, fronts it with a memory LRU.
func NewTieredStore(cfg Config) (*TieredStore, error) {
	if cfg.DiskPath == "" {
		return nil, errors.New("cache disk path is required")
	}

	l2, err := NewDiskCache(cfg.DiskPath, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	ts := &TieredStore{l2: l2}
	if cfg.MemoryCapacity > 0 {
		ts.l1 = NewMemoryCache(cfg.MemoryCapacity)
	}
	return ts, nil
}

// Get retrieves a value, checking memory before disk.
func (ts *TieredStore) Get(key string) ([]byte, bool) {
	if ts.l1 != nil {
		if data, ok := ts.l1.Get(key); ok {
			ts.count(func(s *TieredStats) { s.L1Hits++ })
			return data, true
		}
	}

	data, ok := ts.l2.Get(key)
	if !ok {
		ts.count(func(s *TieredStats) { s.Misses++ })
		return nil, false
	}

	ts.count(func(s *TieredStats) { s.L2Hits++ })
	if ts.l1 != nil && ts.l1.Put(key, data) == nil {
		ts.count(func(s *TieredStats) { s.Promotions++ })
	}
	return data, true
}

// Put writes the value to disk, then to memory. Items too large for memory
// are still stored on disk.
func (ts *TieredStore) Put(key string, value []byte) error {
	if err := ts.l2.Put(key, value); err != nil {
		return fmt.Errorf("L2 cache error: %w", err)
	}
	if ts.l1 != nil {
		if err := ts.l1.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
			return fmt.Errorf("L1 cache error: %w", err)
		}
	}
	return nil
}

// Delete removes an entry from both levels.
func (ts *TieredStore) Delete(key string) error {
	var errs []error
	if ts.l1 != nil {
		if err := ts.l1.Delete(key); err != nil {
			errs = append(errs, fmt.Errorf("L1 delete: %w", err))
		}
	}
	if err := ts.l2.Delete(key); err != nil {
		errs = append(errs, fmt.Errorf("L2 delete: %w", err))
	}
	return errors.Join(errs...)
}

// Clear removes all entries from both levels.
func (ts *TieredStore) Clear() error {
	var errs []error
	if ts.l1 != nil {
		if err := ts.l1.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("L1 clear: %w", err))
		}
	}
	if err := ts.l2.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("L2 clear: %w", err))
	}
	return errors.Join(errs...)
}

// Size returns the durable (disk) size in bytes.
func (ts *TieredStore) Size() int64 {
	return ts.l2.Size()
}

// Contains reports whether the key is stored at either level.
func (ts *TieredStore) Contains(key string) bool {
	if ts.l1 != nil && ts.l1.Contains(key) {
		return true
	}
	return ts.l2.Contains(key)
}

// Stats returns combined hit/miss counters, with size and item count taken
// from the disk level which holds every entry.
func (ts *TieredStore) Stats() CacheStats {
	l2 := ts.l2.Stats()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	stats := CacheStats{
		Size:       l2.Size,
		ItemCount:  l2.ItemCount,
		Hits:       ts.stats.L1Hits + ts.stats.L2Hits,
		Misses:     ts.stats.Misses,
		Errors:     l2.Errors,
		LastAccess: l2.LastAccess,
	}
	if ts.l1 != nil {
		stats.Evictions = ts.l1.Stats().Evictions
	}
	stats.updateHitRate()
	return stats
}

// LevelStats returns per-level statistics.
func (ts *TieredStore) LevelStats() TieredStats {
	ts.mu.Lock()
	stats := ts.stats
	ts.mu.Unlock()

	if ts.l1 != nil {
		stats.L1 = ts.l1.Stats()
	}
	stats.L2 = ts.l2.Stats()
	return stats
}

// Close flushes the disk index.
func (ts *TieredStore) Close() error {
	return ts.l2.Close()
}

func (ts *TieredStore) count(f func(*TieredStats)) {
	ts.mu.Lock()
	f(&ts.stats)
	ts.mu.Unlock()
}
