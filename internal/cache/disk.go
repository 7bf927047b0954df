package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache implements the L2 disk cache with optional zstd compression.
// Entries persist across processes and are never evicted; Delete and Clear
// are the only ways to remove them.
type DiskCache struct {
	basePath string
	size     int64 // Current size on disk in bytes

	// Compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// Index for fast lookups, persisted next to the entries
	index map[string]*diskCacheEntry

	mu     sync.Mutex
	stats  CacheStats
	closed bool
}

// diskCacheEntry represents an entry in the disk cache index
type diskCacheEntry struct {
	Key          string
	FilePath     string
	Size         int64 // Size on disk (compressed)
	OriginalSize int64 // Original size (uncompressed)
	Timestamp    time.Time
	Compressed   bool
}

// NewDiskCache opens (or creates) a disk cache rooted at basePath.
// A compressionLevel of 0 stores entries uncompressed.
func NewDiskCache(basePath string, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		index:    make(map[string]*diskCacheEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// The decoder is always available so entries written with compression
	// stay readable after compression is turned off.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := dc.loadIndex(); err != nil {
		// Non-fatal: start empty, orphaned files are overwritten on Put
		dc.index = make(map[string]*diskCacheEntry)
		dc.stats.Errors++
	}
	dc.calculateSize()

	return dc, nil
}

// Get retrieves a value from the disk cache.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.stats.LastAccess = time.Now()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.readEntry(entry)
	if err != nil {
		// File missing or corrupted, drop it from the index
		dc.dropLocked(key, entry)
		dc.stats.Errors++
		dc.stats.Misses++
		return nil, false
	}

	dc.stats.Hits++
	return data, true
}

// Put stores a value in the disk cache and persists the index.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}

	dataToWrite := value
	compressed := false
	if dc.encoder != nil && len(value) > 1024 { // Only compress if > 1KB
		// Only use compression if it actually reduces size
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			dataToWrite = c
			compressed = true
		}
	}

	filePath := dc.generateFilePath(key)
	if err := writeFileAtomic(filePath, dataToWrite); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if existing, ok := dc.index[key]; ok {
		dc.size -= existing.Size
	}
	dc.index[key] = &diskCacheEntry{
		Key:          key,
		FilePath:     filePath,
		Size:         int64(len(dataToWrite)),
		OriginalSize: int64(len(value)),
		Timestamp:    time.Now(),
		Compressed:   compressed,
	}
	dc.size += int64(len(dataToWrite))

	return dc.saveIndex()
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		return nil
	}
	dc.dropLocked(key, entry)
	return dc.saveIndex()
}

// Clear removes all entries from the disk cache.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var errs []error
	for _, entry := range dc.index {
		if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}

	dc.index = make(map[string]*diskCacheEntry)
	dc.size = 0

	errs = append(errs, dc.saveIndex())
	return errors.Join(errs...)
}

// Size returns the current cache size on disk in bytes.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return dc.size
}

// Contains checks if a key exists in the cache.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() CacheStats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	stats.updateHitRate()

	return stats
}

// Close saves the index and releases the codecs. Reads keep working.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true
	if dc.encoder != nil {
		dc.encoder.Close()
	}
	return dc.saveIndex()
}

func (dc *DiskCache) readEntry(entry *diskCacheEntry) ([]byte, error) {
	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != entry.Size {
		return nil, ErrCacheCorrupted
	}
	if entry.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
		}
	}
	return data, nil
}

func (dc *DiskCache) dropLocked(key string, entry *diskCacheEntry) {
	os.Remove(entry.FilePath)
	delete(dc.index, key)
	dc.size -= entry.Size
}

func (dc *DiskCache) generateFilePath(key string) string {
	// Use SHA256 hash of key for filename
	hash := sha256.Sum256([]byte(key))
	filename := hex.EncodeToString(hash[:16]) + ".cache"
	return filepath.Join(dc.basePath, filename)
}

// writeFileAtomic writes to a temp file first, then renames over path.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

func (dc *DiskCache) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No index file yet
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(dc.index)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, indexPath)
}

func (dc *DiskCache) calculateSize() {
	dc.size = 0
	for _, entry := range dc.index {
		dc.size += entry.Size
	}
}
