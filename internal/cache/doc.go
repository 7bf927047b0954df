// Package cache provides the durable audio cache used by speech generation.
// A bounded in-memory LRU (L1) fronts a zstd-compressed disk store (L2) that
// never evicts; entries leave the disk only through Clear.
package cache
