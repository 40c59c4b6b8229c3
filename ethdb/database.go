// Copyright 2018 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package ethdb defines the backend key-value abstraction: a namespaced store with batched
// atomic writes, synchronous and asynchronous reads, and ordered range scans. The namespace is
// realized the way go-ethereum's core/rawdb does it: callers prefix every key with the logical
// table's prefix (see core/rawdb/schema.go) and share one physical keyspace, so any
// KeyValueStore implementation below is interchangeable.
package ethdb

import "context"

// KeyValueReader wraps the Has and Get methods of a backing data store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete methods of a backing data store.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// KeyValueRangeReader wraps the ordered, prefix-scoped iteration required by the
// transaction-location lookup.
type KeyValueRangeReader interface {
	// NewIterator returns an iterator over key/value pairs whose keys start with prefix,
	// beginning at the first key greater than or equal to append(prefix, start...), in
	// lexicographic order. The caller must call Release when done.
	NewIterator(prefix, start []byte) Iterator
}

// Iterator iterates over a KeyValueStore's key/value pairs in ascending key order.
type Iterator interface {
	Next() bool
	Error() error
	Key() []byte
	Value() []byte
	Release()
}

// Batch is a write-only accumulator that commits as a single atomic operation: either every
// Put/Delete queued on it becomes visible, or none does.
type Batch interface {
	KeyValueWriter
	ValueSize() int
	Write() error
	Reset()
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	NewBatch() Batch
}

// KeyValueStore is the full backend contract: the pluggable collaborator behind the storage
// engine. An in-memory map and an embedded on-disk tree are both valid implementations
// (memorydb, pebbledb, leveldb below).
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	KeyValueRangeReader
	Batcher
	Close() error
}

// Database is the KeyValueStore augmented with asynchronous read operations. Reads observe the last fully applied batch: GetAsync issued after a Write of a batch that
// touched the same key sees the new value, because the backing store serializes writes per
// namespace and readers take a consistent snapshot per call.
type Database interface {
	KeyValueStore

	// GetAsync performs Get without blocking the caller's goroutine; the result is delivered
	// on the returned channel exactly once.
	GetAsync(ctx context.Context, key []byte) <-chan AsyncResult

	// GetAsyncBatch resolves a batch of independent Get calls concurrently, returning results
	// in the same order as keys. A single failing key does not short-circuit the others.
	GetAsyncBatch(ctx context.Context, keys [][]byte) ([][]byte, error)
}

// AsyncResult is delivered on the channel returned by GetAsync.
type AsyncResult struct {
	Value []byte
	Err   error
}
