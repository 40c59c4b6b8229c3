// Copyright 2018 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package memorydb implements the in-memory ethdb.KeyValueStore backend: the simplest valid
// realization of the interface, used by tests and by nodes that don't need persistence across
// restarts.
package memorydb

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rollupchain/rgeth/ethdb"
)

var (
	ErrMemorydbClosed    = errors.New("memorydb: closed")
	ErrMemorydbNotFound  = errors.New("memorydb: not found")
	ErrMemorydbBatchFull = errors.New("memorydb: batch too large")
)

// Database is an ephemeral key-value store backed by a Go map, guarded by a single mutex so
// that batches commit atomically: either all operations in a batch become visible, or none do.
type Database struct {
	lock sync.RWMutex
	db   map[string][]byte
}

// New returns a new empty in-memory database.
func New() *Database {
	return &Database{db: make(map[string][]byte)}
}

func (d *Database) Has(key []byte) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return false, ErrMemorydbClosed
	}
	_, ok := d.db[string(key)]
	return ok, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return nil, ErrMemorydbClosed
	}
	if v, ok := d.db[string(key)]; ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		return cp, nil
	}
	return nil, nil
}

func (d *Database) Put(key, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return ErrMemorydbClosed
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	d.db[string(key)] = cp
	return nil
}

func (d *Database) Delete(key []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return ErrMemorydbClosed
	}
	delete(d.db, string(key))
	return nil
}

func (d *Database) NewBatch() ethdb.Batch {
	return &batch{db: d}
}

func (d *Database) NewIterator(prefix, start []byte) ethdb.Iterator {
	d.lock.RLock()
	defer d.lock.RUnlock()

	prefixStr := string(prefix)
	startStr := prefixStr + string(start)

	keys := make([]string, 0, len(d.db))
	for k := range d.db {
		if strings.HasPrefix(k, prefixStr) && k >= startStr {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = d.db[k]
	}
	return &iterator{keys: keys, values: values, idx: -1}
}

func (d *Database) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.db = nil
	return nil
}

// Len returns the number of entries currently stored, for tests.
func (d *Database) Len() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.db)
}

type keyvalue struct {
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db   *Database
	ops  []keyvalue
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.ops = append(b.ops, keyvalue{append([]byte{}, key...), append([]byte{}, value...), false})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, keyvalue{append([]byte{}, key...), nil, true})
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	if b.db.db == nil {
		return ErrMemorydbClosed
	}
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.db, string(op.key))
		} else {
			b.db.db[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

type iterator struct {
	keys   []string
	values [][]byte
	idx    int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *iterator) Error() error { return nil }

func (it *iterator) Key() []byte {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.idx])
}

func (it *iterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.values) {
		return nil
	}
	return it.values[it.idx]
}

func (it *iterator) Release() {}
