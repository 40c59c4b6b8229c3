// Copyright 2021 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package pebbledb implements the ethdb.KeyValueStore backend on top of cockroachdb/pebble,
// the on-disk store used by full nodes that need state to survive a restart.
package pebbledb

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/rollupchain/rgeth/ethdb"
	"github.com/rollupchain/rgeth/log"
)

// Database wraps a pebble.DB to satisfy ethdb.Database.
type Database struct {
	db  *pebble.DB
	log log.Logger
}

// New opens (or creates) a pebble database at path.
func New(path string, cache, handles int, namespace string, readonly bool) (*Database, error) {
	opt := &pebble.Options{
		Cache:                       pebble.NewCache(int64(cache * 1024 * 1024)),
		MaxOpenFiles:                handles,
		MaxConcurrentCompactions:    func() int { return 3 },
		ReadOnly:                    readonly,
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       1000,
	}
	db, err := pebble.Open(path, opt)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, log: log.New("database", path)}, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	_, closer, err := d.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	v, closer, err := d.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	closer.Close()
	return cp, nil
}

func (d *Database) Put(key, value []byte) error {
	return d.db.Set(key, value, pebble.NoSync)
}

func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, pebble.NoSync)
}

func (d *Database) NewBatch() ethdb.Batch {
	return &batch{b: d.db.NewBatch(), db: d.db}
}

func (d *Database) NewIterator(prefix, start []byte) ethdb.Iterator {
	lo := append(append([]byte{}, prefix...), start...)
	hi := upperBound(prefix)
	iter, err := d.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return &erroringIterator{err: err}
	}
	return &iterator{iter: iter, first: true}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// upperBound returns the smallest key greater than every key with the given prefix, or nil if
// prefix is all 0xff bytes (meaning "no upper bound").
func upperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			up := make([]byte, i+1)
			copy(up, prefix)
			up[i]++
			return up
		}
	}
	return nil
}

type batch struct {
	b    *pebble.Batch
	db   *pebble.DB
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.b.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	b.size += len(key)
	return b.b.Delete(key, nil)
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	return b.db.Apply(b.b, pebble.NoSync)
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

type iterator struct {
	iter  *pebble.Iterator
	first bool
}

func (it *iterator) Next() bool {
	if it.first {
		it.first = false
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *iterator) Error() error { return it.iter.Error() }

func (it *iterator) Key() []byte {
	return bytes.Clone(it.iter.Key())
}

func (it *iterator) Value() []byte {
	v, _ := it.iter.ValueAndErr()
	return bytes.Clone(v)
}

func (it *iterator) Release() { it.iter.Close() }

type erroringIterator struct{ err error }

func (it *erroringIterator) Next() bool     { return false }
func (it *erroringIterator) Error() error   { return it.err }
func (it *erroringIterator) Key() []byte    { return nil }
func (it *erroringIterator) Value() []byte  { return nil }
func (it *erroringIterator) Release()       {}
