// Copyright 2018 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package leveldb implements the ethdb.KeyValueStore backend on top of syndtr/goleveldb,
// offered alongside pebbledb to demonstrate that the storage engine is genuinely pluggable:
// any backend satisfying ethdb.KeyValueStore can be substituted without touching callers.
package leveldb

import (
	"bytes"

	"github.com/rollupchain/rgeth/ethdb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Database wraps a goleveldb database handle.
type Database struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb database at path.
func New(path string, cache, handles int, readonly bool) (*Database, error) {
	options := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		ReadOnly:               readonly,
	}
	db, err := leveldb.OpenFile(path, options)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

func (d *Database) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (d *Database) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *Database) NewBatch() ethdb.Batch {
	return &batch{db: d.db, b: new(leveldb.Batch)}
}

func (d *Database) NewIterator(prefix, start []byte) ethdb.Iterator {
	r := bytesPrefixRange(prefix, start)
	return &iterator{iter: d.db.NewIterator(r, nil)}
}

func (d *Database) Close() error {
	return d.db.Close()
}

func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(r.Start, start...)
	return r
}

type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

type iterator struct {
	iter iterator_
}

// iterator_ narrows the goleveldb iterator down to the methods we use, to keep this file
// readable without importing the concrete type name twice.
type iterator_ interface {
	Next() bool
	Error() error
	Key() []byte
	Value() []byte
	Release()
}

func (it *iterator) Next() bool     { return it.iter.Next() }
func (it *iterator) Error() error   { return it.iter.Error() }
func (it *iterator) Key() []byte    { return bytes.Clone(it.iter.Key()) }
func (it *iterator) Value() []byte  { return bytes.Clone(it.iter.Value()) }
func (it *iterator) Release()       { it.iter.Release() }
