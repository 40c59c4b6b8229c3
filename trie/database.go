// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import "github.com/rollupchain/rgeth/common"

// NodeReader loads a node's encoding by hash, as stored by core/rawdb's state- or
// storage-trie-node tables. A miss is reported as (nil, nil): an empty encoding is never
// valid, so callers treat a zero-length result as "not found" the same way core/rawdb's own
// accessors do.
type NodeReader interface {
	Get(hash common.Hash) ([]byte, error)
}

// NodeWriter persists a node's encoding by hash. Trie.Commit calls this once per dirty node
// collected during hashing, in the order the hasher produced them (children before parents).
type NodeWriter interface {
	Put(hash common.Hash, blob []byte) error
}

// StateTrieStore and StorageTrieStore adapt core/rawdb.Database's two distinct trie-node
// tables (state trie nodes are keyed by hash alone; storage trie nodes are additionally
// namespaced by the owning account's address hash) to the single NodeReader/NodeWriter shape
// Trie needs, so one Trie implementation serves both the global state trie and every
// per-account storage trie.

type rawdbReader interface {
	ReadStateTrieNode(nodeHash common.Hash) ([]byte, error)
	WriteStateTrieNode(nodeHash common.Hash, node []byte) error
	ReadStorageTrieNode(addrHash, nodeHash common.Hash) ([]byte, error)
	WriteStorageTrieNode(addrHash, nodeHash common.Hash, node []byte) error
}

// StateTrieStore wraps a core/rawdb.Database for use as the backing store of the global
// account-state trie.
type StateTrieStore struct {
	db rawdbReader
}

func NewStateTrieStore(db rawdbReader) *StateTrieStore { return &StateTrieStore{db: db} }

func (s *StateTrieStore) Get(hash common.Hash) ([]byte, error) { return s.db.ReadStateTrieNode(hash) }
func (s *StateTrieStore) Put(hash common.Hash, blob []byte) error {
	return s.db.WriteStateTrieNode(hash, blob)
}

// StorageTrieStore wraps a core/rawdb.Database for use as the backing store of one account's
// storage trie, namespaced by that account's address hash.
type StorageTrieStore struct {
	db       rawdbReader
	addrHash common.Hash
}

func NewStorageTrieStore(db rawdbReader, addrHash common.Hash) *StorageTrieStore {
	return &StorageTrieStore{db: db, addrHash: addrHash}
}

func (s *StorageTrieStore) Get(hash common.Hash) ([]byte, error) {
	return s.db.ReadStorageTrieNode(s.addrHash, hash)
}
func (s *StorageTrieStore) Put(hash common.Hash, blob []byte) error {
	return s.db.WriteStorageTrieNode(s.addrHash, hash, blob)
}
