// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package state

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
)

// rawdbStore is the subset of *rawdb.Database the state package needs; kept as an interface
// here (rather than importing core/rawdb directly) so core/state never needs to know about
// core/rawdb's header/receipt/body accessors, only its trie-node and code tables.
type rawdbStore interface {
	ReadStateTrieNode(nodeHash common.Hash) ([]byte, error)
	WriteStateTrieNode(nodeHash common.Hash, node []byte) error
	ReadStorageTrieNode(addrHash, nodeHash common.Hash) ([]byte, error)
	WriteStorageTrieNode(addrHash, nodeHash common.Hash, node []byte) error
	ReadCode(codeHash common.Hash) ([]byte, error)
	WriteCode(codeHash common.Hash, code []byte) error
}

// codeCacheSize bounds the in-memory contract-code LRU, mirroring core/blockchain.go's own
// code cache sizing in the teacher.
const codeCacheSize = 64

// Database adapts a core/rawdb.Database (or anything with the same trie/code accessors) to
// the state package's needs: opening account and storage tries, and caching decoded code.
type Database struct {
	db        rawdbStore
	codeCache *lru.Cache
}

// NewDatabase wraps db for use by a StateDB.
func NewDatabase(db rawdbStore) *Database {
	cache, err := lru.New(codeCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which codeCacheSize never is.
		panic("state: failed to allocate code cache: " + err.Error())
	}
	return &Database{db: db, codeCache: cache}
}

func (d *Database) underlying() rawdbStore { return d.db }

// ContractCode returns the bytecode for codeHash, served from the LRU cache when present.
func (d *Database) ContractCode(codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return nil, nil
	}
	if v, ok := d.codeCache.Get(codeHash); ok {
		return v.([]byte), nil
	}
	code, err := d.db.ReadCode(codeHash)
	if err != nil {
		return nil, err
	}
	d.codeCache.Add(codeHash, code)
	return code, nil
}

// WriteContractCode stores code under codeHash and primes the cache with it.
func (d *Database) WriteContractCode(codeHash common.Hash, code []byte) error {
	if err := d.db.WriteCode(codeHash, code); err != nil {
		return err
	}
	d.codeCache.Add(codeHash, code)
	return nil
}
