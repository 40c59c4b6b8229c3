// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package state

import (
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/trie"
)

// Storage is an account's in-memory slot cache: committed values loaded from (or already
// flushed to) the storage trie, keyed by the raw (unhashed) 32-byte slot.
type Storage map[common.Hash]common.Hash

func (s Storage) Copy() Storage {
	cpy := make(Storage, len(s))
	for k, v := range s {
		cpy[k] = v
	}
	return cpy
}

// stateObject is one account's working copy: its account record plus a lazily opened storage
// trie and the slot values staged on top of it. Mirrors go-ethereum's stateObject, trimmed to
// what a storage-sync/rebuild engine needs — no per-transaction journal, since nothing here
// executes the EVM.
type stateObject struct {
	db       *StateDB
	address  common.Address
	addrHash common.Hash

	account types.Account

	trie           *trie.Trie // storage trie, opened on first storage access
	originStorage  Storage    // values read from (or already committed to) the storage trie
	dirtyStorage   Storage    // values written since the object was loaded
	code           []byte
	dirtyCode      bool
	selfDestructed bool
}

func newStateObject(db *StateDB, addr common.Address, account types.Account) *stateObject {
	return &stateObject{
		db:            db,
		address:       addr,
		addrHash:      crypto.Keccak256Hash(addr[:]),
		account:       account,
		originStorage: make(Storage),
		dirtyStorage:  make(Storage),
	}
}

// empty reports whether the account meets EIP-161's emptiness test: zero nonce, zero balance,
// and no code.
func (s *stateObject) empty() bool {
	return s.account.Nonce == 0 &&
		(s.account.Balance == nil || s.account.Balance.Sign() == 0) &&
		s.account.CodeHash == types.EmptyCodeHash
}

func (s *stateObject) openStorageTrie() (*trie.Trie, error) {
	if s.trie != nil {
		return s.trie, nil
	}
	store := trie.NewStorageTrieStore(s.db.db.underlying(), s.addrHash)
	t, err := trie.New(s.account.StorageRoot, store, crypto.Keccak256)
	if err != nil {
		return nil, err
	}
	s.trie = t
	return t, nil
}

// GetState returns the current value of a storage slot, preferring a pending write over the
// trie's committed value.
func (s *stateObject) GetState(key common.Hash) (common.Hash, error) {
	if v, dirty := s.dirtyStorage[key]; dirty {
		return v, nil
	}
	return s.GetCommittedState(key)
}

// GetCommittedState returns the slot's trie-committed value, ignoring any pending write.
func (s *stateObject) GetCommittedState(key common.Hash) (common.Hash, error) {
	if v, ok := s.originStorage[key]; ok {
		return v, nil
	}
	t, err := s.openStorageTrie()
	if err != nil {
		return common.Hash{}, err
	}
	enc, ok, err := t.Get(crypto.Keccak256(key[:]))
	if err != nil {
		return common.Hash{}, err
	}
	var value common.Hash
	if ok {
		copy(value[32-len(enc):], enc)
	}
	s.originStorage[key] = value
	return value, nil
}

// SetState stages a write to a storage slot; it is flushed to the trie by updateStorageTrie
// during Commit.
func (s *stateObject) SetState(key, value common.Hash) {
	s.dirtyStorage[key] = value
}

func (s *stateObject) SetCode(codeHash common.Hash, code []byte) {
	s.code = code
	s.account.CodeHash = codeHash
	s.dirtyCode = true
}

func (s *stateObject) SetBalance(balance *big.Int) { s.account.Balance = balance }
func (s *stateObject) SetNonce(nonce uint64)        { s.account.Nonce = nonce }

// updateStorageTrie flushes every staged write into the account's storage trie and returns the
// new storage root. Values that trim to all-zero bytes delete the slot, matching go-ethereum's
// "store the minimal big-endian encoding, empty means absent" convention.
func (s *stateObject) updateStorageTrie() (common.Hash, error) {
	if len(s.dirtyStorage) == 0 {
		if s.account.StorageRoot != (common.Hash{}) {
			return s.account.StorageRoot, nil
		}
		t, err := s.openStorageTrie()
		if err != nil {
			return common.Hash{}, err
		}
		return t.Hash(), nil
	}
	t, err := s.openStorageTrie()
	if err != nil {
		return common.Hash{}, err
	}
	for key, value := range s.dirtyStorage {
		k := crypto.Keccak256(key[:])
		if value == (common.Hash{}) {
			if err := t.Update(k, nil); err != nil {
				return common.Hash{}, err
			}
		} else {
			if err := t.Update(k, trimLeadingZeroes(value[:])); err != nil {
				return common.Hash{}, err
			}
		}
		s.originStorage[key] = value
	}
	s.dirtyStorage = make(Storage)
	root, err := t.Commit()
	if err != nil {
		return common.Hash{}, err
	}
	s.account.StorageRoot = root
	return root, nil
}

func trimLeadingZeroes(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
