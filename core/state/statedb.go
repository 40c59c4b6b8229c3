// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package state

import (
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/rlp"
	"github.com/rollupchain/rgeth/trie"
)

// rlpAccount is the account record's wire/trie encoding: go-ethereum stores the account as an
// RLP list rather than types.Account's Go-native field order, so balance and the two hashes
// round-trip the same way across every client.
type rlpAccount struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// StateDB is the account-state trie handle the storage engine is built around: the global
// state trie keyed by hashed address, plus one lazily opened storage trie per account
// (core/rawdb's schema/accessors provide the underlying key-value persistence).
type StateDB struct {
	db          *Database
	trie        *trie.Trie
	stateObjects map[common.Address]*stateObject
}

// New opens a StateDB rooted at root (the zero hash for a brand new, empty state).
func New(root common.Hash, db *Database) (*StateDB, error) {
	store := trie.NewStateTrieStore(db.underlying())
	t, err := trie.New(root, store, crypto.Keccak256)
	if err != nil {
		return nil, err
	}
	return &StateDB{
		db:           db,
		trie:         t,
		stateObjects: make(map[common.Address]*stateObject),
	}, nil
}

// getStateObject returns the cached or trie-loaded object for addr, or nil if the account does
// not exist.
func (s *StateDB) getStateObject(addr common.Address) (*stateObject, error) {
	if obj, ok := s.stateObjects[addr]; ok {
		return obj, nil
	}
	hashedAddr := crypto.Keccak256(addr[:])
	enc, ok, err := s.trie.Get(hashedAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var acc rlpAccount
	if err := rlp.DecodeBytes(enc, &acc); err != nil {
		return nil, err
	}
	obj := newStateObject(s, addr, types.Account{
		Nonce:       acc.Nonce,
		Balance:     acc.Balance,
		StorageRoot: acc.StorageRoot,
		CodeHash:    acc.CodeHash,
	})
	s.stateObjects[addr] = obj
	return obj, nil
}

func (s *StateDB) getOrNewStateObject(addr common.Address) (*stateObject, error) {
	obj, err := s.getStateObject(addr)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		return obj, nil
	}
	obj = newStateObject(s, addr, types.Account{
		Balance:     new(big.Int),
		StorageRoot: types.EmptyRootHash,
		CodeHash:    types.EmptyCodeHash,
	})
	s.stateObjects[addr] = obj
	return obj, nil
}

// Exist reports whether addr has an account in the trie (created or loaded this session).
func (s *StateDB) Exist(addr common.Address) (bool, error) {
	obj, err := s.getStateObject(addr)
	return obj != nil && !obj.selfDestructed, err
}

// GetBalance, GetNonce, GetCodeHash, GetCode return the zero value for an account that does
// not exist, matching go-ethereum's StateDB read convention.
func (s *StateDB) GetBalance(addr common.Address) (*big.Int, error) {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return new(big.Int), err
	}
	return obj.account.Balance, nil
}

func (s *StateDB) GetNonce(addr common.Address) (uint64, error) {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return 0, err
	}
	return obj.account.Nonce, nil
}

func (s *StateDB) GetCodeHash(addr common.Address) (common.Hash, error) {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return common.Hash{}, err
	}
	return obj.account.CodeHash, nil
}

func (s *StateDB) GetCode(addr common.Address) ([]byte, error) {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return nil, err
	}
	if obj.code != nil {
		return obj.code, nil
	}
	code, err := s.db.ContractCode(obj.account.CodeHash)
	if err != nil {
		return nil, err
	}
	obj.code = code
	return code, nil
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) (common.Hash, error) {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return common.Hash{}, err
	}
	return obj.GetState(key)
}

func (s *StateDB) SetBalance(addr common.Address, balance *big.Int) error {
	obj, err := s.getOrNewStateObject(addr)
	if err != nil {
		return err
	}
	obj.SetBalance(balance)
	return nil
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) error {
	obj, err := s.getOrNewStateObject(addr)
	if err != nil {
		return err
	}
	obj.SetNonce(nonce)
	return nil
}

func (s *StateDB) SetCode(addr common.Address, code []byte) error {
	obj, err := s.getOrNewStateObject(addr)
	if err != nil {
		return err
	}
	codeHash := crypto.Keccak256Hash(code)
	obj.SetCode(codeHash, code)
	return s.db.WriteContractCode(codeHash, code)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) error {
	obj, err := s.getOrNewStateObject(addr)
	if err != nil {
		return err
	}
	obj.SetState(key, value)
	return nil
}

// SelfDestruct marks addr's account for removal from the trie at the next IntermediateRoot/
// Commit. It is a no-op if the account does not exist.
func (s *StateDB) SelfDestruct(addr common.Address) error {
	obj, err := s.getStateObject(addr)
	if err != nil || obj == nil {
		return err
	}
	obj.selfDestructed = true
	return nil
}

// IntermediateRoot flushes every loaded account's storage changes into its storage trie,
// updates the account trie accordingly, and returns the resulting root (mirrors go-ethereum's
// IntermediateRoot / the teacher's TrieBackedStateDB.IntermediateRoot). Each updated storage
// trie is committed on the way, which writes its new nodes to the backing store. deleteEmpty implements EIP-161: accounts meeting the
// emptiness test are removed rather than written back.
func (s *StateDB) IntermediateRoot(deleteEmpty bool) (common.Hash, error) {
	for addr, obj := range s.stateObjects {
		switch {
		case obj.selfDestructed:
			if err := s.trie.Update(crypto.Keccak256(addr[:]), nil); err != nil {
				return common.Hash{}, err
			}
		case deleteEmpty && obj.empty():
			if err := s.trie.Update(crypto.Keccak256(addr[:]), nil); err != nil {
				return common.Hash{}, err
			}
		default:
			if _, err := obj.updateStorageTrie(); err != nil {
				return common.Hash{}, err
			}
			enc, err := rlp.EncodeToBytes(rlpAccount{
				Nonce:       obj.account.Nonce,
				Balance:     nonZeroBalance(obj.account.Balance),
				StorageRoot: obj.account.StorageRoot,
				CodeHash:    obj.account.CodeHash,
			})
			if err != nil {
				return common.Hash{}, err
			}
			if err := s.trie.Update(crypto.Keccak256(addr[:]), enc); err != nil {
				return common.Hash{}, err
			}
		}
	}
	return s.trie.Hash(), nil
}

// Commit finalizes every loaded account (per IntermediateRoot's rules) and persists the
// resulting account and storage tries to the backing store, returning the new state root.
func (s *StateDB) Commit(deleteEmpty bool) (common.Hash, error) {
	if _, err := s.IntermediateRoot(deleteEmpty); err != nil {
		return common.Hash{}, err
	}
	return s.trie.Commit()
}

func nonZeroBalance(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
