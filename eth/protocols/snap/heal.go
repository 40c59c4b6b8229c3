// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"errors"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/rlp"
	"github.com/rollupchain/rgeth/trie"
)

// NodeBatchSize bounds how many paths the state/storage healers fetch per GetTrieNodes round.
const NodeBatchSize = 900

// errMalformedNode is returned when a raw node encoding is neither a 17-item branch nor a
// 2-item extension/leaf, the only two shapes a Merkle Patricia node ever takes.
var errMalformedNode = errors.New("snap: malformed trie node encoding")

// nibblePath is a partial trie path awaiting a GetTrieNodes fetch: one nibble per byte, with no
// terminator (healing always targets an internal or as-yet-unresolved node, never a known leaf).
type nibblePath []byte

func (p nibblePath) clone() nibblePath {
	out := make(nibblePath, len(p))
	copy(out, p)
	return out
}

// childRef is one child a node points at by hash rather than embedding inline.
type childRef struct {
	Path nibblePath
	Hash common.Hash
}

// decodeNodeRef inspects one child slot of a raw node encoding: an empty string means no child,
// a 32-byte string is a hash reference, anything else is an inline-embedded sub-node that needs
// no separate fetch since its bytes are already present.
func decodeNodeRef(raw []byte) (hash common.Hash, isHashRef bool) {
	kind, content, _, err := rlp.Split(raw)
	if err != nil || kind != rlp.String || len(content) != 32 {
		return common.Hash{}, false
	}
	copy(hash[:], content)
	return hash, true
}

// missingChildren decodes the raw encoding of the node living at path and reports which of its
// children are referenced by hash and not yet present in store, per node_missing_children: a
// leaf instead returns its decoded value so the caller can schedule bytecode/storage follow-up,
// and a fully inline node (no hash children at all) reports no missing children.
func missingChildren(path nibblePath, enc []byte, known func(common.Hash) bool) (children []childRef, leaf []byte, isLeaf bool, err error) {
	var items []rlp.RawValue
	if err := rlp.DecodeBytes(enc, &items); err != nil {
		return nil, nil, false, err
	}
	switch len(items) {
	case 17:
		for i := 0; i < 16; i++ {
			hash, ok := decodeNodeRef(items[i])
			if !ok || known(hash) {
				continue
			}
			children = append(children, childRef{Path: append(path.clone(), byte(i)), Hash: hash})
		}
		return children, nil, false, nil
	case 2:
		var compact []byte
		if err := rlp.DecodeBytes(items[0], &compact); err != nil {
			return nil, nil, false, err
		}
		nibbles, leafFlag := trie.DecodeCompactPath(compact)
		if leafFlag {
			var value []byte
			if err := rlp.DecodeBytes(items[1], &value); err != nil {
				return nil, nil, false, err
			}
			return nil, value, true, nil
		}
		hash, ok := decodeNodeRef(items[1])
		if !ok || known(hash) {
			return nil, nil, false, nil
		}
		return []childRef{{Path: append(path.clone(), nibbles...), Hash: hash}}, nil, false, nil
	default:
		return nil, nil, false, errMalformedNode
	}
}

// stateHealer walks the state trie's gaps breadth-first from the root, fetching whichever nodes
// are missing in store and decoding completed leaves into pending bytecode/storage work.
type stateHealer struct {
	store       trieStore
	keccak256   func(...[]byte) []byte
	pending     []nibblePath
	stale       bool
	newCode     chan<- common.Hash
	newStorage  chan<- common.Hash
}

func newStateHealer(store trieStore, keccak256 func(...[]byte) []byte, resume []nibblePath, newCode, newStorage chan<- common.Hash) *stateHealer {
	pending := resume
	if pending == nil {
		pending = []nibblePath{{}}
	}
	return &stateHealer{store: store, keccak256: keccak256, pending: pending, newCode: newCode, newStorage: newStorage}
}

// batch pops up to NodeBatchSize paths for the caller to issue a GetTrieNodes request for.
func (h *stateHealer) batch() []nibblePath {
	n := NodeBatchSize
	if n > len(h.pending) {
		n = len(h.pending)
	}
	batch := h.pending[:n]
	h.pending = h.pending[n:]
	return batch
}

// accept processes one fetched node: verifying its hash, writing it to store, and extending the
// pending set with whatever children it still doesn't resolve. A verification failure re-queues
// path for a retry against a different peer rather than discarding it.
func (h *stateHealer) accept(path nibblePath, want common.Hash, enc []byte) error {
	if len(enc) == 0 {
		h.pending = append(h.pending, path)
		h.stale = true
		return nil
	}
	var got common.Hash
	copy(got[:], h.keccak256(enc))
	if got != want {
		h.pending = append(h.pending, path)
		return trie.ErrMissingNode{NodeHash: want}
	}
	if err := h.store.Put(want, enc); err != nil {
		return err
	}
	children, leaf, isLeaf, err := missingChildren(path, enc, func(common.Hash) bool { return false })
	if err != nil {
		return err
	}
	if isLeaf {
		var acc struct {
			Nonce       uint64
			Balance     []byte
			StorageRoot common.Hash
			CodeHash    common.Hash
		}
		if err := rlp.DecodeBytes(leaf, &acc); err == nil {
			if acc.CodeHash != (common.Hash{}) && h.newCode != nil {
				h.newCode <- acc.CodeHash
			}
			if acc.StorageRoot != (common.Hash{}) && h.newStorage != nil {
				h.newStorage <- acc.StorageRoot
			}
		}
		return nil
	}
	for _, c := range children {
		h.pending = append(h.pending, c.Path)
	}
	return nil
}

func (h *stateHealer) done() bool { return len(h.pending) == 0 && !h.stale }

// storageHealer is the per-account analogue of stateHealer: one pending-path deque per account
// whose storage trie still has gaps after the range sweep.
type storageHealer struct {
	store     func(addrHash common.Hash) trieStore
	keccak256 func(...[]byte) []byte
	pending   map[common.Hash][]nibblePath
	stale     bool
}

func newStorageHealer(store func(common.Hash) trieStore, keccak256 func(...[]byte) []byte, resume map[common.Hash][]nibblePath) *storageHealer {
	pending := resume
	if pending == nil {
		pending = make(map[common.Hash][]nibblePath)
	}
	return &storageHealer{store: store, keccak256: keccak256, pending: pending}
}

func (h *storageHealer) addAccount(addrHash common.Hash) {
	if _, ok := h.pending[addrHash]; !ok {
		h.pending[addrHash] = []nibblePath{{}}
	}
}

func (h *storageHealer) accept(addrHash common.Hash, path nibblePath, want common.Hash, enc []byte) error {
	if len(enc) == 0 {
		h.pending[addrHash] = append(h.pending[addrHash], path)
		h.stale = true
		return nil
	}
	var got common.Hash
	copy(got[:], h.keccak256(enc))
	if got != want {
		h.pending[addrHash] = append(h.pending[addrHash], path)
		return trie.ErrMissingNode{NodeHash: want}
	}
	store := h.store(addrHash)
	if err := store.Put(want, enc); err != nil {
		return err
	}
	children, _, isLeaf, err := missingChildren(path, enc, func(common.Hash) bool { return false })
	if err != nil {
		return err
	}
	if isLeaf {
		if len(h.pending[addrHash]) == 0 {
			delete(h.pending, addrHash)
		}
		return nil
	}
	for _, c := range children {
		h.pending[addrHash] = append(h.pending[addrHash], c.Path)
	}
	if len(h.pending[addrHash]) == 0 {
		delete(h.pending, addrHash)
	}
	return nil
}

func (h *storageHealer) done() bool { return len(h.pending) == 0 && !h.stale }
