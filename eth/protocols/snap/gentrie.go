// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"bytes"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/rlp"
	"github.com/rollupchain/rgeth/trie"
)

// accountEntry is one synced (hashed address, RLP-encoded account) pair, the unit the
// account-range phase buffers and the rebuild phase consumes. Entries within a segment are
// buffered in ascending hash order, the order Update must see them in for the checkpoint cursor
// below to be meaningful.
type accountEntry struct {
	Hash common.Hash
	Body []byte
}

// trieStore is the NodeReader/NodeWriter pair a trie needs; satisfied by both
// trie.StateTrieStore and trie.StorageTrieStore.
type trieStore interface {
	trie.NodeReader
	trie.NodeWriter
}

// rebuildResult is what one rebuildTrie call reports back to the driver.
type rebuildResult struct {
	Root     common.Hash
	Cursors  [StateTrieSegments]common.Hash
	Mismatch []common.Hash // accounts whose stored storage root disagrees with the trie rebuild
}

// rebuildTrie inserts every buffered account into the state trie, segment by segment in
// ascending order, resuming each segment past its persisted cursor. It calls checkpoint after
// every batchSize insertions so a crash mid-rebuild loses at most one batch of work, and collects
// "mismatched storage tries" — accounts whose account record claims a storage root the storage
// phase never actually finished syncing — for the healer to patch afterward.
func rebuildTrie(
	store trieStore,
	keccak256 func(...[]byte) []byte,
	startRoot common.Hash,
	segments [StateTrieSegments][]accountEntry,
	startCursors [StateTrieSegments]common.Hash,
	syncedStorageRoots func(addrHash common.Hash) (common.Hash, bool),
	batchSize int,
	checkpoint func(rebuildResult) error,
) (rebuildResult, error) {
	t, err := trie.New(startRoot, store, keccak256)
	if err != nil {
		return rebuildResult{}, err
	}

	var result rebuildResult
	result.Cursors = startCursors
	count := 0
	for seg := 0; seg < StateTrieSegments; seg++ {
		cursor := startCursors[seg]
		for _, e := range segments[seg] {
			if bytes.Compare(e.Hash[:], cursor[:]) <= 0 {
				continue // already inserted in a previous, checkpointed run
			}
			if err := t.Update(e.Hash[:], e.Body); err != nil {
				return rebuildResult{}, err
			}
			var acc types.Account
			if err := rlp.DecodeBytes(e.Body, &acc); err != nil {
				return rebuildResult{}, err
			}
			if synced, ok := syncedStorageRoots(e.Hash); !ok || synced != acc.StorageRoot {
				if acc.StorageRoot != emptyStorageRoot(keccak256) {
					result.Mismatch = append(result.Mismatch, e.Hash)
				}
			}
			cursor = e.Hash
			count++
			if count%batchSize == 0 {
				// Commit marks the trie committed, so resume building via a fresh handle
				// rooted at what was just flushed — the same pattern a restarted process uses
				// to pick a rebuild back up from its checkpoint.
				root, err := t.Commit()
				if err != nil {
					return rebuildResult{}, err
				}
				t, err = trie.New(root, store, keccak256)
				if err != nil {
					return rebuildResult{}, err
				}
				result.Root = root
				result.Cursors[seg] = cursor
				if err := checkpoint(result); err != nil {
					return rebuildResult{}, err
				}
			}
		}
		result.Cursors[seg] = cursor
	}
	root, err := t.Commit()
	if err != nil {
		return rebuildResult{}, err
	}
	result.Root = root
	return result, nil
}

func emptyStorageRoot(keccak256 func(...[]byte) []byte) common.Hash {
	var h common.Hash
	copy(h[:], keccak256([]byte{0x80}))
	return h
}

// buildTrieFromEntries inserts every entry into a fresh trie backed by store and commits it,
// the shape the storage-range phase's buffered slots for a single account are folded into
// during rebuild, mirroring rebuildTrie's account-trie construction at storage-trie scale.
func buildTrieFromEntries(store trieStore, keccak256 func(...[]byte) []byte, entries []accountEntry) (common.Hash, error) {
	t, err := trie.New(common.Hash{}, store, keccak256)
	if err != nil {
		return common.Hash{}, err
	}
	for _, e := range entries {
		if err := t.Update(e.Hash[:], e.Body); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Commit()
}
