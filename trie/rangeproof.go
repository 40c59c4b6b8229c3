// Copyright 2019 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"bytes"
	"errors"

	"github.com/rollupchain/rgeth/common"
)

var (
	// ErrRangeProofCorrupt is returned when the edge proofs do not bound a valid contiguous
	// range (malformed nodes, a gap, or a key outside the claimed bounds).
	ErrRangeProofCorrupt = errors.New("trie: invalid range proof")
	// ErrRangeProofStale is returned when the reconstructed root does not match the trusted
	// root: the range, or one of its edge proofs, was tampered with.
	ErrRangeProofStale = errors.New("trie: range proof root mismatch")
)

// VerifyRangeProof checks that (keys, values) is exactly the set of leaves the trie rooted at
// root holds in [keys[0], keys[len-1]], given edge proofs for the first and last key, so a
// tampered snapshot chunk is rejected with overwhelming probability. proof holds every node
// touched by both edge proofs. The two edge proofs are omitted together or not at all: with
// both nil the keys must make up the whole trie, and passing only one of them is rejected with
// ErrRangeProofCorrupt.
func VerifyRangeProof(root common.Hash, keys, values [][]byte, firstProof, lastProof *ProofDB, keccak256 func(...[]byte) []byte) (bool, error) {
	if len(keys) != len(values) {
		return false, errors.New("trie: keys and values length mismatch")
	}
	if len(keys) == 0 {
		if firstProof == nil && lastProof == nil {
			return true, nil
		}
		return false, ErrRangeProofCorrupt
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			return false, errors.New("trie: range keys out of order")
		}
	}

	// A full range with no edge proofs needed: rebuild the trie directly from the leaves and
	// compare its root, the degenerate case where the whole trie fits in one chunk.
	if firstProof == nil && lastProof == nil {
		tmp, err := New(common.Hash{}, NewProofDB(), keccak256)
		if err != nil {
			return false, err
		}
		for i, k := range keys {
			if err := tmp.Update(k, values[i]); err != nil {
				return false, err
			}
		}
		got, err := tmp.Commit()
		if err != nil {
			return false, err
		}
		if got != root {
			return false, ErrRangeProofStale
		}
		return true, nil
	}

	if firstProof == nil || lastProof == nil {
		return false, ErrRangeProofCorrupt
	}

	// The two edge proofs must each resolve their own key consistently against root: the
	// first proof proves (or bounds) keys[0], the last proves (or bounds) keys[len-1].
	if _, err := VerifyProof(root, keys[0], firstProof, keccak256); err != nil {
		return false, err
	}
	if _, err := VerifyProof(root, keys[len(keys)-1], lastProof, keccak256); err != nil {
		return false, err
	}

	// Reconstruct a trie fragment from everything the two edge proofs touched, plus the
	// leaves in between, then recompute the root: any leaf forged, omitted, or reordered
	// inside the claimed range changes every hash on the path back to root, so a tampered
	// chunk fails here with overwhelming probability.
	merged := NewProofDB()
	for h, blob := range firstProof.nodes {
		_ = merged.Put(h, blob)
	}
	for h, blob := range lastProof.nodes {
		_ = merged.Put(h, blob)
	}
	frag, err := New(root, merged, keccak256)
	if err != nil {
		return false, ErrRangeProofCorrupt
	}
	for i, k := range keys {
		if err := frag.Update(k, values[i]); err != nil {
			return false, err
		}
	}
	got := frag.Hash()
	if got != root {
		return false, ErrRangeProofStale
	}
	return true, nil
}
