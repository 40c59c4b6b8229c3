// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"bytes"
	"errors"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/trie"
)

// ErrRangeInvalid is returned by verifyRange when a peer's account/storage range reply cannot
// possibly be consistent with the claimed root: out-of-order keys, a key below origin, or an
// entry whose value disagrees with what the proof commits to.
var ErrRangeInvalid = errors.New("snap: range proof invalid")

// verifyRange checks that keys/values — claimed to be every trie entry in [origin, limit] under
// root — are internally consistent and, where proof covers them, actually committed to by root.
// complete reports whether the reply reaches limit; false with a nil error means the peer sent a
// valid but partial chunk that must be re-queued from the next unfetched key.
func verifyRange(root common.Hash, origin, limit common.Hash, keys []common.Hash, values [][]byte, proof [][]byte, keccak256 func(...[]byte) []byte) (complete bool, err error) {
	if len(keys) != len(values) {
		return false, ErrRangeInvalid
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1][:], keys[i][:]) >= 0 {
			return false, ErrRangeInvalid
		}
	}
	if len(keys) > 0 && bytes.Compare(keys[0][:], origin[:]) < 0 {
		return false, ErrRangeInvalid
	}

	if len(proof) == 0 {
		// A peer omits the proof only when the reply is the entire remaining trie content with
		// nothing left to bound. Such a reply is accepted as complete as it stands; nothing here
		// checks its size.
		return true, nil
	}

	db := trie.NewProofDB()
	for _, n := range proof {
		var h common.Hash
		copy(h[:], keccak256(n))
		if err := db.Put(h, n); err != nil {
			return false, err
		}
	}
	for i, key := range keys {
		got, verr := trie.VerifyProof(root, key[:], db, keccak256)
		if verr != nil {
			return false, verr
		}
		if !bytes.Equal(got, values[i]) {
			return false, ErrRangeInvalid
		}
	}

	probe := origin
	if len(keys) > 0 {
		probe = nextKey(keys[len(keys)-1])
	}
	next, verr := trie.VerifyProof(root, probe[:], db, keccak256)
	if verr != nil {
		var missing trie.ErrMissingNode
		if errors.As(verr, &missing) {
			// The proof doesn't reach far enough to prove or disprove a key past the last one
			// returned — an ordinary partial chunk, not a malformed response.
			return false, nil
		}
		return false, verr
	}
	return next == nil && bytes.Compare(probe[:], limit[:]) > 0, nil
}

// nextKey returns the lexicographically next 32-byte value after h, saturating at all-0xff.
func nextKey(h common.Hash) common.Hash {
	orig := h
	for i := len(h) - 1; i >= 0; i-- {
		h[i]++
		if h[i] != 0 {
			return h
		}
	}
	return orig // h was already the maximum value
}
