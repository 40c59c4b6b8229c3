// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"bytes"
	"sort"
	"testing"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/trie"
	"github.com/stretchr/testify/require"
)

type rangeMemStore struct{ nodes map[common.Hash][]byte }

func newRangeMemStore() *rangeMemStore { return &rangeMemStore{nodes: make(map[common.Hash][]byte)} }
func (m *rangeMemStore) Get(hash common.Hash) ([]byte, error) { return m.nodes[hash], nil }
func (m *rangeMemStore) Put(hash common.Hash, blob []byte) error {
	m.nodes[hash] = append([]byte(nil), blob...)
	return nil
}

// rangeFixture builds a small trie keyed directly by 32-byte hashes (as an account-range reply's
// keys always are), returning the committed root, the keys in ascending order, and their values.
func rangeFixture(t *testing.T) (store *rangeMemStore, root common.Hash, keys []common.Hash, values [][]byte) {
	t.Helper()
	store = newRangeMemStore()
	raw := map[common.Hash]string{
		common.HexToHash("0x1000000000000000000000000000000000000000000000000000000000000000"): "alpha",
		common.HexToHash("0x2000000000000000000000000000000000000000000000000000000000000000"): "beta",
		common.HexToHash("0x3000000000000000000000000000000000000000000000000000000000000000"): "gamma",
		common.HexToHash("0x4000000000000000000000000000000000000000000000000000000000000000"): "delta",
	}
	tr, err := trie.New(common.Hash{}, store, crypto.Keccak256)
	require.NoError(t, err)
	for k, v := range raw {
		require.NoError(t, tr.Update(k[:], []byte(v)))
	}
	root, err = tr.Commit()
	require.NoError(t, err)

	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		values = append(values, []byte(raw[k]))
	}
	return store, root, keys, values
}

func proveAll(t *testing.T, store *rangeMemStore, root common.Hash, keys []common.Hash) *trie.ProofDB {
	t.Helper()
	tr, err := trie.New(root, store, crypto.Keccak256)
	require.NoError(t, err)
	proof := trie.NewProofDB()
	for _, k := range keys {
		require.NoError(t, tr.Prove(k[:], proof))
	}
	return proof
}

// TestVerifyRangeSoundness is the range-verification soundness property: a reply covering a
// trie's full key space, proven with a real Prove() output, verifies as complete, and
// tampering with any single value breaks verification.
func TestVerifyRangeSoundness(t *testing.T) {
	store, root, keys, values := rangeFixture(t)
	proof := proveAll(t, store, root, keys)

	complete, err := verifyRange(root, common.Hash{}, maxHash(), keys, values, proof.Nodes(), crypto.Keccak256)
	require.NoError(t, err)
	require.True(t, complete)

	tampered := append([][]byte(nil), values...)
	tampered[0] = []byte("not-the-real-value")
	_, err = verifyRange(root, common.Hash{}, maxHash(), keys, tampered, proof.Nodes(), crypto.Keccak256)
	require.ErrorIs(t, err, ErrRangeInvalid)
}

// TestVerifyRangePartialChunk is the "valid but partial reply" case: a reply covering only a
// prefix of the requested range must verify as incomplete (so the caller re-queues the rest)
// without being flagged invalid.
func TestVerifyRangePartialChunk(t *testing.T) {
	store, root, keys, values := rangeFixture(t)
	partialKeys := keys[:2]
	partialValues := values[:2]
	proof := proveAll(t, store, root, partialKeys)

	complete, err := verifyRange(root, common.Hash{}, maxHash(), partialKeys, partialValues, proof.Nodes(), crypto.Keccak256)
	require.NoError(t, err)
	require.False(t, complete)
}

// TestVerifyRangeRejectsOutOfOrderKeys is the malformed-reply edge case: keys must arrive in
// strictly ascending order regardless of what the trie content actually is.
func TestVerifyRangeRejectsOutOfOrderKeys(t *testing.T) {
	k1 := common.HexToHash("0x01")
	k2 := common.HexToHash("0x02")
	_, err := verifyRange(common.Hash{}, common.Hash{}, maxHash(), []common.Hash{k2, k1}, [][]byte{{1}, {2}}, nil, crypto.Keccak256)
	require.ErrorIs(t, err, ErrRangeInvalid)
}

// TestVerifyRangeEmptyReplyTrusted matches the documented simplification: an empty proof is
// trusted as "this is the entire remaining trie content", with no proof verification and no
// size check.
func TestVerifyRangeEmptyReplyTrusted(t *testing.T) {
	complete, err := verifyRange(common.Hash{}, common.Hash{}, maxHash(), nil, nil, nil, crypto.Keccak256)
	require.NoError(t, err)
	require.True(t, complete)
}

func TestNextKeySaturates(t *testing.T) {
	require.Equal(t, maxHash(), nextKey(maxHash()))
	var want common.Hash
	want[31] = 1
	require.Equal(t, want, nextKey(common.Hash{}))
}
