// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"testing"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/stretchr/testify/require"
)

// memStore is a tiny in-memory NodeReader/NodeWriter used only by these tests, standing in
// for a core/rawdb.StateTrieStore-backed trie without pulling in the rawdb package.
type memStore struct {
	nodes map[common.Hash][]byte
}

func newMemStore() *memStore { return &memStore{nodes: make(map[common.Hash][]byte)} }

func (m *memStore) Get(hash common.Hash) ([]byte, error) { return m.nodes[hash], nil }
func (m *memStore) Put(hash common.Hash, blob []byte) error {
	m.nodes[hash] = append([]byte(nil), blob...)
	return nil
}

func newTestTrie(t *testing.T) (*Trie, *memStore) {
	t.Helper()
	store := newMemStore()
	tr, err := New(common.Hash{}, store, crypto.Keccak256)
	require.NoError(t, err)
	return tr, store
}

func TestEmptyTrieHash(t *testing.T) {
	tr, _ := newTestTrie(t)
	root := tr.Hash()
	require.Equal(t, common.BytesToHash(crypto.Keccak256([]byte{0x80})), root)
}

func TestInsertGetRoundTrip(t *testing.T) {
	tr, _ := newTestTrie(t)
	entries := map[string]string{
		"doe":    "reindeer",
		"dog":    "puppy",
		"dogglesworth": "cat",
	}
	for k, v := range entries {
		require.NoError(t, tr.Update([]byte(k), []byte(v)))
	}
	for k, v := range entries {
		got, ok, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(got))
	}
	_, ok, err := tr.Get([]byte("nonexistent"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRootHashDeterministic(t *testing.T) {
	tr1, _ := newTestTrie(t)
	tr2, _ := newTestTrie(t)
	pairs := [][2]string{{"a", "1"}, {"b", "2"}, {"aa", "3"}, {"aaa", "4"}}
	for _, p := range pairs {
		require.NoError(t, tr1.Update([]byte(p[0]), []byte(p[1])))
	}
	for i := len(pairs) - 1; i >= 0; i-- {
		require.NoError(t, tr2.Update([]byte(pairs[i][0]), []byte(pairs[i][1])))
	}
	require.Equal(t, tr1.Hash(), tr2.Hash())
}

func TestDeleteRemovesKey(t *testing.T) {
	tr, _ := newTestTrie(t)
	require.NoError(t, tr.Update([]byte("dog"), []byte("puppy")))
	require.NoError(t, tr.Update([]byte("doge"), []byte("coin")))
	emptyTrie, _ := newTestTrie(t)
	require.NoError(t, emptyTrie.Update([]byte("doge"), []byte("coin")))

	require.NoError(t, tr.Update([]byte("dog"), nil))
	require.Equal(t, emptyTrie.Hash(), tr.Hash())
	_, ok, err := tr.Get([]byte("dog"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitPersistsAndReopens(t *testing.T) {
	tr, store := newTestTrie(t)
	require.NoError(t, tr.Update([]byte("key1"), []byte("value1")))
	require.NoError(t, tr.Update([]byte("key2"), []byte("value2")))
	root, err := tr.Commit()
	require.NoError(t, err)
	require.NotZero(t, len(store.nodes))

	reopened, err := New(root, store, crypto.Keccak256)
	require.NoError(t, err)
	v, ok, err := reopened.Get([]byte("key1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", string(v))
}

func TestProveAndVerifyProofMembership(t *testing.T) {
	tr, _ := newTestTrie(t)
	require.NoError(t, tr.Update([]byte("doe"), []byte("reindeer")))
	require.NoError(t, tr.Update([]byte("dog"), []byte("puppy")))
	require.NoError(t, tr.Update([]byte("dogglesworth"), []byte("cat")))
	root := tr.Hash()

	proof := NewProofDB()
	require.NoError(t, tr.Prove([]byte("dog"), proof))

	value, err := VerifyProof(root, []byte("dog"), proof, crypto.Keccak256)
	require.NoError(t, err)
	require.Equal(t, "puppy", string(value))
}

func TestVerifyProofRejectsAbsentKey(t *testing.T) {
	tr, _ := newTestTrie(t)
	require.NoError(t, tr.Update([]byte("doe"), []byte("reindeer")))
	require.NoError(t, tr.Update([]byte("dog"), []byte("puppy")))
	root := tr.Hash()

	proof := NewProofDB()
	require.NoError(t, tr.Prove([]byte("cat"), proof))
	value, err := VerifyProof(root, []byte("cat"), proof, crypto.Keccak256)
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestVerifyRangeProofAcceptsGenuineRange(t *testing.T) {
	tr, _ := newTestTrie(t)
	keys := [][]byte{[]byte("a1"), []byte("a2"), []byte("a3"), []byte("a4"), []byte("a5")}
	values := [][]byte{[]byte("v1"), []byte("v2"), []byte("v3"), []byte("v4"), []byte("v5")}
	for i := range keys {
		require.NoError(t, tr.Update(keys[i], values[i]))
	}
	root := tr.Hash()

	first := NewProofDB()
	require.NoError(t, tr.Prove(keys[0], first))
	last := NewProofDB()
	require.NoError(t, tr.Prove(keys[len(keys)-1], last))

	// the middle of the range (excluding the two proven edges) is what VerifyRangeProof
	// must reconstruct purely from the leaves and the two edge proofs.
	ok, err := VerifyRangeProof(root, keys, values, first, last, crypto.Keccak256)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRangeProofRejectsTamperedValue(t *testing.T) {
	tr, _ := newTestTrie(t)
	keys := [][]byte{[]byte("a1"), []byte("a2"), []byte("a3")}
	values := [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")}
	for i := range keys {
		require.NoError(t, tr.Update(keys[i], values[i]))
	}
	root := tr.Hash()

	first := NewProofDB()
	require.NoError(t, tr.Prove(keys[0], first))
	last := NewProofDB()
	require.NoError(t, tr.Prove(keys[len(keys)-1], last))

	tampered := [][]byte{[]byte("v1"), []byte("EVIL"), []byte("v3")}
	ok, err := VerifyRangeProof(root, keys, tampered, first, last, crypto.Keccak256)
	require.Error(t, err)
	require.False(t, ok)
}

func TestVerifyRangeProofRejectsOutOfOrderKeys(t *testing.T) {
	tr, _ := newTestTrie(t)
	keys := [][]byte{[]byte("a1"), []byte("a2")}
	values := [][]byte{[]byte("v1"), []byte("v2")}
	for i := range keys {
		require.NoError(t, tr.Update(keys[i], values[i]))
	}
	root := tr.Hash()

	first := NewProofDB()
	require.NoError(t, tr.Prove(keys[0], first))
	last := NewProofDB()
	require.NoError(t, tr.Prove(keys[1], last))

	reversed := [][]byte{keys[1], keys[0]}
	reversedValues := [][]byte{values[1], values[0]}
	_, err := VerifyRangeProof(root, reversed, reversedValues, first, last, crypto.Keccak256)
	require.Error(t, err)
}

func TestHexPrefixEncodingRoundTrip(t *testing.T) {
	cases := [][]byte{
		{1, 2, 3, 4, 5},
		{0, 1, 2, 3, 4, 5},
		{0, 15, 1, 12, 11, 8, 16},
		{15, 1, 12, 11, 8, 16},
	}
	for _, hex := range cases {
		compact := hexToCompact(hex)
		require.Equal(t, hex, compactToHex(compact))
	}
}

func TestKeybytesHexRoundTrip(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef}
	hex := keybytesToHex(key)
	require.Equal(t, key, hexToKeybytes(hex))
}
