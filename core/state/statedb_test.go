// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package state

import (
	"math/big"
	"testing"

	"github.com/rollupchain/rgeth/common"
	"github.com/stretchr/testify/require"
)

// memRawdb is a minimal in-memory stand-in for *rawdb.Database, implementing exactly the
// rawdbStore surface this package needs, so these tests don't need to pull in core/rawdb.
type memRawdb struct {
	stateNodes   map[common.Hash][]byte
	storageNodes map[common.Hash]map[common.Hash][]byte
	code         map[common.Hash][]byte
}

func newMemRawdb() *memRawdb {
	return &memRawdb{
		stateNodes:   make(map[common.Hash][]byte),
		storageNodes: make(map[common.Hash]map[common.Hash][]byte),
		code:         make(map[common.Hash][]byte),
	}
}

func (m *memRawdb) ReadStateTrieNode(hash common.Hash) ([]byte, error) { return m.stateNodes[hash], nil }
func (m *memRawdb) WriteStateTrieNode(hash common.Hash, node []byte) error {
	m.stateNodes[hash] = append([]byte(nil), node...)
	return nil
}
func (m *memRawdb) ReadStorageTrieNode(addrHash, hash common.Hash) ([]byte, error) {
	return m.storageNodes[addrHash][hash], nil
}
func (m *memRawdb) WriteStorageTrieNode(addrHash, hash common.Hash, node []byte) error {
	if m.storageNodes[addrHash] == nil {
		m.storageNodes[addrHash] = make(map[common.Hash][]byte)
	}
	m.storageNodes[addrHash][hash] = append([]byte(nil), node...)
	return nil
}
func (m *memRawdb) ReadCode(hash common.Hash) ([]byte, error)  { return m.code[hash], nil }
func (m *memRawdb) WriteCode(hash common.Hash, code []byte) error {
	m.code[hash] = append([]byte(nil), code...)
	return nil
}

func newTestStateDB(t *testing.T) (*StateDB, *memRawdb) {
	t.Helper()
	raw := newMemRawdb()
	sdb, err := New(common.Hash{}, NewDatabase(raw))
	require.NoError(t, err)
	return sdb, raw
}

func TestSetGetBalanceNonce(t *testing.T) {
	sdb, _ := newTestStateDB(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")

	require.NoError(t, sdb.SetBalance(addr, big.NewInt(42)))
	require.NoError(t, sdb.SetNonce(addr, 7))

	bal, err := sdb.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), bal)

	nonce, err := sdb.GetNonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), nonce)
}

func TestStorageRoundTrip(t *testing.T) {
	sdb, _ := newTestStateDB(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	slot := common.HexToHash("0x01")
	value := common.HexToHash("0xcafebabe")

	require.NoError(t, sdb.SetState(addr, slot, value))
	got, err := sdb.GetState(addr, slot)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestIntermediateRootChangesWithState(t *testing.T) {
	sdb, _ := newTestStateDB(t)
	emptyRoot, err := sdb.IntermediateRoot(false)
	require.NoError(t, err)

	addr := common.HexToAddress("0x0000000000000000000000000000000000000003")
	require.NoError(t, sdb.SetBalance(addr, big.NewInt(1)))
	changedRoot, err := sdb.IntermediateRoot(false)
	require.NoError(t, err)
	require.NotEqual(t, emptyRoot, changedRoot)
}

func TestCommitPersistsAccountAcrossReopen(t *testing.T) {
	sdb, raw := newTestStateDB(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000004")
	require.NoError(t, sdb.SetBalance(addr, big.NewInt(100)))
	require.NoError(t, sdb.SetNonce(addr, 3))
	slot := common.HexToHash("0x05")
	require.NoError(t, sdb.SetState(addr, slot, common.HexToHash("0xbeef")))

	root, err := sdb.Commit(false)
	require.NoError(t, err)
	require.NotZero(t, len(raw.stateNodes))

	reopened, err := New(root, NewDatabase(raw))
	require.NoError(t, err)

	bal, err := reopened.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), bal)

	val, err := reopened.GetState(addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xbeef"), val)
}

func TestSelfDestructRemovesAccountFromTrie(t *testing.T) {
	sdb, raw := newTestStateDB(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000006")
	require.NoError(t, sdb.SetBalance(addr, big.NewInt(1)))
	_, err := sdb.IntermediateRoot(false)
	require.NoError(t, err)

	exists, err := sdb.Exist(addr)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, sdb.SelfDestruct(addr))
	root, err := sdb.Commit(false)
	require.NoError(t, err)

	fresh, err := New(root, NewDatabase(raw))
	require.NoError(t, err)
	exists, err = fresh.Exist(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCodeRoundTrip(t *testing.T) {
	sdb, _ := newTestStateDB(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000007")
	code := []byte{0x60, 0x00, 0x60, 0x00}
	require.NoError(t, sdb.SetCode(addr, code))

	got, err := sdb.GetCode(addr)
	require.NoError(t, err)
	require.Equal(t, code, got)

	hash, err := sdb.GetCodeHash(addr)
	require.NoError(t, err)
	require.NotZero(t, hash)
}
