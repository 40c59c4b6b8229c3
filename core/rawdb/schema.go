// Copyright 2018 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package rawdb translates typed domain operations (blocks, receipts, accounts, trie nodes,
// snap checkpoints) into ethdb.KeyValueStore operations, owning the bit-exact logical table
// schema of the storage engine.
package rawdb

import "encoding/binary"

// Namespace prefixes. Every logical table shares the same physical keyspace; the prefix is
// what makes a range scan over one table safe from bleeding into another.
var (
	headerPrefix         = []byte("h") // headerPrefix + num (8 bytes big-endian) + hash -> header
	headerHashSuffix     = []byte("n") // headerPrefix + num + headerHashSuffix -> hash
	headerNumberPrefix   = []byte("H") // headerNumberPrefix + hash -> num (8 bytes big-endian)
	bodyPrefix           = []byte("b") // bodyPrefix + num + hash -> body
	blockReceiptsPrefix  = []byte("r") // blockReceiptsPrefix + RLP(blockHash, index) -> receipt
	txLookupPrefix       = []byte("l") // txLookupPrefix + txHash + blockHash -> location
	codePrefix           = []byte("c") // codePrefix + codeHash -> code
	stateTrieNodePrefix  = []byte("s") // stateTrieNodePrefix + nodeHash -> node
	storageTrieNodePfx   = []byte("o") // storageTrieNodePfx + addrHash + nodeHash -> node
	storageSnapshotPfx   = []byte("S") // storageSnapshotPfx + addrHash + slotHash -> value
	pendingBlockPrefix   = []byte("p") // pendingBlockPrefix + hash -> block
	invalidAncestorPfx   = []byte("i") // invalidAncestorPfx + hash -> reason
	chainDataPrefix      = []byte("C") // chainDataPrefix + tag(1) -> value
	snapStatePrefix      = []byte("Y") // snapStatePrefix + tag(1) -> value

	accountLogPrefix          = []byte("A") // accountLogPrefix + num(8) + hash(32) -> snappy(RLP(accountLogRLP))
	storageLogPrefix          = []byte("T") // storageLogPrefix + num(8) + hash(32) -> snappy(RLP(storageLogRLP))
	stateNodePruneLogPrefix   = []byte("Q") // stateNodePruneLogPrefix + num(8) + hash(32) -> snappy(RLP([]common.Hash))
	storageNodePruneLogPrefix = []byte("W") // storageNodePruneLogPrefix + num(8) + hash(32) -> snappy(RLP([]StoragePruneEntry))
	stateNodeRefCountPrefix   = []byte("R") // stateNodeRefCountPrefix + nodeHash(32) -> 4-byte big-endian count
	storageNodeRefCountPrefix = []byte("U") // storageNodeRefCountPrefix + addrHash(32) + nodeHash(32) -> 4-byte count
	flatAccountPrefix         = []byte("F") // flatAccountPrefix + address(20) -> RLP(types.Account)
	flatStoragePrefix         = []byte("f") // flatStoragePrefix + address(20) + slot(32) -> 32-byte value
)

// ChainData tags (1 byte, a stable on-disk wire format).
const (
	ChainConfigKey         byte = 0x00
	EarliestBlockNumberKey byte = 0x01
	FinalizedBlockNumberKey byte = 0x02
	SafeBlockNumberKey     byte = 0x03
	LatestBlockNumberKey   byte = 0x04
	PendingBlockNumberKey  byte = 0x05
	// CurrentSnapshotBlockKey points at the block whose state the flat account/storage caches
	// (and the state/storage tries) currently reflect; rewind/replay moves it atomically.
	CurrentSnapshotBlockKey byte = 0x06
)

// SnapState tags (1 byte, a stable on-disk wire format).
const (
	HeaderDownloadCheckpointKey byte = 0x00
	StateTrieKeyCheckpointKey   byte = 0x01
	StateHealPathsKey           byte = 0x02
	StorageHealPathsKey         byte = 0x03
	StateTrieRebuildCheckpointKey byte = 0x04
	StorageTrieRebuildPendingKey  byte = 0x05
	// PendingAccountSegmentsKey holds the account-range phase's buffered leaves, segment by
	// segment, until the rebuild phase consumes and clears them.
	PendingAccountSegmentsKey byte = 0x06
	// PendingStorageSlotsKey holds the storage-range phase's buffered slots, grouped by account,
	// until the rebuild phase folds each account's slots into its storage trie.
	PendingStorageSlotsKey byte = 0x07
)

// encodeBlockNumber returns num as an 8-byte big-endian encoding, matching the teacher's
// rawdb key encoding so that numeric keys sort lexicographically in block-number order.
func encodeBlockNumber(num uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, num)
	return enc
}

func decodeBlockNumber(enc []byte) uint64 {
	return binary.BigEndian.Uint64(enc)
}

// headerKey = headerPrefix + num(8) + hash(32).
func headerKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, headerPrefix...), encodeBlockNumber(number)...), hash[:]...)
}

// headerHashKey = headerPrefix + num(8) + headerHashSuffix — canonical hash at this number.
func headerHashKey(number uint64) []byte {
	return append(append(append([]byte{}, headerPrefix...), encodeBlockNumber(number)...), headerHashSuffix...)
}

// headerKeyPrefix = headerPrefix + num(8) — scans every header stored at this height.
func headerKeyPrefix(number uint64) []byte {
	return append(append([]byte{}, headerPrefix...), encodeBlockNumber(number)...)
}

// headerNumberKey = headerNumberPrefix + hash(32) -> num(8).
func headerNumberKey(hash [32]byte) []byte {
	return append(append([]byte{}, headerNumberPrefix...), hash[:]...)
}

// blockBodyKey = bodyPrefix + num(8) + hash(32).
func blockBodyKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, bodyPrefix...), encodeBlockNumber(number)...), hash[:]...)
}

// blockReceiptsKey = blockReceiptsPrefix + num(8) + hash(32).
func blockReceiptsKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, blockReceiptsPrefix...), encodeBlockNumber(number)...), hash[:]...)
}

// txLookupKey = txLookupPrefix + txHash(32) + blockHash(32). The txHash-only prefix enables
// the range scan transaction-location lookup requires.
func txLookupKey(txHash, blockHash [32]byte) []byte {
	return append(append(append([]byte{}, txLookupPrefix...), txHash[:]...), blockHash[:]...)
}

func txLookupPrefixKey(txHash [32]byte) []byte {
	return append(append([]byte{}, txLookupPrefix...), txHash[:]...)
}

func codeKey(codeHash [32]byte) []byte {
	return append(append([]byte{}, codePrefix...), codeHash[:]...)
}

func stateTrieNodeKey(nodeHash [32]byte) []byte {
	return append(append([]byte{}, stateTrieNodePrefix...), nodeHash[:]...)
}

func storageTrieNodeKey(addrHash, nodeHash [32]byte) []byte {
	return append(append(append([]byte{}, storageTrieNodePfx...), addrHash[:]...), nodeHash[:]...)
}

func storageTrieNodePrefixKey(addrHash [32]byte) []byte {
	return append(append([]byte{}, storageTrieNodePfx...), addrHash[:]...)
}

func storageSnapshotKey(addrHash, slotHash [32]byte) []byte {
	return append(append(append([]byte{}, storageSnapshotPfx...), addrHash[:]...), slotHash[:]...)
}

func storageSnapshotPrefixKey(addrHash [32]byte) []byte {
	return append(append([]byte{}, storageSnapshotPfx...), addrHash[:]...)
}

func pendingBlockKey(hash [32]byte) []byte {
	return append(append([]byte{}, pendingBlockPrefix...), hash[:]...)
}

func invalidAncestorKey(hash [32]byte) []byte {
	return append(append([]byte{}, invalidAncestorPfx...), hash[:]...)
}

func chainDataKey(tag byte) []byte {
	return append(append([]byte{}, chainDataPrefix...), tag)
}

func snapStateKey(tag byte) []byte {
	return append(append([]byte{}, snapStatePrefix...), tag)
}

// blockKey = num(8) + hash(32), the common suffix shared by every per-block reorg/pruning log.
func blockKey(number uint64, hash [32]byte) []byte {
	return append(encodeBlockNumber(number), hash[:]...)
}

func accountLogKey(number uint64, hash [32]byte) []byte {
	return append(append([]byte{}, accountLogPrefix...), blockKey(number, hash)...)
}

func storageLogKey(number uint64, hash [32]byte) []byte {
	return append(append([]byte{}, storageLogPrefix...), blockKey(number, hash)...)
}

func stateNodePruneLogKey(number uint64, hash [32]byte) []byte {
	return append(append([]byte{}, stateNodePruneLogPrefix...), blockKey(number, hash)...)
}

func storageNodePruneLogKey(number uint64, hash [32]byte) []byte {
	return append(append([]byte{}, storageNodePruneLogPrefix...), blockKey(number, hash)...)
}

func stateNodeRefCountKey(nodeHash [32]byte) []byte {
	return append(append([]byte{}, stateNodeRefCountPrefix...), nodeHash[:]...)
}

func storageNodeRefCountKey(addrHash, nodeHash [32]byte) []byte {
	return append(append(append([]byte{}, storageNodeRefCountPrefix...), addrHash[:]...), nodeHash[:]...)
}

func flatAccountKey(addr [20]byte) []byte {
	return append(append([]byte{}, flatAccountPrefix...), addr[:]...)
}

func flatStorageKey(addr [20]byte, slot [32]byte) []byte {
	return append(append(append([]byte{}, flatStoragePrefix...), addr[:]...), slot[:]...)
}
