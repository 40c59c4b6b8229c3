// Copyright 2018 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package rawdb

import (
	"errors"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/ethdb"
	"github.com/rollupchain/rgeth/log"
	"github.com/rollupchain/rgeth/rlp"
)

// ErrCorruptDB is returned when the engine claimed to hold a header or body that turned out to
// be missing; this is treated as a fatal, non-retryable sync error.
var ErrCorruptDB = errors.New("rawdb: corrupt database: claimed entry missing")

// Database is the storage engine: it owns the key schema (schema.go) and translates domain
// operations into ethdb.KeyValueStore batches.
type Database struct {
	db ethdb.Database

	headerCache *fastcache.Cache // hot header RLP, read-through
	log         log.Logger
}

// NewDatabase wraps an ethdb.Database with the logical table schema. cacheSizeMB sizes the
// read-through header cache.
func NewDatabase(db ethdb.Database, cacheSizeMB int) *Database {
	if cacheSizeMB <= 0 {
		cacheSizeMB = 16
	}
	return &Database{
		db:          db,
		headerCache: fastcache.New(cacheSizeMB * 1024 * 1024),
		log:         log.New("module", "rawdb"),
	}
}

// --- Headers ---

func (d *Database) WriteHeader(header *types.Header) error {
	hash := types.HeaderHash(header)
	enc, err := rlp.EncodeToBytes(header)
	if err != nil {
		return err
	}
	if err := d.db.Put(headerKey(header.NumberU64(), hash), enc); err != nil {
		return err
	}
	d.headerCache.Set(hash[:], enc)
	return d.db.Put(headerNumberKey(hash), encodeBlockNumber(header.NumberU64()))
}

func (d *Database) ReadHeader(number uint64, hash common.Hash) (*types.Header, error) {
	if enc, ok := d.headerCache.HasGet(nil, hash[:]); ok {
		var h types.Header
		if err := rlp.DecodeBytes(enc, &h); err != nil {
			return nil, err
		}
		return &h, nil
	}
	enc, _ := d.db.Get(headerKey(number, [32]byte(hash)))
	if len(enc) == 0 {
		return nil, ErrCorruptDB
	}
	d.headerCache.Set(hash[:], enc)
	var h types.Header
	if err := rlp.DecodeBytes(enc, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (d *Database) ReadHeaderNumber(hash common.Hash) (uint64, bool, error) {
	enc, _ := d.db.Get(headerNumberKey([32]byte(hash)))
	if len(enc) == 0 {
		return 0, false, nil
	}
	return decodeBlockNumber(enc), true, nil
}

func (d *Database) WriteCanonicalHash(number uint64, hash common.Hash) error {
	return d.db.Put(headerHashKey(number), hash[:])
}

func (d *Database) ReadCanonicalHash(number uint64) (common.Hash, bool, error) {
	enc, _ := d.db.Get(headerHashKey(number))
	if len(enc) == 0 {
		return common.Hash{}, false, nil
	}
	return common.BytesToHash(enc), true, nil
}

func (d *Database) DeleteCanonicalHash(number uint64) error {
	return d.db.Delete(headerHashKey(number))
}

// --- Bodies ---

func (d *Database) WriteBody(number uint64, hash common.Hash, body *types.Body) error {
	enc, err := rlp.EncodeToBytes(body)
	if err != nil {
		return err
	}
	return d.db.Put(blockBodyKey(number, [32]byte(hash)), enc)
}

func (d *Database) ReadBody(number uint64, hash common.Hash) (*types.Body, error) {
	enc, _ := d.db.Get(blockBodyKey(number, [32]byte(hash)))
	if len(enc) == 0 {
		return nil, ErrCorruptDB
	}
	var body types.Body
	if err := rlp.DecodeBytes(enc, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// --- Receipts ---

// receiptKeyRLP is the RLP(block-hash, index) key used to store each receipt.
type receiptKeyRLP struct {
	BlockHash common.Hash
	Index     uint64
}

func (d *Database) WriteReceipt(blockHash common.Hash, index uint64, receipt *types.Receipt) error {
	key, err := rlp.EncodeToBytes(receiptKeyRLP{blockHash, index})
	if err != nil {
		return err
	}
	enc, err := rlp.EncodeToBytes(receipt)
	if err != nil {
		return err
	}
	return d.db.Put(append(blockReceiptsPrefix, key...), enc)
}

func (d *Database) ReadReceipt(blockHash common.Hash, index uint64) (*types.Receipt, error) {
	key, err := rlp.EncodeToBytes(receiptKeyRLP{blockHash, index})
	if err != nil {
		return nil, err
	}
	enc, _ := d.db.Get(append(blockReceiptsPrefix, key...))
	if len(enc) == 0 {
		return nil, nil
	}
	var r types.Receipt
	if err := rlp.DecodeBytes(enc, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Transaction locations ---

func (d *Database) WriteTxLookup(txHash, blockHash common.Hash, loc types.TransactionLocation) error {
	enc, err := rlp.EncodeToBytes(loc)
	if err != nil {
		return err
	}
	return d.db.Put(txLookupKey([32]byte(txHash), [32]byte(blockHash)), enc)
}

// ReadTxLookup scans every entry with prefix = txHash, and returns the one whose block hash is
// canonical at that number; others are stale forks and are skipped.
func (d *Database) ReadTxLookup(txHash common.Hash, isCanonical func(number uint64, hash common.Hash) (bool, error)) (*types.TransactionLocation, error) {
	prefix := txLookupPrefixKey([32]byte(txHash))
	it := d.db.NewIterator(prefix, nil)
	defer it.Release()

	for it.Next() {
		var loc types.TransactionLocation
		if err := rlp.DecodeBytes(it.Value(), &loc); err != nil {
			return nil, err
		}
		ok, err := isCanonical(loc.BlockNumber, loc.BlockHash)
		if err != nil {
			return nil, err
		}
		if ok {
			return &loc, nil
		}
	}
	return nil, it.Error()
}

// --- Account codes ---

func (d *Database) WriteCode(codeHash common.Hash, code []byte) error {
	return d.db.Put(codeKey([32]byte(codeHash)), code)
}

func (d *Database) ReadCode(codeHash common.Hash) ([]byte, error) {
	return d.db.Get(codeKey([32]byte(codeHash)))
}

// --- Trie nodes ---

func (d *Database) WriteStateTrieNode(nodeHash common.Hash, node []byte) error {
	return d.db.Put(stateTrieNodeKey([32]byte(nodeHash)), node)
}

func (d *Database) ReadStateTrieNode(nodeHash common.Hash) ([]byte, error) {
	return d.db.Get(stateTrieNodeKey([32]byte(nodeHash)))
}

func (d *Database) WriteStorageTrieNode(addrHash, nodeHash common.Hash, node []byte) error {
	return d.db.Put(storageTrieNodeKey([32]byte(addrHash), [32]byte(nodeHash)), node)
}

func (d *Database) ReadStorageTrieNode(addrHash, nodeHash common.Hash) ([]byte, error) {
	return d.db.Get(storageTrieNodeKey([32]byte(addrHash), [32]byte(nodeHash)))
}

// --- Storage snapshot ---

func (d *Database) WriteStorageSnapshot(addrHash, slotHash common.Hash, value [32]byte) error {
	return d.db.Put(storageSnapshotKey([32]byte(addrHash), [32]byte(slotHash)), value[:])
}

func (d *Database) ReadStorageSnapshot(addrHash, slotHash common.Hash) ([32]byte, bool, error) {
	enc, _ := d.db.Get(storageSnapshotKey([32]byte(addrHash), [32]byte(slotHash)))
	if len(enc) == 0 {
		return [32]byte{}, false, nil
	}
	var v [32]byte
	copy(v[:], enc)
	return v, true, nil
}

// StorageSnapshotEntry is one (slot-hash, value) pair ingested by WriteStorageSnapshotBatch.
type StorageSnapshotEntry struct {
	SlotHash common.Hash
	Value    [32]byte
}

// WriteStorageSnapshotBatch bulk-ingests storage-snapshot entries for one account in a single
// atomic batch, the rebuild-phase operation supplemented from engine.rs's
// write_snapshot_storage_batch.
func (d *Database) WriteStorageSnapshotBatch(addrHash common.Hash, entries []StorageSnapshotEntry) error {
	batch := d.db.NewBatch()
	for _, e := range entries {
		if err := batch.Put(storageSnapshotKey([32]byte(addrHash), [32]byte(e.SlotHash)), e.Value[:]); err != nil {
			return err
		}
	}
	return batch.Write()
}

// --- Pending blocks / invalid ancestors ---

func (d *Database) WritePendingBlock(hash common.Hash, block *types.Block) error {
	enc, err := rlp.EncodeToBytes(block)
	if err != nil {
		return err
	}
	return d.db.Put(pendingBlockKey([32]byte(hash)), enc)
}

func (d *Database) ReadPendingBlock(hash common.Hash) (*types.Block, error) {
	enc, _ := d.db.Get(pendingBlockKey([32]byte(hash)))
	if len(enc) == 0 {
		return nil, nil
	}
	var b types.Block
	if err := rlp.DecodeBytes(enc, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *Database) WriteInvalidAncestor(hash common.Hash, reason string) error {
	return d.db.Put(invalidAncestorKey([32]byte(hash)), []byte(reason))
}

// --- Chain data ---

func (d *Database) WriteChainConfig(configJSON []byte) error {
	return d.db.Put(chainDataKey(ChainConfigKey), configJSON)
}

func (d *Database) ReadChainConfig() ([]byte, error) {
	return d.db.Get(chainDataKey(ChainConfigKey))
}

func (d *Database) writeBlockNumberTag(tag byte, number uint64) error {
	return d.db.Put(chainDataKey(tag), encodeBlockNumber(number))
}

func (d *Database) readBlockNumberTag(tag byte) (uint64, bool, error) {
	enc, _ := d.db.Get(chainDataKey(tag))
	if len(enc) == 0 {
		return 0, false, nil
	}
	return decodeBlockNumber(enc), true, nil
}

func (d *Database) WriteEarliestBlockNumber(n uint64) error  { return d.writeBlockNumberTag(EarliestBlockNumberKey, n) }
func (d *Database) ReadEarliestBlockNumber() (uint64, bool, error) { return d.readBlockNumberTag(EarliestBlockNumberKey) }

func (d *Database) WriteFinalizedBlockNumber(n uint64) error  { return d.writeBlockNumberTag(FinalizedBlockNumberKey, n) }
func (d *Database) ReadFinalizedBlockNumber() (uint64, bool, error) { return d.readBlockNumberTag(FinalizedBlockNumberKey) }

func (d *Database) WriteSafeBlockNumber(n uint64) error  { return d.writeBlockNumberTag(SafeBlockNumberKey, n) }
func (d *Database) ReadSafeBlockNumber() (uint64, bool, error) { return d.readBlockNumberTag(SafeBlockNumberKey) }

func (d *Database) WriteLatestBlockNumber(n uint64) error  { return d.writeBlockNumberTag(LatestBlockNumberKey, n) }
func (d *Database) ReadLatestBlockNumber() (uint64, bool, error) { return d.readBlockNumberTag(LatestBlockNumberKey) }

func (d *Database) WritePendingBlockNumber(n uint64) error  { return d.writeBlockNumberTag(PendingBlockNumberKey, n) }
func (d *Database) ReadPendingBlockNumber() (uint64, bool, error) { return d.readBlockNumberTag(PendingBlockNumberKey) }

// --- Snap state ---

func (d *Database) WriteSnapState(tag byte, value []byte) error {
	return d.db.Put(snapStateKey(tag), value)
}

func (d *Database) ReadSnapState(tag byte) ([]byte, error) {
	return d.db.Get(snapStateKey(tag))
}

// ClearSnapState deletes every SnapState tag in one atomic batch: snap checkpoints persist
// across a process restart and are cleared all at once on sync completion.
func (d *Database) ClearSnapState() error {
	batch := d.db.NewBatch()
	for tag := HeaderDownloadCheckpointKey; tag <= PendingStorageSlotsKey; tag++ {
		if err := batch.Delete(snapStateKey(tag)); err != nil {
			return err
		}
	}
	return batch.Write()
}

// --- Forkchoice update ---

// ForkchoiceUpdate atomically sets head/safe/finalized block numbers and deletes canonical-hash
// entries above the new head, per engine.rs's forkchoice_update.
func (d *Database) ForkchoiceUpdate(headNumber, safeNumber, finalizedNumber uint64, previousHead uint64) error {
	batch := d.db.NewBatch()
	if err := batch.Put(chainDataKey(LatestBlockNumberKey), encodeBlockNumber(headNumber)); err != nil {
		return err
	}
	if err := batch.Put(chainDataKey(SafeBlockNumberKey), encodeBlockNumber(safeNumber)); err != nil {
		return err
	}
	if err := batch.Put(chainDataKey(FinalizedBlockNumberKey), encodeBlockNumber(finalizedNumber)); err != nil {
		return err
	}
	for n := headNumber + 1; n <= previousHead; n++ {
		if err := batch.Delete(headerHashKey(n)); err != nil {
			return err
		}
	}
	return batch.Write()
}

// --- Batched account-updates application ---

// AccountUpdate is one state-trie node write keyed by its own hash.
type AccountUpdate struct {
	NodeHash common.Hash
	Node     []byte
}

// StorageUpdate is one storage-trie node write for a given account, keyed by address-hash ‖
// node-hash.
type StorageUpdate struct {
	AddressHash common.Hash
	NodeHash    common.Hash
	Node        []byte
}

// CodeUpdate writes one account-code entry.
type CodeUpdate struct {
	CodeHash common.Hash
	Code     []byte
}

// ReceiptUpdate writes one receipt for a block.
type ReceiptUpdate struct {
	BlockHash common.Hash
	Index     uint64
	Receipt   *types.Receipt
}

// UpdateBatch is the full set of writes produced by applying one or more blocks: state-trie
// nodes, storage-trie nodes per account, code entries, receipt entries, and the blocks
// themselves — mirrors engine.rs's apply_updates.
type UpdateBatch struct {
	AccountUpdates []AccountUpdate
	StorageUpdates []StorageUpdate
	CodeUpdates    []CodeUpdate
	Receipts       []ReceiptUpdate
	Blocks         []*types.Block
}

// ApplyUpdates commits an UpdateBatch as a single atomic batch: one batch per block's worth of
// account and storage trie writes.
func (d *Database) ApplyUpdates(update UpdateBatch) error {
	batch := d.db.NewBatch()

	for _, u := range update.AccountUpdates {
		if err := batch.Put(stateTrieNodeKey([32]byte(u.NodeHash)), u.Node); err != nil {
			return err
		}
	}
	for _, u := range update.StorageUpdates {
		if err := batch.Put(storageTrieNodeKey([32]byte(u.AddressHash), [32]byte(u.NodeHash)), u.Node); err != nil {
			return err
		}
	}
	for _, u := range update.CodeUpdates {
		if err := batch.Put(codeKey([32]byte(u.CodeHash)), u.Code); err != nil {
			return err
		}
	}
	for _, r := range update.Receipts {
		key, err := rlp.EncodeToBytes(receiptKeyRLP{r.BlockHash, r.Index})
		if err != nil {
			return err
		}
		enc, err := rlp.EncodeToBytes(r.Receipt)
		if err != nil {
			return err
		}
		if err := batch.Put(append(blockReceiptsPrefix, key...), enc); err != nil {
			return err
		}
	}
	for _, block := range update.Blocks {
		hash := block.Hash()
		number := block.NumberU64()

		headerEnc, err := rlp.EncodeToBytes(block.Header)
		if err != nil {
			return err
		}
		if err := batch.Put(headerKey(number, [32]byte(hash)), headerEnc); err != nil {
			return err
		}
		bodyEnc, err := rlp.EncodeToBytes(block.Body)
		if err != nil {
			return err
		}
		if err := batch.Put(blockBodyKey(number, [32]byte(hash)), bodyEnc); err != nil {
			return err
		}
		if err := batch.Put(headerNumberKey([32]byte(hash)), encodeBlockNumber(number)); err != nil {
			return err
		}
		for idx, tx := range block.Body.Transactions {
			loc := types.TransactionLocation{BlockNumber: number, BlockHash: hash, Index: uint64(idx)}
			locEnc, err := rlp.EncodeToBytes(loc)
			if err != nil {
				return err
			}
			if err := batch.Put(txLookupKey([32]byte(tx.Hash()), [32]byte(hash)), locEnc); err != nil {
				return err
			}
		}
	}

	if err := batch.Write(); err != nil {
		d.log.Error("failed to apply update batch", "err", err)
		return err
	}
	return nil
}
