// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package rawdb

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/golang/snappy"
	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/rlp"
)

// ErrReorgLogMissing is returned by Rewind when it walks back past the oldest block that still
// has a log recorded — the caller cannot undo any further.
var ErrReorgLogMissing = errors.New("rawdb: reorg log missing for block")

// ErrReplayParentMismatch is returned by Replay when a log's recorded parent does not match the
// database's current snapshot pointer, meaning the logs are being applied out of order or
// against the wrong base state.
var ErrReplayParentMismatch = errors.New("rawdb: replay log parent does not match current snapshot")

// BlockRef identifies a block for reorg-log and pruning-log keys.
type BlockRef struct {
	Number uint64
	Hash   common.Hash
}

func (r BlockRef) key() [32]byte {
	var h [32]byte
	copy(h[:], r.Hash[:])
	return h
}

// AccountLogEntry is one account's before/after snapshot recorded when a block is applied.
// Previous is nil when the account did not exist before the block; New is nil when the block
// deleted the account.
type AccountLogEntry struct {
	Address  common.Address
	Previous *types.Account
	New      *types.Account
}

// StorageLogEntry is one storage slot's before/after value recorded when a block is applied.
type StorageLogEntry struct {
	Address common.Address
	Slot    common.Hash
	Old     [32]byte
	New     [32]byte
}

// BlockLog is the full write-ahead log for one block: every account and storage change it made,
// plus the parent block it was applied on top of so rewind/replay can walk the chain.
type BlockLog struct {
	Parent   BlockRef
	Accounts []AccountLogEntry
	Storage  []StorageLogEntry
}

// StoragePruneEntry names one storage-trie node invalidated by a block, namespaced by the
// owning account's address hash (mirrors StorageTrieNodes' own key shape).
type StoragePruneEntry struct {
	AddressHash common.Hash
	NodeHash    common.Hash
}

// PruningLog is the set of trie nodes a block invalidated — superseded by a newer version
// written in the same block — candidates for ref-count decrement once the block leaves the
// retention window.
type PruningLog struct {
	StateNodes   []common.Hash
	StorageNodes []StoragePruneEntry
}

// rlp-friendly mirrors: *types.Account and common.Address don't round-trip through RLP as
// pointers/arrays directly inside slices the way the accessors elsewhere assume, so the log
// entries are re-shaped into plain value types for encoding.

type accountLogEntryRLP struct {
	Address    common.Address
	HasPrev    bool
	PrevNonce  uint64
	PrevBalance []byte
	PrevRoot   common.Hash
	PrevCode   common.Hash
	HasNew     bool
	NewNonce   uint64
	NewBalance []byte
	NewRoot    common.Hash
	NewCode    common.Hash
}

func encodeAccountLogEntry(e AccountLogEntry) accountLogEntryRLP {
	out := accountLogEntryRLP{Address: e.Address}
	if e.Previous != nil {
		out.HasPrev = true
		out.PrevNonce = e.Previous.Nonce
		if e.Previous.Balance != nil {
			out.PrevBalance = e.Previous.Balance.Bytes()
		}
		out.PrevRoot = e.Previous.StorageRoot
		out.PrevCode = e.Previous.CodeHash
	}
	if e.New != nil {
		out.HasNew = true
		out.NewNonce = e.New.Nonce
		if e.New.Balance != nil {
			out.NewBalance = e.New.Balance.Bytes()
		}
		out.NewRoot = e.New.StorageRoot
		out.NewCode = e.New.CodeHash
	}
	return out
}

func decodeAccountLogEntry(r accountLogEntryRLP) AccountLogEntry {
	e := AccountLogEntry{Address: r.Address}
	if r.HasPrev {
		e.Previous = &types.Account{
			Nonce:       r.PrevNonce,
			Balance:     new(big.Int).SetBytes(r.PrevBalance),
			StorageRoot: r.PrevRoot,
			CodeHash:    r.PrevCode,
		}
	}
	if r.HasNew {
		e.New = &types.Account{
			Nonce:       r.NewNonce,
			Balance:     new(big.Int).SetBytes(r.NewBalance),
			StorageRoot: r.NewRoot,
			CodeHash:    r.NewCode,
		}
	}
	return e
}

type accountLogRLP struct {
	ParentNumber uint64
	ParentHash   common.Hash
	Entries      []accountLogEntryRLP
}

type storageLogRLP struct {
	ParentNumber uint64
	ParentHash   common.Hash
	Entries      []StorageLogEntry
}

// WriteBlockLog persists ref's account and storage write-ahead logs in one atomic batch.
func (d *Database) WriteBlockLog(ref BlockRef, log BlockLog) error {
	entries := make([]accountLogEntryRLP, len(log.Accounts))
	for i, e := range log.Accounts {
		entries[i] = encodeAccountLogEntry(e)
	}
	accEnc, err := rlp.EncodeToBytes(accountLogRLP{
		ParentNumber: log.Parent.Number,
		ParentHash:   log.Parent.Hash,
		Entries:      entries,
	})
	if err != nil {
		return err
	}
	storEnc, err := rlp.EncodeToBytes(storageLogRLP{
		ParentNumber: log.Parent.Number,
		ParentHash:   log.Parent.Hash,
		Entries:      log.Storage,
	})
	if err != nil {
		return err
	}
	batch := d.db.NewBatch()
	if err := batch.Put(accountLogKey(ref.Number, ref.key()), snappy.Encode(nil, accEnc)); err != nil {
		return err
	}
	if err := batch.Put(storageLogKey(ref.Number, ref.key()), snappy.Encode(nil, storEnc)); err != nil {
		return err
	}
	return batch.Write()
}

// ReadBlockLog returns the write-ahead log recorded for ref, or ok=false if none was recorded.
// Entries are stored snappy-compressed: a full block's account/storage log can run to many
// entries, and like go-ethereum's freezer tables this trades a cheap decompress for a much
// smaller on-disk footprint.
func (d *Database) ReadBlockLog(ref BlockRef) (log BlockLog, ok bool, err error) {
	accBytes, _ := d.db.Get(accountLogKey(ref.Number, ref.key()))
	if len(accBytes) == 0 {
		return BlockLog{}, false, nil
	}
	accBytes, err = snappy.Decode(nil, accBytes)
	if err != nil {
		return BlockLog{}, false, err
	}
	var accDec accountLogRLP
	if err := rlp.DecodeBytes(accBytes, &accDec); err != nil {
		return BlockLog{}, false, err
	}
	storBytes, _ := d.db.Get(storageLogKey(ref.Number, ref.key()))
	var storDec storageLogRLP
	if len(storBytes) != 0 {
		storBytes, err = snappy.Decode(nil, storBytes)
		if err != nil {
			return BlockLog{}, false, err
		}
		if err := rlp.DecodeBytes(storBytes, &storDec); err != nil {
			return BlockLog{}, false, err
		}
	}
	accounts := make([]AccountLogEntry, len(accDec.Entries))
	for i, e := range accDec.Entries {
		accounts[i] = decodeAccountLogEntry(e)
	}
	return BlockLog{
		Parent:   BlockRef{Number: accDec.ParentNumber, Hash: accDec.ParentHash},
		Accounts: accounts,
		Storage:  storDec.Entries,
	}, true, nil
}

// WritePruningLog persists the set of trie nodes ref's block invalidated (superseded by a newer
// version written in the same block).
func (d *Database) WritePruningLog(ref BlockRef, log PruningLog) error {
	enc, err := rlp.EncodeToBytes(log.StateNodes)
	if err != nil {
		return err
	}
	storEnc, err := rlp.EncodeToBytes(log.StorageNodes)
	if err != nil {
		return err
	}
	batch := d.db.NewBatch()
	if err := batch.Put(stateNodePruneLogKey(ref.Number, ref.key()), snappy.Encode(nil, enc)); err != nil {
		return err
	}
	if err := batch.Put(storageNodePruneLogKey(ref.Number, ref.key()), snappy.Encode(nil, storEnc)); err != nil {
		return err
	}
	return batch.Write()
}

// ReadPruningLog returns the pruning log recorded for ref, or ok=false if none was recorded.
func (d *Database) ReadPruningLog(ref BlockRef) (log PruningLog, ok bool, err error) {
	stateBytes, _ := d.db.Get(stateNodePruneLogKey(ref.Number, ref.key()))
	if len(stateBytes) == 0 {
		return PruningLog{}, false, nil
	}
	stateBytes, err = snappy.Decode(nil, stateBytes)
	if err != nil {
		return PruningLog{}, false, err
	}
	var stateNodes []common.Hash
	if err := rlp.DecodeBytes(stateBytes, &stateNodes); err != nil {
		return PruningLog{}, false, err
	}
	storBytes, _ := d.db.Get(storageNodePruneLogKey(ref.Number, ref.key()))
	var storageNodes []StoragePruneEntry
	if len(storBytes) != 0 {
		storBytes, err = snappy.Decode(nil, storBytes)
		if err != nil {
			return PruningLog{}, false, err
		}
		if err := rlp.DecodeBytes(storBytes, &storageNodes); err != nil {
			return PruningLog{}, false, err
		}
	}
	return PruningLog{StateNodes: stateNodes, StorageNodes: storageNodes}, true, nil
}

// --- Ref counts ---

func decodeRefCount(enc []byte) uint32 {
	if len(enc) == 0 {
		return 0
	}
	return binary.BigEndian.Uint32(enc)
}

func encodeRefCount(n uint32) []byte {
	enc := make([]byte, 4)
	binary.BigEndian.PutUint32(enc, n)
	return enc
}

// IncrementStateNodeRefCount adjusts the reference count of a global state-trie node by delta
// (positive on write, negative when a block leaves the retention window) and returns the
// resulting count.
func (d *Database) IncrementStateNodeRefCount(nodeHash common.Hash, delta int) (uint32, error) {
	key := stateNodeRefCountKey([32]byte(nodeHash))
	enc, _ := d.db.Get(key)
	count := int64(decodeRefCount(enc)) + int64(delta)
	if count < 0 {
		count = 0
	}
	if count == 0 {
		return 0, d.db.Delete(key)
	}
	return uint32(count), d.db.Put(key, encodeRefCount(uint32(count)))
}

// IncrementStorageNodeRefCount is IncrementStateNodeRefCount for a per-account storage-trie node.
func (d *Database) IncrementStorageNodeRefCount(addrHash, nodeHash common.Hash, delta int) (uint32, error) {
	key := storageNodeRefCountKey([32]byte(addrHash), [32]byte(nodeHash))
	enc, _ := d.db.Get(key)
	count := int64(decodeRefCount(enc)) + int64(delta)
	if count < 0 {
		count = 0
	}
	if count == 0 {
		return 0, d.db.Delete(key)
	}
	return uint32(count), d.db.Put(key, encodeRefCount(uint32(count)))
}

// --- Flat "current state" cache ---

func (d *Database) writeFlatAccount(addr common.Address, acc *types.Account) error {
	key := flatAccountKey([20]byte(addr))
	if acc == nil {
		return d.db.Delete(key)
	}
	enc, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return d.db.Put(key, enc)
}

// ReadFlatAccount returns the current flat-cache account info for addr, or ok=false if the
// account does not exist in the snapshot the cache currently reflects.
func (d *Database) ReadFlatAccount(addr common.Address) (*types.Account, bool, error) {
	enc, _ := d.db.Get(flatAccountKey([20]byte(addr)))
	if len(enc) == 0 {
		return nil, false, nil
	}
	var acc types.Account
	if err := rlp.DecodeBytes(enc, &acc); err != nil {
		return nil, false, err
	}
	return &acc, true, nil
}

func (d *Database) writeFlatStorage(addr common.Address, slot common.Hash, value [32]byte) error {
	return d.db.Put(flatStorageKey([20]byte(addr), [32]byte(slot)), value[:])
}

// ReadFlatStorage returns the current flat-cache value of addr's slot.
func (d *Database) ReadFlatStorage(addr common.Address, slot common.Hash) ([32]byte, bool, error) {
	enc, _ := d.db.Get(flatStorageKey([20]byte(addr), [32]byte(slot)))
	if len(enc) == 0 {
		return [32]byte{}, false, nil
	}
	var v [32]byte
	copy(v[:], enc)
	return v, true, nil
}

// --- Current snapshot pointer ---

// WriteCurrentSnapshotBlock atomically moves the "current snapshot block" pointer: the block
// whose state the flat caches (and the backing tries) currently reflect.
func (d *Database) WriteCurrentSnapshotBlock(ref BlockRef) error {
	enc, err := rlp.EncodeToBytes(ref)
	if err != nil {
		return err
	}
	return d.db.Put(chainDataKey(CurrentSnapshotBlockKey), enc)
}

// ReadCurrentSnapshotBlock returns the current snapshot pointer, or ok=false if none was ever set.
func (d *Database) ReadCurrentSnapshotBlock() (ref BlockRef, ok bool, err error) {
	enc, _ := d.db.Get(chainDataKey(CurrentSnapshotBlockKey))
	if len(enc) == 0 {
		return BlockRef{}, false, nil
	}
	if err := rlp.DecodeBytes(enc, &ref); err != nil {
		return BlockRef{}, false, err
	}
	return ref, true, nil
}

// ApplyBlockLog writes ref's block log, applies its "new" values into the flat cache, and
// advances the current-snapshot pointer to ref — the forward path taken the first time a block
// is applied (as opposed to Replay, which re-applies a previously logged block after a rewind).
func (d *Database) ApplyBlockLog(ref BlockRef, log BlockLog) error {
	if err := d.WriteBlockLog(ref, log); err != nil {
		return err
	}
	return d.applyForward(ref, log)
}

func (d *Database) applyForward(ref BlockRef, log BlockLog) error {
	for _, e := range log.Accounts {
		if err := d.writeFlatAccount(e.Address, e.New); err != nil {
			return err
		}
	}
	for _, e := range log.Storage {
		if err := d.writeFlatStorage(e.Address, e.Slot, e.New); err != nil {
			return err
		}
	}
	return d.WriteCurrentSnapshotBlock(ref)
}

// Rewind undoes logged blocks from the current snapshot pointer back to (and not including)
// target, restoring each entry's Previous value, in strict reverse-chain order. It stops with
// ErrReorgLogMissing if it reaches a block with no recorded log before reaching target.
func (d *Database) Rewind(target BlockRef) error {
	current, ok, err := d.ReadCurrentSnapshotBlock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrReorgLogMissing
	}
	for current.Hash != target.Hash || current.Number != target.Number {
		log, ok, err := d.ReadBlockLog(current)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReorgLogMissing
		}
		for _, e := range log.Accounts {
			if err := d.writeFlatAccount(e.Address, e.Previous); err != nil {
				return err
			}
		}
		for _, e := range log.Storage {
			if err := d.writeFlatStorage(e.Address, e.Slot, e.Old); err != nil {
				return err
			}
		}
		if err := d.WriteCurrentSnapshotBlock(log.Parent); err != nil {
			return err
		}
		current = log.Parent
	}
	return nil
}

// Replay re-applies a previously logged block on top of the current snapshot, verifying that
// the log's recorded parent matches it — the forward half of rewind/replay reorg handling.
func (d *Database) Replay(ref BlockRef, log BlockLog) error {
	current, ok, err := d.ReadCurrentSnapshotBlock()
	if err != nil {
		return err
	}
	if !ok || current.Hash != log.Parent.Hash || current.Number != log.Parent.Number {
		return ErrReplayParentMismatch
	}
	return d.applyForward(ref, log)
}
