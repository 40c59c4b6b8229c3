// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/rawdb"
	"github.com/rollupchain/rgeth/rlp"
)

// StateTrieSegments is the number of address-space partitions of the account-range phase; each
// owns a disjoint, contiguous slice of the 256-bit hash space, and they are fetched in turn.
const StateTrieSegments = 2

// AccountRangeChunkCount is a per-segment sub-chunk count that no code consults; each segment's
// range is fetched as one sequential run of requests.
const AccountRangeChunkCount = 4

// MaxBytecodeChunks bounds the number of GetByteCodes batches the bytecode phase issues.
const MaxBytecodeChunks = 800

// segmentBounds returns the half-open hash range [start, end) owned by segment i of
// StateTrieSegments; the space is divided into StateTrieSegments equal-sized slices, the last
// one extended to the maximum hash so rounding never drops a key.
func segmentBounds(i int) (start, end common.Hash) {
	size := new(big.Int).Lsh(big.NewInt(1), 256)
	size.Div(size, big.NewInt(StateTrieSegments))

	s := new(big.Int).Mul(size, big.NewInt(int64(i)))
	var startHash common.Hash
	s.FillBytes(startHash[:])

	if i == StateTrieSegments-1 {
		for j := range end {
			end[j] = 0xff
		}
		return startHash, end
	}
	e := new(big.Int).Mul(size, big.NewInt(int64(i+1)))
	var endHash common.Hash
	e.FillBytes(endHash[:])
	return startHash, endHash
}

// segmentCheckpoint records how far segment i has progressed through its range.
type segmentCheckpoint struct {
	Next common.Hash
	Done bool
}

// trieKeyCheckpoint is the StateTrieKeyCheckpoint SnapState entry: one cursor per segment.
type trieKeyCheckpoint struct {
	Segments [StateTrieSegments]segmentCheckpoint
}

// rebuildCheckpoint is the StateTrieRebuildCheckpoint SnapState entry: the reconstructed trie's
// current root plus one insertion cursor per segment, so rebuild resumes exactly where it
// stopped rather than reinserting from the first buffered leaf.
type rebuildCheckpoint struct {
	Root     common.Hash
	Segments [StateTrieSegments]common.Hash
}

// healPaths is the wire/storage shape for both StateHealPaths and per-account StorageHealPaths:
// a flat list of compact nibble paths still owed a GetTrieNodes round trip.
type healPaths struct {
	Paths [][]byte
}

// storageHealEntry pairs one account's hashed address with its pending storage-heal paths, the
// RLP-friendly shape of the StorageHealPaths map (RLP has no native map type).
type storageHealEntry struct {
	Addr  common.Hash
	Paths [][]byte
}

type storageHealPaths struct {
	Entries []storageHealEntry
}

// loadTrieKeyCheckpoint reads the account-range phase's resume point, or a zero-valued (fresh
// start) checkpoint if none was ever persisted.
func loadTrieKeyCheckpoint(db *rawdb.Database) (trieKeyCheckpoint, error) {
	enc, err := db.ReadSnapState(rawdb.StateTrieKeyCheckpointKey)
	if err != nil {
		return trieKeyCheckpoint{}, err
	}
	if len(enc) == 0 {
		return trieKeyCheckpoint{}, nil
	}
	var cp trieKeyCheckpoint
	if err := rlp.DecodeBytes(enc, &cp); err != nil {
		return trieKeyCheckpoint{}, err
	}
	return cp, nil
}

func saveTrieKeyCheckpoint(db *rawdb.Database, cp trieKeyCheckpoint) error {
	enc, err := rlp.EncodeToBytes(cp)
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.StateTrieKeyCheckpointKey, enc)
}

func loadHeaderCheckpoint(db *rawdb.Database) (common.Hash, bool, error) {
	enc, err := db.ReadSnapState(rawdb.HeaderDownloadCheckpointKey)
	if err != nil || len(enc) == 0 {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(enc), true, nil
}

func saveHeaderCheckpoint(db *rawdb.Database, hash common.Hash) error {
	return db.WriteSnapState(rawdb.HeaderDownloadCheckpointKey, hash[:])
}

func loadStateHealPaths(db *rawdb.Database) ([][]byte, error) {
	enc, err := db.ReadSnapState(rawdb.StateHealPathsKey)
	if err != nil || len(enc) == 0 {
		return nil, err
	}
	var hp healPaths
	if err := rlp.DecodeBytes(enc, &hp); err != nil {
		return nil, err
	}
	return hp.Paths, nil
}

func saveStateHealPaths(db *rawdb.Database, paths [][]byte) error {
	enc, err := rlp.EncodeToBytes(healPaths{Paths: paths})
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.StateHealPathsKey, enc)
}

func loadStorageHealPaths(db *rawdb.Database) (map[common.Hash][][]byte, error) {
	enc, err := db.ReadSnapState(rawdb.StorageHealPathsKey)
	if err != nil || len(enc) == 0 {
		return nil, err
	}
	var shp storageHealPaths
	if err := rlp.DecodeBytes(enc, &shp); err != nil {
		return nil, err
	}
	out := make(map[common.Hash][][]byte, len(shp.Entries))
	for _, e := range shp.Entries {
		out[e.Addr] = e.Paths
	}
	return out, nil
}

func saveStorageHealPaths(db *rawdb.Database, paths map[common.Hash][][]byte) error {
	shp := storageHealPaths{Entries: make([]storageHealEntry, 0, len(paths))}
	for addr, p := range paths {
		shp.Entries = append(shp.Entries, storageHealEntry{Addr: addr, Paths: p})
	}
	enc, err := rlp.EncodeToBytes(shp)
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.StorageHealPathsKey, enc)
}

func loadRebuildCheckpoint(db *rawdb.Database) (rebuildCheckpoint, bool, error) {
	enc, err := db.ReadSnapState(rawdb.StateTrieRebuildCheckpointKey)
	if err != nil || len(enc) == 0 {
		return rebuildCheckpoint{}, false, err
	}
	var cp rebuildCheckpoint
	if err := rlp.DecodeBytes(enc, &cp); err != nil {
		return rebuildCheckpoint{}, false, err
	}
	return cp, true, nil
}

func saveRebuildCheckpoint(db *rawdb.Database, cp rebuildCheckpoint) error {
	enc, err := rlp.EncodeToBytes(cp)
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.StateTrieRebuildCheckpointKey, enc)
}

func loadPendingStorageRebuild(db *rawdb.Database) ([]common.Hash, error) {
	enc, err := db.ReadSnapState(rawdb.StorageTrieRebuildPendingKey)
	if err != nil || len(enc) == 0 {
		return nil, err
	}
	var list []common.Hash
	if err := rlp.DecodeBytes(enc, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func savePendingStorageRebuild(db *rawdb.Database, list []common.Hash) error {
	enc, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.StorageTrieRebuildPendingKey, enc)
}

// pendingAccountSegments is the RLP shape of the account-range phase's buffered leaves: one
// slice of entries per state-trie segment, persisted so a restart between StateSync and Rebuild
// doesn't have to re-fetch every account already verified and buffered.
type pendingAccountSegments struct {
	Segments [StateTrieSegments][]accountEntry
}

func loadPendingAccountSegments(db *rawdb.Database) ([StateTrieSegments][]accountEntry, error) {
	var out [StateTrieSegments][]accountEntry
	enc, err := db.ReadSnapState(rawdb.PendingAccountSegmentsKey)
	if err != nil || len(enc) == 0 {
		return out, err
	}
	var p pendingAccountSegments
	if err := rlp.DecodeBytes(enc, &p); err != nil {
		return out, err
	}
	return p.Segments, nil
}

func savePendingAccountSegments(db *rawdb.Database, segments [StateTrieSegments][]accountEntry) error {
	enc, err := rlp.EncodeToBytes(pendingAccountSegments{Segments: segments})
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.PendingAccountSegmentsKey, enc)
}

// pendingStorageSlotEntry pairs one account's hashed address with its buffered storage slots,
// the RLP-friendly shape of the PendingStorageSlots map (RLP has no native map type).
type pendingStorageSlotEntry struct {
	Addr  common.Hash
	Slots []accountEntry
}

type pendingStorageSlots struct {
	Entries []pendingStorageSlotEntry
}

func loadPendingStorageSlots(db *rawdb.Database) (map[common.Hash][]accountEntry, error) {
	enc, err := db.ReadSnapState(rawdb.PendingStorageSlotsKey)
	if err != nil || len(enc) == 0 {
		return nil, err
	}
	var p pendingStorageSlots
	if err := rlp.DecodeBytes(enc, &p); err != nil {
		return nil, err
	}
	out := make(map[common.Hash][]accountEntry, len(p.Entries))
	for _, e := range p.Entries {
		out[e.Addr] = e.Slots
	}
	return out, nil
}

func savePendingStorageSlots(db *rawdb.Database, slots map[common.Hash][]accountEntry) error {
	p := pendingStorageSlots{Entries: make([]pendingStorageSlotEntry, 0, len(slots))}
	for addr, s := range slots {
		p.Entries = append(p.Entries, pendingStorageSlotEntry{Addr: addr, Slots: s})
	}
	enc, err := rlp.EncodeToBytes(p)
	if err != nil {
		return err
	}
	return db.WriteSnapState(rawdb.PendingStorageSlotsKey, enc)
}
