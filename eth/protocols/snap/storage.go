// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"

	"github.com/rollupchain/rgeth/common"
)

// BigStorageThreshold is the slot count above which an account's storage is no longer fetched
// as part of a shared-root group request and instead gets its own dedicated, sub-chunked task —
// mirroring how a handful of very large contracts (popular token ledgers, the like) would
// otherwise monopolize every request slot a group round trip has to offer.
const BigStorageThreshold = 4096

// StorageSlotsPerChunk bounds how many slots a single big-account sub-chunk targets; the density
// estimate from the account's prior range reply decides how many sub-chunks to split into.
const StorageSlotsPerChunk = 2048

// storageTask is one unit of storage-range work: either a shared-root group of ordinary
// accounts fetched together, or one sub-chunk of a single oversized account's range.
type storageTask struct {
	Accounts []common.Hash // group members, or a single big account
	Origin   common.Hash
	Limit    common.Hash
	Big      bool
}

// planStorageTasks turns account groups into fetch tasks: ordinary groups pass through as one
// task each, while a group whose sole member is known (via estimatedSlots) to exceed
// BigStorageThreshold is split into sub-chunks sized by its estimated slot density.
func planStorageTasks(groups []storageGroup, estimatedSlots func(common.Hash) uint64) []storageTask {
	var tasks []storageTask
	for _, g := range groups {
		if len(g.Accounts) == 1 {
			if n := estimatedSlots(g.Accounts[0]); n > BigStorageThreshold {
				tasks = append(tasks, splitBigAccount(g.Accounts[0], n)...)
				continue
			}
		}
		tasks = append(tasks, storageTask{Accounts: g.Accounts, Limit: maxHash()})
	}
	return tasks
}

// splitBigAccount divides one account's [0, max] key space into ceil(slots/StorageSlotsPerChunk)
// equal sub-ranges, each its own task so no single round trip has to carry the whole account.
func splitBigAccount(addrHash common.Hash, slots uint64) []storageTask {
	count := int(slots / StorageSlotsPerChunk)
	if slots%StorageSlotsPerChunk != 0 || count == 0 {
		count++
	}
	tasks := make([]storageTask, 0, count)
	for i := 0; i < count; i++ {
		origin, limit := subrange(i, count)
		tasks = append(tasks, storageTask{Accounts: []common.Hash{addrHash}, Origin: origin, Limit: limit, Big: true})
	}
	return tasks
}

func subrange(i, count int) (origin, limit common.Hash) {
	step := 0x100 / count
	if step == 0 {
		step = 1
	}
	origin[0] = byte(i * step)
	if i == count-1 {
		limit = maxHash()
	} else {
		limit[0] = byte((i+1)*step) - 1
		for j := 1; j < len(limit); j++ {
			limit[j] = 0xff
		}
	}
	return origin, limit
}

func maxHash() common.Hash {
	var h common.Hash
	for i := range h {
		h[i] = 0xff
	}
	return h
}

// storageRangeFetcher issues one storageTask at a time and verifies the reply against each
// account's own storage root.
type storageRangeFetcher struct {
	stateRoot common.Hash
	peers     *peers
	keccak256 func(...[]byte) []byte
}

func newStorageRangeFetcher(stateRoot common.Hash, peers *peers, keccak256 func(...[]byte) []byte) *storageRangeFetcher {
	return &storageRangeFetcher{stateRoot: stateRoot, peers: peers, keccak256: keccak256}
}

// storageSlots is what one account in a task resolved to: its verified slots plus whether its
// task-relative range came back complete.
type storageSlots struct {
	Account  common.Hash
	Slots    []StorageRangeEntry
	Complete bool
}

// fetch requests task and verifies each account's reply against storageRootOf, the account's
// storage root as recorded in its (already rebuilt or buffered) account record.
func (f *storageRangeFetcher) fetch(ctx context.Context, sender Requester, task storageTask, storageRootOf func(common.Hash) common.Hash) ([]storageSlots, error) {
	id, err := f.peers.pick()
	if err != nil {
		return nil, err
	}
	reply, err := sender.GetStorageRanges(ctx, id, &GetStorageRangesPacket{
		Root: f.stateRoot, Accounts: task.Accounts, Origin: task.Origin, Limit: task.Limit, Bytes: RequestBytes,
	})
	if err != nil {
		f.peers.release(id, outcomeTimeout)
		return nil, nil
	}
	if len(reply.Slots) > len(task.Accounts) {
		f.peers.release(id, outcomeInvalid)
		return nil, ErrRangeInvalid
	}

	out := make([]storageSlots, 0, len(reply.Slots))
	for i, slots := range reply.Slots {
		acc := task.Accounts[i]
		root := storageRootOf(acc)
		keys := make([]common.Hash, len(slots))
		values := make([][]byte, len(slots))
		for j, e := range slots {
			keys[j] = e.Hash
			values[j] = e.Body
		}
		// Only the last account in a multi-account reply carries proof nodes; every earlier
		// account's range is implicitly asserted complete by the peer including a successor.
		var proof [][]byte
		if i == len(reply.Slots)-1 {
			proof = reply.Proof
		}
		complete, verr := verifyRange(root, task.Origin, task.Limit, keys, values, proof, f.keccak256)
		if verr != nil {
			f.peers.release(id, outcomeInvalid)
			return nil, verr
		}
		out = append(out, storageSlots{Account: acc, Slots: slots, Complete: complete})
	}
	f.peers.release(id, outcomeSuccess)
	return out, nil
}
