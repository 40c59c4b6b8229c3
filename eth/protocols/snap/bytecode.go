// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/rawdb"
)

// BytecodeChunkSize is how many code hashes are batched into a single GetByteCodes request.
const BytecodeChunkSize = 128

// bytecodeFetcher pulls contract bytecode for a set of code hashes discovered during the
// account-range and healing phases, hashing each reply entry to confirm it matches the hash it
// was requested for before it is ever written to the code table.
type bytecodeFetcher struct {
	db        *rawdb.Database
	peers     *peers
	keccak256 func(...[]byte) []byte
	pending   []common.Hash
	chunks    int
}

func newBytecodeFetcher(db *rawdb.Database, peers *peers, keccak256 func(...[]byte) []byte) *bytecodeFetcher {
	return &bytecodeFetcher{db: db, peers: peers, keccak256: keccak256}
}

// want queues hash for fetching unless its code is already present or already queued.
func (f *bytecodeFetcher) want(hash common.Hash) error {
	code, err := f.db.ReadCode(hash)
	if err != nil {
		return err
	}
	if len(code) > 0 {
		return nil
	}
	for _, h := range f.pending {
		if h == hash {
			return nil
		}
	}
	f.pending = append(f.pending, hash)
	return nil
}

// drainChunk pops and fetches up to BytecodeChunkSize pending hashes in one round trip, writing
// each verified entry to the code table and re-queuing any hash the peer failed to deliver.
func (f *bytecodeFetcher) drainChunk(ctx context.Context, sender Requester) (fetched int, err error) {
	if len(f.pending) == 0 {
		return 0, nil
	}
	if f.chunks >= MaxBytecodeChunks {
		return 0, nil
	}
	n := BytecodeChunkSize
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	f.chunks++

	id, err := f.peers.pick()
	if err != nil {
		f.pending = append(batch, f.pending...)
		return 0, err
	}
	reply, err := sender.GetByteCodes(ctx, id, &GetByteCodesPacket{Hashes: batch, Bytes: RequestBytes})
	if err != nil {
		f.peers.release(id, outcomeTimeout)
		f.pending = append(batch, f.pending...)
		return 0, nil
	}

	bad := false
	for i, want := range batch {
		if i >= len(reply.Codes) || len(reply.Codes[i]) == 0 {
			f.pending = append(f.pending, want)
			continue
		}
		got := common.BytesToHash(f.keccak256(reply.Codes[i]))
		if got != want {
			bad = true
			f.pending = append(f.pending, want)
			continue
		}
		if err := f.db.WriteCode(want, reply.Codes[i]); err != nil {
			f.peers.release(id, outcomeTimeout)
			return fetched, err
		}
		fetched++
	}
	if bad {
		f.peers.release(id, outcomeInvalid)
	} else {
		f.peers.release(id, outcomeSuccess)
	}
	return fetched, nil
}

func (f *bytecodeFetcher) done() bool { return len(f.pending) == 0 }
