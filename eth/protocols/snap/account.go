// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"

	"github.com/rollupchain/rgeth/common"
)

// RequestBytes is the Bytes field every outgoing snap request carries, asking the peer to cap
// its reply near this size rather than returning the entire remaining range in one packet.
const RequestBytes = 512 * 1024

// accountRangeFetcher drives one segment of the account-range phase: it repeatedly requests the
// next chunk starting at its cursor, verifies the reply against root, and buffers verified
// accounts for the rebuild phase. It persists nothing itself; the caller saves the cursor each
// chunk returns so a restart resumes mid-segment.
type accountRangeFetcher struct {
	root      common.Hash
	segEnd    common.Hash
	peers     *peers
	keccak256 func(...[]byte) []byte
	buffer    []accountEntry
}

func newAccountRangeFetcher(root, segEnd common.Hash, peers *peers, keccak256 func(...[]byte) []byte) *accountRangeFetcher {
	return &accountRangeFetcher{root: root, segEnd: segEnd, peers: peers, keccak256: keccak256}
}

// fetchChunk requests [cursor, segEnd] from an eligible peer, verifies the reply, appends
// verified accounts to buffer, and returns the next cursor to resume from plus whether the
// segment's range is now fully covered.
func (f *accountRangeFetcher) fetchChunk(ctx context.Context, sender Requester, cursor common.Hash) (next common.Hash, done bool, err error) {
	id, err := f.peers.pick()
	if err != nil {
		return cursor, false, err
	}
	reply, err := sender.GetAccountRange(ctx, id, &GetAccountRangePacket{
		Root: f.root, Origin: cursor, Limit: f.segEnd, Bytes: RequestBytes,
	})
	if err != nil {
		f.peers.release(id, outcomeTimeout)
		return cursor, false, nil
	}
	if len(reply.Accounts) == 0 && len(reply.Proof) == 0 {
		// An empty range is only valid if the peer can prove nothing exists in it; treat a
		// completely empty reply as a transient miss and retry the same bounds.
		f.peers.release(id, outcomeTimeout)
		return cursor, false, nil
	}

	keys := make([]common.Hash, len(reply.Accounts))
	values := make([][]byte, len(reply.Accounts))
	for i, e := range reply.Accounts {
		keys[i] = e.Hash
		values[i] = e.Body
	}
	complete, verr := verifyRange(f.root, cursor, f.segEnd, keys, values, reply.Proof, f.keccak256)
	if verr != nil {
		f.peers.release(id, outcomeInvalid)
		return cursor, false, verr
	}
	f.peers.release(id, outcomeSuccess)

	for _, e := range reply.Accounts {
		f.buffer = append(f.buffer, accountEntry{Hash: e.Hash, Body: e.Body})
	}
	if len(keys) == 0 {
		return cursor, complete, nil
	}
	next = nextKey(keys[len(keys)-1])
	return next, complete, nil
}

// drain empties and returns the buffered accounts collected since the last drain, in arrival
// (ascending hash) order.
func (f *accountRangeFetcher) drain() []accountEntry {
	out := f.buffer
	f.buffer = nil
	return out
}
