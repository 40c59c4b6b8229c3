// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"
	"errors"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/rawdb"
	"github.com/rollupchain/rgeth/core/types"
)

// MinFullBlocks is how many of the most recent blocks are always fetched and executed in full
// rather than snap-synced, so a freshly synced node has real recent history to serve and verify
// against instead of trusting the pivot state root blind.
const MinFullBlocks = 64

// ErrPivotTooFresh is returned by headerSync when the chain tip is shallower than MinFullBlocks,
// in which case snap-sync has no useful pivot and the caller should fall back to full sync.
var ErrPivotTooFresh = errors.New("snap: chain tip shallower than minimum full-sync window")

// HeaderSource fetches headers from a specific peer, oldest first, starting at (and including)
// a block number.
type HeaderSource interface {
	GetHeaders(ctx context.Context, peer common.Hash, from uint64, amount uint64) ([]*types.Header, error)
}

// headerSync downloads every header from genesis (or from the block after its saved checkpoint) up to a fresh pivot
// a MinFullBlocks-deep offset behind the advertised chain tip, persisting a resume checkpoint
// after each peer response so a restart never re-downloads a header it already wrote.
type headerSync struct {
	db     *rawdb.Database
	source HeaderSource
	peers  *peers
}

func newHeaderSync(db *rawdb.Database, source HeaderSource, peers *peers) *headerSync {
	return &headerSync{db: db, source: source, peers: peers}
}

// selectPivot picks the state-root pivot a snap-sync run will target: MinFullBlocks behind the
// peer-advertised tip, so the node ends a sync with a real, executable recent history.
func selectPivot(tipNumber uint64) (uint64, error) {
	if tipNumber < MinFullBlocks {
		return 0, ErrPivotTooFresh
	}
	return tipNumber - MinFullBlocks, nil
}

// run fetches headers in order from the last checkpoint (or genesis) through pivot, writing
// each one and advancing the checkpoint as it goes. It returns the pivot header once reached.
func (h *headerSync) run(ctx context.Context, pivot uint64, chunk uint64) (*types.Header, error) {
	next := uint64(0)
	if hash, ok, err := loadHeaderCheckpoint(h.db); err != nil {
		return nil, err
	} else if ok {
		if n, ok, err := h.db.ReadHeaderNumber(hash); err != nil {
			return nil, err
		} else if ok {
			next = n + 1
		}
	}

	var pivotHeader *types.Header
	for next <= pivot {
		amount := chunk
		if remaining := pivot - next + 1; remaining < amount {
			amount = remaining
		}
		id, err := h.peers.pick()
		if err != nil {
			return nil, err
		}
		headers, err := h.source.GetHeaders(ctx, id, next, amount)
		if err != nil {
			h.peers.release(id, outcomeTimeout)
			continue
		}
		if len(headers) == 0 {
			h.peers.release(id, outcomeInvalid)
			continue
		}
		for _, hdr := range headers {
			if hdr.NumberU64() != next {
				h.peers.release(id, outcomeInvalid)
				return nil, ErrRangeInvalid
			}
			if err := h.db.WriteHeader(hdr); err != nil {
				h.peers.release(id, outcomeTimeout)
				return nil, err
			}
			hash := types.HeaderHash(hdr)
			if err := h.db.WriteCanonicalHash(next, hash); err != nil {
				return nil, err
			}
			if err := saveHeaderCheckpoint(h.db, hash); err != nil {
				return nil, err
			}
			if next == pivot {
				pivotHeader = hdr
			}
			next++
		}
		h.peers.release(id, outcomeSuccess)
	}
	return pivotHeader, nil
}
