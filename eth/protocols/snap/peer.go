// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"
	"errors"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/p2p/peertable"
)

// ErrNoPeers is returned by the peers collaborator when no connected peer currently supports
// the snap capability — a transient condition the caller should sleep and retry on.
var ErrNoPeers = errors.New("snap: no eligible peer")

// snapCapability is what a peer must advertise to receive snap requests.
var snapCapability = []peertable.Capability{{Name: ProtocolName, Version: 1}}

// Requester sends one of the four snap wire requests to a specific peer and returns its typed
// reply. The RLPx transport that actually frames and delivers these messages lives outside this
// package; Requester is the seam a real transport implementation plugs into.
type Requester interface {
	GetAccountRange(ctx context.Context, peer common.Hash, req *GetAccountRangePacket) (*AccountRangePacket, error)
	GetStorageRanges(ctx context.Context, peer common.Hash, req *GetStorageRangesPacket) (*StorageRangesPacket, error)
	GetByteCodes(ctx context.Context, peer common.Hash, req *GetByteCodesPacket) (*ByteCodesPacket, error)
	GetTrieNodes(ctx context.Context, peer common.Hash, req *GetTrieNodesPacket) (*TrieNodesPacket, error)
}

// peerSource is the subset of peertable.PeerTable the driver needs: pick a peer eligible for
// more work, and report how a request against it went so future selections account for it.
type peerSource interface {
	GetBestPeer(caps []peertable.Capability) (common.Hash, peertable.Connection, error)
	IncRequests(nodeID common.Hash) error
	DecRequests(nodeID common.Hash) error
	RecordSuccess(nodeID common.Hash) error
	RecordFailure(nodeID common.Hash) error
	RecordCriticalFailure(nodeID common.Hash) error
}

// peers bundles peer selection and request dispatch with the scoring side effects spec'd for
// every transient and critical error kind, so phase workers never touch peertable directly.
type peers struct {
	table   peerSource
	sender  Requester
}

func newPeers(table peerSource, sender Requester) *peers {
	return &peers{table: table, sender: sender}
}

// pick selects an eligible peer, marking one more request in flight against it. The caller must
// call release exactly once with the outcome of the request it goes on to make.
func (p *peers) pick() (common.Hash, error) {
	id, _, err := p.table.GetBestPeer(snapCapability)
	if err != nil {
		return common.Hash{}, err
	}
	if id == (common.Hash{}) {
		return common.Hash{}, ErrNoPeers
	}
	if err := p.table.IncRequests(id); err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// requestOutcome classifies how a dispatched request resolved, driving which peer-scoring call
// release makes.
type requestOutcome int

const (
	outcomeSuccess requestOutcome = iota
	outcomeTimeout
	outcomeInvalid
)

func (p *peers) release(id common.Hash, outcome requestOutcome) error {
	if err := p.table.DecRequests(id); err != nil {
		return err
	}
	switch outcome {
	case outcomeSuccess:
		return p.table.RecordSuccess(id)
	case outcomeTimeout:
		return p.table.RecordFailure(id)
	case outcomeInvalid:
		return p.table.RecordCriticalFailure(id)
	}
	return nil
}
