// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"
	"testing"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/stretchr/testify/require"
)

type stubAccountRangeSender struct {
	reply *AccountRangePacket
	err   error
	calls int
}

func (s *stubAccountRangeSender) GetAccountRange(ctx context.Context, peer common.Hash, req *GetAccountRangePacket) (*AccountRangePacket, error) {
	s.calls++
	return s.reply, s.err
}
func (s *stubAccountRangeSender) GetStorageRanges(context.Context, common.Hash, *GetStorageRangesPacket) (*StorageRangesPacket, error) {
	panic("unused")
}
func (s *stubAccountRangeSender) GetByteCodes(context.Context, common.Hash, *GetByteCodesPacket) (*ByteCodesPacket, error) {
	panic("unused")
}
func (s *stubAccountRangeSender) GetTrieNodes(context.Context, common.Hash, *GetTrieNodesPacket) (*TrieNodesPacket, error) {
	panic("unused")
}

// TestAccountRangeFetcherFetchChunkBuffersVerifiedAccounts confirms a fully-proven reply gets
// buffered, marks the segment complete, and scores the peer a success.
func TestAccountRangeFetcherFetchChunkBuffersVerifiedAccounts(t *testing.T) {
	store, root, keys, values := rangeFixture(t)
	proof := proveAll(t, store, root, keys)

	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newAccountRangeFetcher(root, maxHash(), newPeers(src, nil), crypto.Keccak256)

	entries := make([]AccountRangeEntry, len(keys))
	for i, k := range keys {
		entries[i] = AccountRangeEntry{Hash: k, Body: values[i]}
	}
	sender := &stubAccountRangeSender{reply: &AccountRangePacket{Accounts: entries, Proof: proof.Nodes()}}

	_, done, err := f.fetchChunk(context.Background(), sender, common.Hash{})
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.successes)

	drained := f.drain()
	require.Len(t, drained, len(keys))
	for i, e := range drained {
		require.Equal(t, keys[i], e.Hash)
		require.Equal(t, values[i], e.Body)
	}
	require.Empty(t, f.drain()) // second drain is empty
}

// TestAccountRangeFetcherFetchChunkRetriesOnEmptyReply is the "peer sent nothing at all" case:
// an account-less, proof-less reply is treated as a transient miss rather than "range is empty",
// so the cursor doesn't advance and the peer is scored as having timed out.
func TestAccountRangeFetcherFetchChunkRetriesOnEmptyReply(t *testing.T) {
	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newAccountRangeFetcher(common.HexToHash("0xroot"), maxHash(), newPeers(src, nil), crypto.Keccak256)

	sender := &stubAccountRangeSender{reply: &AccountRangePacket{}}
	cursor := common.HexToHash("0x05")
	next, done, err := f.fetchChunk(context.Background(), sender, cursor)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, cursor, next)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.failures)
	require.Empty(t, f.drain())
}

// TestAccountRangeFetcherFetchChunkRejectsBadProof confirms a reply whose proof doesn't actually
// cover the claimed accounts surfaces ErrRangeInvalid and scores the peer a critical failure
// rather than getting buffered for the rebuild phase.
func TestAccountRangeFetcherFetchChunkRejectsBadProof(t *testing.T) {
	store, root, keys, values := rangeFixture(t)
	proof := proveAll(t, store, root, keys)

	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newAccountRangeFetcher(root, maxHash(), newPeers(src, nil), crypto.Keccak256)

	entries := make([]AccountRangeEntry, len(keys))
	for i, k := range keys {
		entries[i] = AccountRangeEntry{Hash: k, Body: values[i]}
	}
	entries[0].Body = []byte("tampered")
	sender := &stubAccountRangeSender{reply: &AccountRangePacket{Accounts: entries, Proof: proof.Nodes()}}

	_, _, err := f.fetchChunk(context.Background(), sender, common.Hash{})
	require.ErrorIs(t, err, ErrRangeInvalid)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.criticals)
	require.Empty(t, f.drain())
}
