// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"
	"testing"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/rawdb"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/ethdb"
	"github.com/rollupchain/rgeth/ethdb/memorydb"
	"github.com/stretchr/testify/require"
)

func newBytecodeTestDatabase(t *testing.T) *rawdb.Database {
	t.Helper()
	store := memorydb.New()
	t.Cleanup(func() { store.Close() })
	return rawdb.NewDatabase(ethdb.WithAsync(store), 1)
}

type stubByteCodeSender struct {
	codes map[common.Hash][]byte
	calls int
}

func (s *stubByteCodeSender) GetAccountRange(context.Context, common.Hash, *GetAccountRangePacket) (*AccountRangePacket, error) {
	panic("unused")
}
func (s *stubByteCodeSender) GetStorageRanges(context.Context, common.Hash, *GetStorageRangesPacket) (*StorageRangesPacket, error) {
	panic("unused")
}
func (s *stubByteCodeSender) GetTrieNodes(context.Context, common.Hash, *GetTrieNodesPacket) (*TrieNodesPacket, error) {
	panic("unused")
}
func (s *stubByteCodeSender) GetByteCodes(ctx context.Context, peer common.Hash, req *GetByteCodesPacket) (*ByteCodesPacket, error) {
	s.calls++
	codes := make([][]byte, len(req.Hashes))
	for i, h := range req.Hashes {
		codes[i] = s.codes[h]
	}
	return &ByteCodesPacket{Codes: codes}, nil
}

// TestBytecodeFetcherWantDedupesAgainstStoreAndPending confirms want() skips hashes already
// present in the code table as well as hashes already queued, so the same code is never fetched
// twice across the account-range and healing phases that both feed this fetcher.
func TestBytecodeFetcherWantDedupesAgainstStoreAndPending(t *testing.T) {
	db := newBytecodeTestDatabase(t)
	have := common.BytesToHash(crypto.Keccak256([]byte("already-have")))
	require.NoError(t, db.WriteCode(have, []byte("already-have")))

	f := newBytecodeFetcher(db, newPeers(&stubPeerSource{best: common.HexToHash("0x01")}, nil), crypto.Keccak256)
	require.NoError(t, f.want(have))
	require.Empty(t, f.pending)

	want := common.HexToHash("0xabc")
	require.NoError(t, f.want(want))
	require.NoError(t, f.want(want))
	require.Equal(t, []common.Hash{want}, f.pending)
}

// TestBytecodeFetcherDrainChunkWritesVerifiedCode confirms a reply whose entries hash-match their
// requested hashes get written to the code table and cleared from pending.
func TestBytecodeFetcherDrainChunkWritesVerifiedCode(t *testing.T) {
	db := newBytecodeTestDatabase(t)
	code := []byte("contract-bytecode")
	hash := common.BytesToHash(crypto.Keccak256(code))

	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newBytecodeFetcher(db, newPeers(src, nil), crypto.Keccak256)
	require.NoError(t, f.want(hash))

	sender := &stubByteCodeSender{codes: map[common.Hash][]byte{hash: code}}
	fetched, err := f.drainChunk(context.Background(), sender)
	require.NoError(t, err)
	require.Equal(t, 1, fetched)
	require.True(t, f.done())

	got, err := db.ReadCode(hash)
	require.NoError(t, err)
	require.Equal(t, code, got)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.successes)
}

// TestBytecodeFetcherDrainChunkRequeuesHashMismatch is the "peer sent the wrong bytecode" case:
// a reply entry whose hash doesn't match what was requested is dropped, re-queued, and the peer
// is scored as having sent invalid data rather than merely timing out.
func TestBytecodeFetcherDrainChunkRequeuesHashMismatch(t *testing.T) {
	db := newBytecodeTestDatabase(t)
	want := common.HexToHash("0xdead")

	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newBytecodeFetcher(db, newPeers(src, nil), crypto.Keccak256)
	require.NoError(t, f.want(want))

	sender := &stubByteCodeSender{codes: map[common.Hash][]byte{want: []byte("not-the-requested-code")}}
	fetched, err := f.drainChunk(context.Background(), sender)
	require.NoError(t, err)
	require.Equal(t, 0, fetched)
	require.False(t, f.done())
	require.Equal(t, []common.Hash{want}, f.pending)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.criticals)
}

// TestBytecodeFetcherDrainChunkRequeuesMissingEntry is the "peer doesn't have this code" case: an
// empty reply entry re-queues its hash without being treated as a hash mismatch.
func TestBytecodeFetcherDrainChunkRequeuesMissingEntry(t *testing.T) {
	db := newBytecodeTestDatabase(t)
	want := common.HexToHash("0xabsent")

	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newBytecodeFetcher(db, newPeers(src, nil), crypto.Keccak256)
	require.NoError(t, f.want(want))

	sender := &stubByteCodeSender{codes: map[common.Hash][]byte{}}
	fetched, err := f.drainChunk(context.Background(), sender)
	require.NoError(t, err)
	require.Equal(t, 0, fetched)
	require.Equal(t, []common.Hash{want}, f.pending)
	require.Equal(t, []common.Hash{common.HexToHash("0x01")}, src.successes)
}

// TestBytecodeFetcherDrainChunkStopsAtMaxChunks confirms the fetcher refuses to issue more than
// MaxBytecodeChunks round trips even with pending work left, leaving the remainder queued rather
// than silently dropping it.
func TestBytecodeFetcherDrainChunkStopsAtMaxChunks(t *testing.T) {
	db := newBytecodeTestDatabase(t)
	src := &stubPeerSource{best: common.HexToHash("0x01")}
	f := newBytecodeFetcher(db, newPeers(src, nil), crypto.Keccak256)
	f.chunks = MaxBytecodeChunks

	require.NoError(t, f.want(common.HexToHash("0x01")))
	sender := &stubByteCodeSender{codes: map[common.Hash][]byte{}}
	fetched, err := f.drainChunk(context.Background(), sender)
	require.NoError(t, err)
	require.Equal(t, 0, fetched)
	require.Equal(t, 0, sender.calls)
	require.False(t, f.done())
}
