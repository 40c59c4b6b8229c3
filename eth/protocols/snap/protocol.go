// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package snap implements the snap-sync driver: a state-machine that walks a node from a
// headerless database to a fully populated one by fetching account ranges, storage ranges and
// bytecodes directly from peers, then healing whatever the range sweep missed.
package snap

import "github.com/rollupchain/rgeth/common"

// Protocol name and wire message codes, mirroring the eth/66-style request/response codes this
// driver's four RPCs use.
const (
	ProtocolName = "snap"

	GetAccountRangeMsg = 0x00
	AccountRangeMsg    = 0x01
	GetStorageRangesMsg = 0x02
	StorageRangesMsg    = 0x03
	GetByteCodesMsg     = 0x04
	ByteCodesMsg        = 0x05
	GetTrieNodesMsg     = 0x06
	TrieNodesMsg        = 0x07
)

// MaxResponseBytes is a 2 MiB response-size bound; no code in this package checks a reply
// against it.
const MaxResponseBytes = 2 * 1024 * 1024

// GetAccountRangePacket requests the sequence of accounts whose hashed address falls in
// [Origin, Limit], starting at Origin, under the state trie rooted at Root.
type GetAccountRangePacket struct {
	ID       uint64
	Root     common.Hash
	Origin   common.Hash
	Limit    common.Hash
	Bytes    uint64
}

// AccountRangeEntry is one (hashed address, RLP-encoded account) pair in an AccountRangePacket.
type AccountRangeEntry struct {
	Hash common.Hash
	Body []byte
}

// AccountRangePacket is the reply to GetAccountRangePacket: the accounts found plus the Merkle
// proof nodes needed to verify them against Root without trusting the peer.
type AccountRangePacket struct {
	ID       uint64
	Accounts []AccountRangeEntry
	Proof    [][]byte
}

// GetStorageRangesPacket requests storage slots for one or more accounts (all sharing a single
// request so a peer can batch sibling accounts with the same expected range) under Root.
type GetStorageRangesPacket struct {
	ID       uint64
	Root     common.Hash
	Accounts []common.Hash
	Origin   common.Hash
	Limit    common.Hash
	Bytes    uint64
}

// StorageRangeEntry is one (slot hash, RLP-encoded value) pair.
type StorageRangeEntry struct {
	Hash common.Hash
	Body []byte
}

// StorageRangesPacket is the reply to GetStorageRangesPacket: one slot slice per requested
// account (in request order) plus proof nodes covering the last, possibly incomplete, account.
type StorageRangesPacket struct {
	ID    uint64
	Slots [][]StorageRangeEntry
	Proof [][]byte
}

// GetByteCodesPacket requests contract bytecode by hash.
type GetByteCodesPacket struct {
	ID     uint64
	Hashes []common.Hash
	Bytes  uint64
}

// ByteCodesPacket is the reply to GetByteCodesPacket, in request order; a peer may omit trailing
// entries it does not have, so the response can be shorter than the request.
type ByteCodesPacket struct {
	ID    uint64
	Codes [][]byte
}

// GetTrieNodesPacket requests individual trie nodes by path. Each path is a sequence of compact
// nibble-encoded segments: a one-element path addresses the state trie, a two-element path
// addresses a storage trie (segment 0 = the owning account's hashed address).
type GetTrieNodesPacket struct {
	ID    uint64
	Root  common.Hash
	Paths [][][]byte
	Bytes uint64
}

// TrieNodesPacket is the reply to GetTrieNodesPacket, in request order; missing nodes are
// represented by an empty entry.
type TrieNodesPacket struct {
	ID    uint64
	Nodes [][]byte
}
