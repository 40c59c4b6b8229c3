// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package types defines the block, account, and receipt shapes the storage engine and
// EXECUTE verifier operate on. The EVM interpreter itself stays external; these are the
// wire/storage representations it would act on.
package types

import (
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/rlp"
)

// EmptyRootHash is the state/storage trie root of a trie holding no entries — keccak256 of the
// RLP empty string, the same constant go-ethereum's types package exports.
var EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// EmptyCodeHash is keccak256 of the empty byte string, the CodeHash of every externally owned
// account.
var EmptyCodeHash = common.HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

// Header is a block header. Field set is trimmed to what the storage engine, snap-sync driver,
// and EXECUTE verifier actually touch.
type Header struct {
	ParentHash  common.Hash
	Coinbase    common.Address
	Root        common.Hash // state root
	TxHash      common.Hash
	ReceiptHash common.Hash
	Bloom       [256]byte
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	BaseFee     *big.Int
	PrevRandao  common.Hash
}

// NumberU64 returns Number as a uint64, matching go-ethereum's Header.NumberU64 helper.
func (h *Header) NumberU64() uint64 {
	if h.Number == nil {
		return 0
	}
	return h.Number.Uint64()
}

// Body holds the non-header content of a block.
type Body struct {
	Transactions []*Transaction
	L1Messages   []*L1MessageTx
}

// Block pairs a Header with its Body and caches the header hash.
type Block struct {
	Header *Header
	Body   *Body

	hash *common.Hash
}

func NewBlock(header *Header, body *Body) *Block {
	return &Block{Header: header, Body: body}
}

func (b *Block) Hash() common.Hash {
	if b.hash != nil {
		return *b.hash
	}
	h := HeaderHash(b.Header)
	b.hash = &h
	return h
}

// HeaderHash is keccak256(RLP(header)), the canonical block hash.
func HeaderHash(h *Header) common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic("types: header must always be RLP-encodable: " + err.Error())
	}
	return crypto.Keccak256Hash(enc)
}

func (b *Block) NumberU64() uint64 { return b.Header.NumberU64() }

// Transaction is a minimal execution-layer transaction: enough to drive nonce/balance/gas
// checks in the EXECUTE verifier without pulling in a full EVM.
type Transaction struct {
	Nonce     uint64
	GasPrice  *big.Int
	GasLimit  uint64
	To        *common.Address
	Value     *big.Int
	Data      []byte
	V, R, S   *big.Int
	BlobHashes []common.Hash // non-empty => the EXECUTE verifier must reject this block
}

func (tx *Transaction) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(tx)
	if err != nil {
		panic("types: transaction must always be RLP-encodable: " + err.Error())
	}
	return crypto.Keccak256Hash(enc)
}

func (tx *Transaction) IsBlobTx() bool { return len(tx.BlobHashes) > 0 }

// L1MessageTx is a deposit-style transaction originated on L1 and force-included by the
// sequencer, carrying the fields the rolling-hash accumulator commits to.
type L1MessageTx struct {
	QueueIndex uint64
	Gas        uint64
	To         *common.Address
	Value      *big.Int
	Data       []byte
	Sender     common.Address
}

// MessageHash returns keccak(from ‖ to ‖ value ‖ gasLimit ‖ keccak(data) ‖ nonce), the exact
// preimage scenario 6 specifies for the rolling-hash accumulator.
func (m *L1MessageTx) MessageHash(keccak256 func(...[]byte) []byte) common.Hash {
	to := common.Address{}
	if m.To != nil {
		to = *m.To
	}
	valueBytes := make([]byte, 32)
	if m.Value != nil {
		m.Value.FillBytes(valueBytes)
	}
	gasBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		gasBytes[7-i] = byte(m.Gas >> (8 * i))
	}
	dataHash := keccak256(m.Data)
	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(m.QueueIndex >> (8 * i))
	}
	return common.BytesToHash(keccak256(m.Sender.Bytes(), to.Bytes(), valueBytes, gasBytes, dataHash, nonceBytes))
}

// Receipt is the outcome of executing one transaction.
type Receipt struct {
	Status            uint64
	CumulativeGasUsed uint64
	Logs              []*Log
	TxHash            common.Hash
	GasUsed           uint64
}

// Log is a single EVM log entry, kept for receipt round-tripping.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Account is the state-trie leaf value: (nonce, balance, storage-root, code-hash).
type Account struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// TransactionLocation records where a transaction lives: block number/hash and its index.
type TransactionLocation struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Index       uint64
}
