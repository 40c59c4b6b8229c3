// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package executor

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/rollupchain/rgeth/common"
)

// wordSize is the ABI word width every head slot and offset occupies.
const wordSize = 32

// headSlots is the EXECUTE calldata's fixed head: everything before the dynamic txs/witness
// payloads. There is no general-purpose ABI library anywhere in this codebase's dependency
// corpus, and this calldata is a single fixed shape rather than an arbitrary contract call, so
// the head/tail layout is decoded directly rather than through a reflection-based ABI decoder.
const headSlots = 14

// Input is the fully decoded EXECUTE calldata.
type Input struct {
	PreStateRoot          common.Hash
	PostStateRoot         common.Hash
	PostReceiptsRoot      common.Hash
	BlockNumber           uint64
	BlockGasLimit         uint64
	Coinbase              common.Address
	PrevRandao            common.Hash
	Timestamp             uint64
	ParentBaseFee         *big.Int
	ParentGasLimit        uint64
	ParentGasUsed         uint64
	L1MessagesRollingHash common.Hash
	Txs                   []byte
	WitnessData           []byte
}

// DecodeInput parses the ABI-encoded EXECUTE calldata: 14 fixed 32-byte head words followed by
// the dynamic txs (RLP) and witness (JSON) byte arrays the last two head words point at.
func DecodeInput(data []byte) (*Input, error) {
	if len(data) < headSlots*wordSize {
		return nil, fmt.Errorf("executor: calldata too short: have %d bytes, want at least %d", len(data), headSlots*wordSize)
	}
	word := func(i int) []byte { return data[i*wordSize : (i+1)*wordSize] }

	in := &Input{
		PreStateRoot:          common.BytesToHash(word(0)),
		PostStateRoot:         common.BytesToHash(word(1)),
		PostReceiptsRoot:      common.BytesToHash(word(2)),
		BlockNumber:           beUint64(word(3)),
		BlockGasLimit:         beUint64(word(4)),
		Coinbase:              common.BytesToAddress(word(5)),
		PrevRandao:            common.BytesToHash(word(6)),
		Timestamp:             beUint64(word(7)),
		ParentBaseFee:         new(big.Int).SetBytes(word(8)),
		ParentGasLimit:        beUint64(word(9)),
		ParentGasUsed:         beUint64(word(10)),
		L1MessagesRollingHash: common.BytesToHash(word(11)),
	}

	txsOffset := beUint64(word(12))
	witnessOffset := beUint64(word(13))

	txs, err := readDynamicBytes(data, txsOffset)
	if err != nil {
		return nil, fmt.Errorf("executor: decode txs: %w", err)
	}
	witness, err := readDynamicBytes(data, witnessOffset)
	if err != nil {
		return nil, fmt.Errorf("executor: decode witness payload: %w", err)
	}
	in.Txs = txs
	in.WitnessData = witness
	return in, nil
}

// readDynamicBytes reads a standard ABI dynamic bytes value: a length word at offset, followed
// by that many bytes, padded out to a word boundary.
func readDynamicBytes(data []byte, offset uint64) ([]byte, error) {
	if offset+wordSize > uint64(len(data)) {
		return nil, fmt.Errorf("offset %d out of range (calldata length %d)", offset, len(data))
	}
	length := beUint64(data[offset : offset+wordSize])
	start := offset + wordSize
	end := start + length
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("length %d at offset %d overruns calldata (length %d)", length, offset, len(data))
	}
	return data[start:end], nil
}

func beUint64(word []byte) uint64 {
	return binary.BigEndian.Uint64(word[len(word)-8:])
}

// Output is the ABI-encoded EXECUTE return value: (postStateRoot, blockNumber, withdrawalRoot,
// gasUsed, burnedFees, baseFee).
type Output struct {
	PostStateRoot  common.Hash
	BlockNumber    uint64
	WithdrawalRoot common.Hash
	GasUsed        uint64
	BurnedFees     *big.Int
	BaseFee        *big.Int
}

// Encode ABI-encodes the six fixed return words; the return value has no dynamic tail.
func (o *Output) Encode() []byte {
	out := make([]byte, 0, 6*wordSize)
	out = append(out, o.PostStateRoot.Bytes()...)
	out = append(out, leftPadUint64(o.BlockNumber)...)
	out = append(out, o.WithdrawalRoot.Bytes()...)
	out = append(out, leftPadUint64(o.GasUsed)...)
	out = append(out, leftPadBigInt(o.BurnedFees)...)
	out = append(out, leftPadBigInt(o.BaseFee)...)
	return out
}

func leftPadUint64(v uint64) []byte {
	word := make([]byte, wordSize)
	binary.BigEndian.PutUint64(word[wordSize-8:], v)
	return word
}

func leftPadBigInt(v *big.Int) []byte {
	word := make([]byte, wordSize)
	if v == nil {
		return word
	}
	v.FillBytes(word)
	return word
}
