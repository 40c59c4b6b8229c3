// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package executor

import (
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/state"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/crypto"
	"github.com/rollupchain/rgeth/rlp"
	"github.com/rollupchain/rgeth/trie"
)

// L1AnchorAddress is the predeploy whose storage slot 0 the verifier overwrites with the
// rolling commitment of this block's L1 messages, the same "system write before user
// transactions run" pattern an L2's L1-attributes predeploy uses.
var L1AnchorAddress = common.HexToAddress("0x4200000000000000000000000000000000000f")

// l1AnchorSlot is the single storage slot L1AnchorAddress exposes.
var l1AnchorSlot = common.Hash{}

// baseFeeChangeDenominator and elasticityMultiplier reproduce go-ethereum's EIP-1559
// CalcBaseFee exactly: a full block (2x the gas target) can move the base fee by at most
// 1/8th per block.
const (
	baseFeeChangeDenominator = 8
	elasticityMultiplier     = 2
)

// Signer recovers a transaction's sender. secp256k1 recovery lives outside this package —
// go-ethereum itself draws the same line between types.Signer (an interface) and the concrete
// curve math in crypto/signature.go, and this module's dependency set carries no elliptic-curve
// recovery library of its own.
type Signer interface {
	Sender(tx *types.Transaction) (common.Address, error)
}

// ComputeBaseFee derives the next block's base fee from its parent's base fee, gas used, and
// gas limit, matching go-ethereum's CalcBaseFee (elasticity multiplier 2, change denominator 8).
func ComputeBaseFee(parentBaseFee *big.Int, parentGasUsed, parentGasLimit uint64) *big.Int {
	parentGasTarget := parentGasLimit / elasticityMultiplier
	if parentGasTarget == 0 {
		return new(big.Int).Set(parentBaseFee)
	}
	if parentGasUsed == parentGasTarget {
		return new(big.Int).Set(parentBaseFee)
	}
	if parentGasUsed > parentGasTarget {
		gasUsedDelta := new(big.Int).SetUint64(parentGasUsed - parentGasTarget)
		x := new(big.Int).Mul(parentBaseFee, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(parentGasTarget))
		baseFeeDelta := bigMax(y.Div(y, big.NewInt(baseFeeChangeDenominator)), big.NewInt(1))
		return new(big.Int).Add(parentBaseFee, baseFeeDelta)
	}
	gasUsedDelta := new(big.Int).SetUint64(parentGasTarget - parentGasUsed)
	x := new(big.Int).Mul(parentBaseFee, gasUsedDelta)
	y := x.Div(x, new(big.Int).SetUint64(parentGasTarget))
	baseFeeDelta := y.Div(y, big.NewInt(baseFeeChangeDenominator))
	return bigMax(new(big.Int).Sub(parentBaseFee, baseFeeDelta), new(big.Int))
}

func bigMax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// intrinsicGas is the flat per-transaction overhead charged before any value transfer: 21000
// plus 16 gas per non-zero calldata byte and 4 gas per zero byte, the post-Istanbul schedule.
func intrinsicGas(data []byte) uint64 {
	gas := uint64(21000)
	for _, b := range data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

// Execute runs the full EXECUTE algorithm against input, returning the ABI-encoded result or a
// *RevertError carrying one of the fixed ASCII failure reasons.
func Execute(input *Input, signer Signer) (*Output, error) {
	txs, err := decodeTxs(input.Txs)
	if err != nil {
		return nil, revert(ReasonBadRoot, err)
	}
	for _, tx := range txs {
		if tx.IsBlobTx() {
			return nil, revert(ReasonBlobTxRejected, nil)
		}
	}

	witness, err := DecodeWitness(input.WitnessData)
	if err != nil {
		return nil, revert(ReasonBadRoot, err)
	}

	if witness.Header.Root != input.PreStateRoot {
		return nil, revert(ReasonBadRoot, nil)
	}
	if witness.Header.NumberU64() != input.BlockNumber ||
		witness.Header.GasLimit != input.BlockGasLimit ||
		witness.Header.Coinbase != input.Coinbase ||
		witness.Header.PrevRandao != input.PrevRandao ||
		witness.Header.Time != input.Timestamp {
		// The witness's header is untrusted input; these fields are separately committed to in
		// the calldata so a mismatch here means the witness does not describe this block.
		return nil, revert(ReasonBadRoot, nil)
	}

	expectedBaseFee := ComputeBaseFee(input.ParentBaseFee, input.ParentGasUsed, input.ParentGasLimit)
	if witness.Header.BaseFee == nil || witness.Header.BaseFee.Cmp(expectedBaseFee) != 0 {
		return nil, revert(ReasonBadBaseFee, nil)
	}

	store := newWitnessStore(witness)
	db := state.NewDatabase(store)
	sdb, err := state.New(input.PreStateRoot, db)
	if err != nil {
		return nil, revert(ReasonBadRoot, err)
	}

	l1Messages, err := decodeL1Messages(witness)
	if err != nil {
		return nil, revert(ReasonBadRoot, err)
	}

	rollingHash := common.Hash{}
	for _, msg := range l1Messages {
		rollingHash = crypto.RollingHash(rollingHash, msg.MessageHash(crypto.Keccak256).Bytes())
	}
	// The L1 anchor's single slot commits to the same accumulator the rolling-hash check uses:
	// there is no separately specified Merkle-tree construction, so reusing H_i keeps the
	// anchor write and the end-of-block rolling-hash check consistent with each other.
	if err := sdb.SetState(L1AnchorAddress, l1AnchorSlot, rollingHash); err != nil {
		return nil, revert(ReasonBadRoot, err)
	}

	var receipts []*types.Receipt
	var cumulativeGas uint64

	for _, msg := range l1Messages {
		used, err := applyL1Message(sdb, msg)
		if err != nil {
			return nil, revert(ReasonBadRoot, err)
		}
		cumulativeGas += used
		receipts = append(receipts, &types.Receipt{Status: 1, CumulativeGasUsed: cumulativeGas, GasUsed: used})
	}

	for _, tx := range txs {
		from, err := signer.Sender(tx)
		if err != nil {
			return nil, revert(ReasonBadRoot, err)
		}
		status, used, err := applyTransaction(sdb, tx, from, witness.Header.Coinbase, expectedBaseFee)
		if err != nil {
			return nil, revert(ReasonBadRoot, err)
		}
		cumulativeGas += used
		receipts = append(receipts, &types.Receipt{Status: status, CumulativeGasUsed: cumulativeGas, TxHash: tx.Hash(), GasUsed: used})
	}

	postStateRoot, err := sdb.Commit(true)
	if err != nil {
		return nil, revert(ReasonBadRoot, err)
	}
	if postStateRoot != input.PostStateRoot {
		return nil, revert(ReasonBadRoot, nil)
	}

	receiptsRoot, err := computeReceiptsRoot(receipts)
	if err != nil {
		return nil, revert(ReasonBadReceipts, err)
	}
	if receiptsRoot != input.PostReceiptsRoot {
		return nil, revert(ReasonBadReceipts, nil)
	}

	if rollingHash != input.L1MessagesRollingHash {
		return nil, revert(ReasonBadMessages, nil)
	}

	burnedFees := new(big.Int).Mul(expectedBaseFee, new(big.Int).SetUint64(cumulativeGas))
	return &Output{
		PostStateRoot:  postStateRoot,
		BlockNumber:    input.BlockNumber,
		WithdrawalRoot: types.EmptyRootHash,
		GasUsed:        cumulativeGas,
		BurnedFees:     burnedFees,
		BaseFee:        expectedBaseFee,
	}, nil
}

func decodeTxs(data []byte) ([]*types.Transaction, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var txs []*types.Transaction
	if err := rlp.DecodeBytes(data, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// decodeL1Messages reads the block's forced-included L1 messages out of the witness's code
// list — they carry no executable code of their own, so the slot is reused as a generic
// RLP-encoded side channel rather than inventing a fifth witness list for a handful of entries.
func decodeL1Messages(w *Witness) ([]*types.L1MessageTx, error) {
	if len(w.Codes) == 0 {
		return nil, nil
	}
	last := w.Codes[len(w.Codes)-1]
	if len(last) == 0 {
		return nil, nil
	}
	var msgs []*types.L1MessageTx
	if err := rlp.DecodeBytes(last, &msgs); err != nil {
		// Not every witness carries a trailing messages blob; absence is not an error.
		return nil, nil
	}
	return msgs, nil
}

// applyL1Message credits a forced-included deposit directly: the value already exists on L1 and
// is minted into the recipient's L2 balance, so there is no sender debit or nonce check the way
// a user-originated transaction requires.
func applyL1Message(sdb *state.StateDB, msg *types.L1MessageTx) (uint64, error) {
	if msg.To != nil && msg.Value != nil && msg.Value.Sign() > 0 {
		bal, err := sdb.GetBalance(*msg.To)
		if err != nil {
			return msg.Gas, err
		}
		if err := sdb.SetBalance(*msg.To, new(big.Int).Add(bal, msg.Value)); err != nil {
			return msg.Gas, err
		}
	}
	return msg.Gas, nil
}

// applyTransaction validates and applies one user transaction: nonce and balance checks produce
// a failed (status 0) receipt rather than aborting the whole block, matching how an ordinary
// Ethereum block can include reverted transactions and still have a valid state root.
func applyTransaction(sdb *state.StateDB, tx *types.Transaction, from, coinbase common.Address, baseFee *big.Int) (status uint64, gasUsed uint64, err error) {
	gasUsed = intrinsicGas(tx.Data)

	nonce, err := sdb.GetNonce(from)
	if err != nil {
		return 0, gasUsed, err
	}
	if nonce != tx.Nonce {
		return 0, gasUsed, nil
	}

	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), tx.GasPrice)
	cost := new(big.Int).Add(fee, valueOrZero(tx.Value))

	balance, err := sdb.GetBalance(from)
	if err != nil {
		return 0, gasUsed, err
	}
	if balance.Cmp(cost) < 0 {
		if err := sdb.SetNonce(from, nonce+1); err != nil {
			return 0, gasUsed, err
		}
		return 0, gasUsed, nil
	}

	if err := sdb.SetNonce(from, nonce+1); err != nil {
		return 0, gasUsed, err
	}
	if err := sdb.SetBalance(from, new(big.Int).Sub(balance, cost)); err != nil {
		return 0, gasUsed, err
	}
	if tx.To != nil {
		toBal, err := sdb.GetBalance(*tx.To)
		if err != nil {
			return 0, gasUsed, err
		}
		if err := sdb.SetBalance(*tx.To, new(big.Int).Add(toBal, valueOrZero(tx.Value))); err != nil {
			return 0, gasUsed, err
		}
	}

	burned := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), baseFee)
	tip := new(big.Int).Sub(fee, burned)
	if tip.Sign() > 0 {
		cbBal, err := sdb.GetBalance(coinbase)
		if err != nil {
			return 0, gasUsed, err
		}
		if err := sdb.SetBalance(coinbase, new(big.Int).Add(cbBal, tip)); err != nil {
			return 0, gasUsed, err
		}
	}
	return 1, gasUsed, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// computeReceiptsRoot hashes receipts into a throwaway trie keyed by RLP-encoded receipt
// index, the same construction go-ethereum's DeriveSha uses for transaction/receipt roots.
func computeReceiptsRoot(receipts []*types.Receipt) (common.Hash, error) {
	store := trie.NewProofDB()
	t, err := trie.New(common.Hash{}, store, crypto.Keccak256)
	if err != nil {
		return common.Hash{}, err
	}
	for i, r := range receipts {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		val, err := rlp.EncodeToBytes(r)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Update(key, val); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Hash(), nil
}
