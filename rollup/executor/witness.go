// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package executor

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/common/hexutil"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/crypto"
)

// Witness is the self-contained state proof an EXECUTE call carries: every trie node and
// contract-code blob the block's execution touches, plus the current header it must produce,
// so the verifier never has to reach into a real core/rawdb.Database.
type Witness struct {
	Header       *types.Header
	StateNodes   [][]byte
	StorageNodes [][]byte
	Codes        [][]byte
}

// witnessJSON is the wire shape: hex strings rather than Go []byte, the same convention the
// JSON-RPC surface this witness is assembled from already uses for binary fields.
type witnessJSON struct {
	Header struct {
		ParentHash  string `json:"parentHash"`
		Coinbase    string `json:"coinbase"`
		Root        string `json:"stateRoot"`
		TxHash      string `json:"transactionsRoot"`
		ReceiptHash string `json:"receiptsRoot"`
		Number      uint64 `json:"number"`
		GasLimit    uint64 `json:"gasLimit"`
		GasUsed     uint64 `json:"gasUsed"`
		Time        uint64 `json:"timestamp"`
		Extra       string `json:"extraData"`
		BaseFee     string `json:"baseFeePerGas"`
		PrevRandao  string `json:"prevRandao"`
	} `json:"header"`
	StateNodes   []string `json:"stateNodes"`
	StorageNodes []string `json:"storageNodes"`
	Codes        []string `json:"codes"`
}

// DecodeWitness parses the ABI calldata's witness blob (a JSON document, not RLP: the witness
// is produced off-chain by a prover toolchain that already speaks JSON everywhere else).
func DecodeWitness(data []byte) (*Witness, error) {
	var raw witnessJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("executor: decode witness: %w", err)
	}
	baseFee := new(big.Int)
	if raw.Header.BaseFee != "" {
		b, err := hexutil.Decode(raw.Header.BaseFee)
		if err != nil {
			return nil, fmt.Errorf("executor: decode baseFeePerGas: %w", err)
		}
		baseFee.SetBytes(b)
	}
	extra, err := decodeHexOrEmpty(raw.Header.Extra)
	if err != nil {
		return nil, fmt.Errorf("executor: decode extraData: %w", err)
	}
	header := &types.Header{
		ParentHash:  common.HexToHash(raw.Header.ParentHash),
		Coinbase:    common.HexToAddress(raw.Header.Coinbase),
		Root:        common.HexToHash(raw.Header.Root),
		TxHash:      common.HexToHash(raw.Header.TxHash),
		ReceiptHash: common.HexToHash(raw.Header.ReceiptHash),
		Number:      new(big.Int).SetUint64(raw.Header.Number),
		GasLimit:    raw.Header.GasLimit,
		GasUsed:     raw.Header.GasUsed,
		Time:        raw.Header.Time,
		Extra:       extra,
		BaseFee:     baseFee,
		PrevRandao:  common.HexToHash(raw.Header.PrevRandao),
	}
	w := &Witness{Header: header}
	for _, n := range raw.StateNodes {
		b, err := hexutil.Decode(n)
		if err != nil {
			return nil, fmt.Errorf("executor: decode state node: %w", err)
		}
		w.StateNodes = append(w.StateNodes, b)
	}
	for _, n := range raw.StorageNodes {
		b, err := hexutil.Decode(n)
		if err != nil {
			return nil, fmt.Errorf("executor: decode storage node: %w", err)
		}
		w.StorageNodes = append(w.StorageNodes, b)
	}
	for _, c := range raw.Codes {
		b, err := hexutil.Decode(c)
		if err != nil {
			return nil, fmt.Errorf("executor: decode code: %w", err)
		}
		w.Codes = append(w.Codes, b)
	}
	return w, nil
}

// decodeHexOrEmpty treats an absent hex string as an empty byte slice rather than an error,
// since extraData is routinely omitted.
func decodeHexOrEmpty(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

// witnessStore adapts a Witness's flat node/code lists into the rawdbStore interface
// core/state.Database expects, keyed by content hash exactly like the real on-disk tables — so
// a StateDB opened over it behaves identically to one opened over a persistent database, and
// every trie/account read the verifier does reuses that already-built, already-tested code.
//
// Writes are accepted (the verifier commits post-execution state to compute the new root) but
// never leave the witness's in-memory scope: there is no backing disk, by design — a verifier
// call is stateless between invocations, the same way a stateless prover's guest program is.
type witnessStore struct {
	stateNodes   map[common.Hash][]byte
	storageNodes map[common.Hash]map[common.Hash][]byte
	codes        map[common.Hash][]byte
}

func newWitnessStore(w *Witness) *witnessStore {
	s := &witnessStore{
		stateNodes:   make(map[common.Hash][]byte),
		storageNodes: make(map[common.Hash]map[common.Hash][]byte),
		codes:        make(map[common.Hash][]byte),
	}
	for _, node := range w.StateNodes {
		s.stateNodes[crypto.Keccak256Hash(node)] = node
	}
	// Storage nodes are content-addressed the same way across every account; which account's
	// storage trie a node belongs to is recovered by probing during traversal, so the witness
	// does not need to tag each node with its owning address up front. A witness-backed trie
	// read only ever needs "does this hash exist", not "which account owns it".
	shared := make(map[common.Hash][]byte)
	for _, node := range w.StorageNodes {
		shared[crypto.Keccak256Hash(node)] = node
	}
	s.storageNodes[common.Hash{}] = shared
	for _, code := range w.Codes {
		s.codes[crypto.Keccak256Hash(code)] = code
	}
	return s
}

func (s *witnessStore) ReadStateTrieNode(nodeHash common.Hash) ([]byte, error) {
	return s.stateNodes[nodeHash], nil
}

func (s *witnessStore) WriteStateTrieNode(nodeHash common.Hash, node []byte) error {
	s.stateNodes[nodeHash] = node
	return nil
}

func (s *witnessStore) ReadStorageTrieNode(_ common.Hash, nodeHash common.Hash) ([]byte, error) {
	return s.storageNodes[common.Hash{}][nodeHash], nil
}

func (s *witnessStore) WriteStorageTrieNode(_ common.Hash, nodeHash common.Hash, node []byte) error {
	s.storageNodes[common.Hash{}][nodeHash] = node
	return nil
}

func (s *witnessStore) ReadCode(codeHash common.Hash) ([]byte, error) {
	return s.codes[codeHash], nil
}

func (s *witnessStore) WriteCode(codeHash common.Hash, code []byte) error {
	s.codes[codeHash] = code
	return nil
}
