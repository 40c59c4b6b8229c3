// Copyright 2015 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"errors"

	"github.com/rollupchain/rgeth/common"
)

// ErrKeyNotPresent is returned by VerifyProof when the supplied proof, followed correctly,
// terminates in a node that cannot contain key — proving the key's absence under root.
var ErrKeyNotPresent = errors.New("trie: key not present in proof path")

// ProofDB collects the RLP-encoded nodes visited while walking to a key, keyed by node hash,
// the format VerifyProof consumes. A plain map satisfies this in-memory; callers serializing
// a proof onto the wire send the Nodes() slice instead.
type ProofDB struct {
	nodes map[common.Hash][]byte
	order []common.Hash
}

func NewProofDB() *ProofDB {
	return &ProofDB{nodes: make(map[common.Hash][]byte)}
}

func (p *ProofDB) Put(hash common.Hash, blob []byte) error {
	if _, ok := p.nodes[hash]; !ok {
		p.order = append(p.order, hash)
	}
	p.nodes[hash] = blob
	return nil
}

func (p *ProofDB) Get(hash common.Hash) ([]byte, error) { return p.nodes[hash], nil }

// Nodes returns the collected node encodings in the order they were first visited, root first.
func (p *ProofDB) Nodes() [][]byte {
	out := make([][]byte, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.nodes[h])
	}
	return out
}

// Prove walks the trie to key and records every node touched along the way into proof, so a
// verifier holding only root can confirm key's value (or its absence) without the rest of the
// trie.
func (t *Trie) Prove(key []byte, proof *ProofDB) error {
	k := keybytesToHex(key)
	n := t.root
	for {
		switch cur := n.(type) {
		case nil:
			return nil
		case valueNode:
			return nil
		case *shortNode:
			if len(k) < len(cur.Key) || !bytesEqual(cur.Key, k[:len(cur.Key)]) {
				recordNode(t.keccak256, cur, proof)
				return nil // proves absence: the path diverges here
			}
			recordNode(t.keccak256, cur, proof)
			n = cur.Val
			k = k[len(cur.Key):]
		case *fullNode:
			recordNode(t.keccak256, cur, proof)
			if len(k) == 0 {
				return nil
			}
			n = cur.Children[k[0]]
			k = k[1:]
		case hashNode:
			resolved, err := t.resolveHash(cur)
			if err != nil {
				return err
			}
			n = resolved
		default:
			return nil
		}
	}
}

func recordNode(keccak256 func(...[]byte) []byte, n node, proof *ProofDB) {
	enc := encodeNode(n)
	var hash common.Hash
	copy(hash[:], keccak256(enc))
	_ = proof.Put(hash, enc)
}

// VerifyProof checks that the node path in proof, starting at root, resolves key to value (or
// proves key's absence when value is nil), without trusting anything beyond root.
func VerifyProof(root common.Hash, key []byte, proof *ProofDB, keccak256 func(...[]byte) []byte) (value []byte, err error) {
	k := keybytesToHex(key)
	wantHash := root
	n, err := decodeProofNode(proof, wantHash)
	if err != nil {
		return nil, err
	}
	for {
		switch cur := n.(type) {
		case nil:
			return nil, nil
		case valueNode:
			return []byte(cur), nil
		case *shortNode:
			if len(k) < len(cur.Key) || !bytesEqual(cur.Key, k[:len(cur.Key)]) {
				return nil, nil // proven absent: divergent prefix
			}
			k = k[len(cur.Key):]
			n = cur.Val
		case *fullNode:
			if len(k) == 0 {
				return nil, nil
			}
			n = cur.Children[k[0]]
			k = k[1:]
		case hashNode:
			copy(wantHash[:], cur)
			n, err = decodeProofNode(proof, wantHash)
			if err != nil {
				return nil, err
			}
		default:
			return nil, nil
		}
	}
}

func decodeProofNode(proof *ProofDB, hash common.Hash) (node, error) {
	buf, ok := proof.nodes[hash]
	if !ok {
		return nil, ErrMissingNode{NodeHash: hash}
	}
	return decodeNode(hash[:], buf)
}
