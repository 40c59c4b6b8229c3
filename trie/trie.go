// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package trie implements a Merkle Patricia Trie: a key/value store whose root hash commits
// to every (key, value) pair it holds, with O(log n) inclusion and exclusion proofs.
package trie

import (
	"errors"

	"github.com/rollupchain/rgeth/common"
)

// ErrCommitted is returned by any mutating call on a Trie whose Commit has already run; a
// committed trie's in-memory node graph has been replaced by bare hashNode references and can
// no longer be walked without round-tripping through the backing store.
var ErrCommitted = errors.New("trie: trie is already committed")

// Trie is an in-memory Merkle Patricia Trie backed by a NodeReader/NodeWriter pair. It is not
// safe for concurrent use.
type Trie struct {
	root      node
	store     interface {
		NodeReader
		NodeWriter
	}
	keccak256 func(...[]byte) []byte

	committed bool
}

// New opens the trie rooted at root (the zero hash for an empty trie) against store.
func New(root common.Hash, store interface {
	NodeReader
	NodeWriter
}, keccak256 func(...[]byte) []byte) (*Trie, error) {
	t := &Trie{store: store, keccak256: keccak256}
	if root == (common.Hash{}) || root == emptyRootHash(keccak256) {
		return t, nil
	}
	n, err := t.resolveHash(root[:])
	if err != nil {
		return nil, err
	}
	t.root = n
	return t, nil
}

func emptyRootHash(keccak256 func(...[]byte) []byte) common.Hash {
	return hashNodeToHash(hashNode(keccak256([]byte{0x80})))
}

// Get returns the value stored for key, or (nil, false) if key is absent.
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	value, newroot, didResolve, err := t.get(t.root, keybytesToHex(key), 0)
	if err == nil && didResolve {
		t.root = newroot
	}
	if value == nil {
		return nil, false, err
	}
	return value, true, err
}

func (t *Trie) get(origNode node, key []byte, pos int) (value []byte, newnode node, didResolve bool, err error) {
	switch n := origNode.(type) {
	case nil:
		return nil, nil, false, nil
	case valueNode:
		return n, n, false, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytesEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, n, false, nil
		}
		value, newnode, didResolve, err = t.get(n.Val, key, pos+len(n.Key))
		if err == nil && didResolve {
			cpy := n.copy()
			cpy.Val = newnode
			return value, cpy, true, nil
		}
		return value, n, didResolve, err
	case *fullNode:
		value, newnode, didResolve, err = t.get(n.Children[key[pos]], key, pos+1)
		if err == nil && didResolve {
			cpy := n.copy()
			cpy.Children[key[pos]] = newnode
			return value, cpy, true, nil
		}
		return value, n, didResolve, err
	case hashNode:
		child, err := t.resolveHash(n)
		if err != nil {
			return nil, n, true, err
		}
		value, newnode, _, err := t.get(child, key, pos)
		return value, newnode, true, err
	default:
		panic("trie: invalid node type")
	}
}

func (t *Trie) resolveHash(n hashNode) (node, error) {
	var hash common.Hash
	copy(hash[:], n)
	blob, _ := t.store.Get(hash)
	if len(blob) == 0 {
		return nil, ErrMissingNode{NodeHash: hash}
	}
	return decodeNode(n, blob)
}

// ErrMissingNode is returned by any operation that needs a node the backing store does not
// have — either genuine corruption, or a node evicted by the pruner that the caller must
// fetch via snap-sync healing first.
type ErrMissingNode struct {
	NodeHash common.Hash
}

func (e ErrMissingNode) Error() string {
	return "trie: missing node " + e.NodeHash.Hex()
}

// Update associates key with value, inserting or overwriting as needed. An empty value
// deletes the key (matching go-ethereum's Trie.Update/Delete convention).
func (t *Trie) Update(key, value []byte) error {
	if t.committed {
		return ErrCommitted
	}
	if len(value) == 0 {
		return t.delete(key)
	}
	k := keybytesToHex(key)
	n, err := t.insert(t.root, nil, k, valueNode(value))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (node, error) {
	if len(key) == 0 {
		return value, nil
	}
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen == len(n.Key) {
			newVal, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: newVal, flags: nodeFlag{dirty: true}}, nil
		}
		branch := &fullNode{flags: nodeFlag{dirty: true}}
		var err error
		branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return nil, err
		}
		branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return nil, err
		}
		if matchlen == 0 {
			return branch, nil
		}
		return &shortNode{Key: key[:matchlen], Val: branch, flags: nodeFlag{dirty: true}}, nil
	case *fullNode:
		cpy := n.copy()
		cpy.flags = nodeFlag{dirty: true}
		var err error
		cpy.Children[key[0]], err = t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if err != nil {
			return nil, err
		}
		return cpy, nil
	case nil:
		return &shortNode{Key: append([]byte(nil), key...), Val: value, flags: nodeFlag{dirty: true}}, nil
	case hashNode:
		rn, err := t.resolveHash(n)
		if err != nil {
			return nil, err
		}
		return t.insert(rn, prefix, key, value)
	default:
		panic("trie: invalid node type")
	}
}

// Delete removes key from the trie. It is a no-op if key is absent.
func (t *Trie) delete(key []byte) error {
	n, err := t.del(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Trie) del(n node, key []byte) (node, error) {
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return n, nil // key not present
		}
		if matchlen == len(key) {
			return nil, nil // remove the whole shortNode
		}
		child, err := t.del(n.Val, key[len(n.Key):])
		if err != nil {
			return nil, err
		}
		switch child := child.(type) {
		case nil:
			return nil, nil
		case *shortNode:
			return &shortNode{Key: concat(n.Key, child.Key), Val: child.Val, flags: nodeFlag{dirty: true}}, nil
		default:
			return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
		}
	case *fullNode:
		cpy := n.copy()
		cpy.flags = nodeFlag{dirty: true}
		child, err := t.del(n.Children[key[0]], key[1:])
		if err != nil {
			return nil, err
		}
		cpy.Children[key[0]] = child
		return collapseFullNode(cpy), nil
	case nil:
		return nil, nil
	case valueNode:
		return nil, nil
	case hashNode:
		rn, err := t.resolveHash(n)
		if err != nil {
			return nil, err
		}
		return t.del(rn, key)
	default:
		panic("trie: invalid node type")
	}
}

// collapseFullNode replaces a branch left with exactly one child (and no value) by a
// shortNode pointing directly at that child, merging keys as go-ethereum's deleteNode does.
func collapseFullNode(n *fullNode) node {
	pos := -1
	for i, c := range n.Children {
		if c == nil {
			continue
		}
		if pos != -1 {
			return n // more than one child remains
		}
		pos = i
	}
	if pos == -1 {
		return nil
	}
	if pos != 16 {
		if short, ok := n.Children[pos].(*shortNode); ok {
			k := append([]byte{byte(pos)}, short.Key...)
			return &shortNode{Key: k, Val: short.Val, flags: nodeFlag{dirty: true}}
		}
	}
	return &shortNode{Key: []byte{byte(pos)}, Val: n.Children[pos], flags: nodeFlag{dirty: true}}
}

// Hash returns the trie's current root hash without persisting any changes.
func (t *Trie) Hash() common.Hash {
	h := newHasher(t.keccak256)
	hashed := h.hash(t.root, true)
	if hn, ok := hashed.(hashNode); ok {
		return hashNodeToHash(hn)
	}
	// a root encoding under 32 bytes is still hashed directly, matching go-ethereum's
	// "the root is always referenced by hash" rule.
	return hashNodeToHash(hashNode(t.keccak256(encodeNode(hashed))))
}

// Commit flushes every dirty node reachable from the root to the backing store and returns
// the resulting root hash. After Commit, the trie's root is replaced by a bare hashNode; further
// mutation requires loading a fresh Trie via New.
func (t *Trie) Commit() (common.Hash, error) {
	h := newHasher(t.keccak256)
	collapsed := h.hash(t.root, true)
	for _, w := range h.dirty {
		if err := t.store.Put(hashNodeToHash(w.Hash), w.Blob); err != nil {
			return common.Hash{}, err
		}
	}
	var root common.Hash
	if hn, ok := collapsed.(hashNode); ok {
		root = hashNodeToHash(hn)
	} else {
		enc := encodeNode(collapsed)
		root = hashNodeToHash(hashNode(t.keccak256(enc)))
		if err := t.store.Put(root, enc); err != nil {
			return common.Hash{}, err
		}
	}
	t.root = hashNode(root[:])
	t.committed = true
	return root, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
