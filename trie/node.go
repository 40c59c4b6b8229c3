// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"fmt"

	"github.com/rollupchain/rgeth/common"
)

// node is the in-memory representation of one of the three MPT node shapes: Branch
// (fullNode), Extension/Leaf (shortNode), plus the two reference kinds hashNode
// (32-byte out-of-line reference) and valueNode (inline leaf value).
type node interface {
	fstring(string) string
	cache() (hashNode, bool)
}

type (
	// fullNode is the 17-slot branch: 16 nibble children plus an optional terminal value.
	fullNode struct {
		Children [17]node
		flags    nodeFlag
	}
	// shortNode is either an extension (Val is another node) or a leaf (Val is a valueNode),
	// distinguished by whether Key carries the hex terminator.
	shortNode struct {
		Key   []byte
		Val   node
		flags nodeFlag
	}
	hashNode  []byte
	valueNode []byte
)

// nodeFlag tracks the cached hash of a recently hashed node and whether it has been written to
// the backing store yet (a "dirty" node still needs a WriteStateTrieNode/WriteStorageTrieNode).
type nodeFlag struct {
	hash  hashNode
	dirty bool
}

func (n *fullNode) cache() (hashNode, bool) { return n.flags.hash, !n.flags.dirty }
func (n *shortNode) cache() (hashNode, bool) { return n.flags.hash, !n.flags.dirty }
func (n hashNode) cache() (hashNode, bool)  { return nil, true }
func (n valueNode) cache() (hashNode, bool) { return nil, true }

func (n *fullNode) copy() *fullNode {
	cpy := *n
	return &cpy
}
func (n *shortNode) copy() *shortNode {
	cpy := *n
	return &cpy
}

func (n *fullNode) fstring(ind string) string {
	resp := fmt.Sprintf("[\n%s  ", ind)
	for i, node := range n.Children {
		if node == nil {
			resp += fmt.Sprintf("%s: <nil> ", indices[i])
			continue
		}
		resp += fmt.Sprintf("%s: %v", indices[i], node.fstring(ind+"  "))
	}
	return resp + fmt.Sprintf("\n%s] ", ind)
}
func (n *shortNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %v} ", n.Key, n.Val.fstring(ind+"  "))
}
func (n hashNode) fstring(ind string) string  { return fmt.Sprintf("<%x> ", []byte(n)) }
func (n valueNode) fstring(ind string) string { return fmt.Sprintf("%x ", []byte(n)) }

var indices = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c", "d", "e", "f", "[17]"}

func hashNodeToHash(h hashNode) common.Hash {
	var out common.Hash
	copy(out[:], h)
	return out
}
