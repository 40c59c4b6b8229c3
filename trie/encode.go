// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"bytes"

	"github.com/rollupchain/rgeth/rlp"
)

// encodeNode returns the canonical RLP encoding of a single node, the bytes that get hashed
// (or embedded inline) as its parent's reference.
func encodeNode(n node) []byte {
	switch n := n.(type) {
	case *fullNode:
		return encodeFullNode(n)
	case *shortNode:
		return encodeShortNode(n)
	case hashNode:
		return encodeRefBytes(n)
	case valueNode:
		return mustEncodeBytes([]byte(n))
	case nil:
		return []byte{0x80}
	default:
		panic("trie: unknown node type")
	}
}

func encodeFullNode(n *fullNode) []byte {
	var body bytes.Buffer
	for _, child := range n.Children {
		body.Write(encodeRef(child))
	}
	return wrapList(body.Bytes())
}

func encodeShortNode(n *shortNode) []byte {
	var body bytes.Buffer
	body.Write(mustEncodeBytes(hexToCompact(n.Key)))
	switch v := n.Val.(type) {
	case valueNode:
		body.Write(mustEncodeBytes([]byte(v)))
	default:
		body.Write(encodeRef(n.Val))
	}
	return wrapList(body.Bytes())
}

// encodeNodeRawKey encodes a shortNode whose Key has already been compacted (by the hasher's
// bottom-up pass) and whose Val, if not a leaf value, is already a collapsed child reference —
// unlike encodeShortNode, it never re-compacts Key or re-hashes Val.
func encodeNodeRawKey(n *shortNode) []byte {
	var body bytes.Buffer
	body.Write(mustEncodeBytes(n.Key))
	switch v := n.Val.(type) {
	case valueNode:
		body.Write(mustEncodeBytes([]byte(v)))
	default:
		body.Write(encodeRef(n.Val))
	}
	return wrapList(body.Bytes())
}

// encodeRef returns the bytes a parent node embeds for this child: the raw nested encoding
// when it is short enough to inline, else the RLP string of its 32-byte hash.
func encodeRef(n node) []byte {
	if n == nil {
		return []byte{0x80}
	}
	if h, ok := n.(hashNode); ok {
		return encodeRefBytes(h)
	}
	enc := encodeNode(n)
	if len(enc) < 32 {
		return enc // embed inline, unwrapped — the parent's list already supplies structure
	}
	panic("trie: child node >=32 bytes reached encodeRef unhashed; the hasher must collapse it to a hashNode first")
}

func encodeRefBytes(h []byte) []byte {
	return mustEncodeBytes(h)
}

func mustEncodeBytes(b []byte) []byte {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		panic("trie: byte slice must always be RLP-encodable: " + err.Error())
	}
	return enc
}

func wrapList(content []byte) []byte {
	size := len(content)
	if size < 56 {
		return append([]byte{0xc0 + byte(size)}, content...)
	}
	lenBytes := bigEndianMinimal(uint64(size))
	header := append([]byte{0xf7 + byte(len(lenBytes))}, lenBytes...)
	return append(header, content...)
}

func bigEndianMinimal(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	n := 8
	for v > 0 {
		n--
		buf[n] = byte(v)
		v >>= 8
	}
	return buf[n:]
}
