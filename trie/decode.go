// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package trie

import (
	"errors"
	"fmt"

	"github.com/rollupchain/rgeth/rlp"
)

var ErrDecodeNode = errors.New("trie: invalid node encoding")

// decodeNode turns a node's stored encoding back into its in-memory form. hash is the node's
// own reference, stashed in the flags so a freshly loaded node need not be rehashed before it
// is used as a parent's unmodified child.
func decodeNode(hash, buf []byte) (node, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: zero-length node blob", ErrDecodeNode)
	}
	elems, _, err := rlp.SplitList(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: not a list: %v", ErrDecodeNode, err)
	}
	switch c, _ := rlp.CountValues(elems); c {
	case 2:
		n, err := decodeShort(hash, elems)
		if err != nil {
			return nil, wrapDecodeErr(err, "short")
		}
		return n, nil
	case 17:
		n, err := decodeFull(hash, elems)
		if err != nil {
			return nil, wrapDecodeErr(err, "full")
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: invalid number of list elements: %d", ErrDecodeNode, c)
	}
}

func decodeShort(hash, elems []byte) (node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, err
	}
	flag := nodeFlag{hash: hash}
	key := compactToHex(kbuf)
	if hasTerm(key) {
		// leaf node
		val, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid value node: %v", err)
		}
		return &shortNode{Key: key, Val: valueNode(append([]byte(nil), val...)), flags: flag}, nil
	}
	r, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	return &shortNode{Key: key, Val: r, flags: flag}, nil
}

func decodeFull(hash, elems []byte) (*fullNode, error) {
	n := &fullNode{flags: nodeFlag{hash: hash}}
	for i := 0; i < 16; i++ {
		cld, rest, err := decodeRef(elems)
		if err != nil {
			return n, wrapDecodeErr(err, fmt.Sprintf("[%d]", i))
		}
		n.Children[i] = cld
		elems = rest
	}
	val, _, err := rlp.SplitString(elems)
	if err != nil {
		return n, err
	}
	if len(val) > 0 {
		n.Children[16] = valueNode(append([]byte(nil), val...))
	}
	return n, nil
}

// decodeRef decodes the child reference that begins buf: either an inlined node (a nested RLP
// list or zero-length string for nil), or a 32-byte hash.
func decodeRef(buf []byte) (node, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, buf, err
	}
	switch {
	case kind == rlp.List:
		// inlined node; that its rlp length is under 32 bytes was already enforced at encode
		// time, so it isn't re-checked here.
		n, err := decodeNode(nil, buf[:len(buf)-len(rest)])
		return n, rest, err
	case len(val) == 0:
		return nil, rest, nil
	case len(val) == 32:
		return hashNode(val), rest, nil
	default:
		return nil, nil, fmt.Errorf("%w: invalid reference, %d bytes", ErrDecodeNode, len(val))
	}
}

func wrapDecodeErr(err error, ctx string) error {
	return fmt.Errorf("%w (%s): %v", ErrDecodeNode, ctx, err)
}
