// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library.
//
// The rgeth library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package rlp implements the RLP serialization used for wire protocol messages,
// trie node encoding, and every persisted record in core/rawdb. It is a trimmed
// reimplementation of go-ethereum's rlp package: reflection-based encode/decode of
// structs, slices, byte strings and unsigned integers, plus the Encoder/Decoder escape
// hatches and the RawValue passthrough type that carries already-encoded values without
// re-encoding them.
//
// Encoding rules (Ethereum Yellow Paper Appendix B):
//   - a single byte in [0x00, 0x7f] encodes as itself.
//   - a byte string of length 0-55 encodes as a single byte 0x80+len, then the bytes.
//   - longer byte strings are prefixed 0xb7+lenOfLen, the big-endian length, then the bytes.
//   - lists follow the same two-tier length prefixing, offset by 0xc0 / 0xf7 instead of
//     0x80 / 0xb7, with the concatenated encoding of each element as the body.
package rlp
