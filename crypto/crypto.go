// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library.
//
// The rgeth library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package crypto wraps the Keccak256 hash function used throughout the trie, the rolling
// hash of consumed L1 messages, and node/peer identities.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/rollupchain/rgeth/common"
)

// Keccak256 calculates and returns the Keccak256 hash of the input data, concatenating
// multiple inputs as if they were a single one.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates and returns the Keccak256 hash of the input data, converting it
// to an internal Hash data structure.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// RollingHash advances the L1-message rolling-hash accumulator: H_i = keccak(H_{i-1} || x_i).
// H_0 must be the zero hash (see rollup/executor).
func RollingHash(prev common.Hash, next []byte) common.Hash {
	return Keccak256Hash(prev.Bytes(), next)
}
