// Copyright 2017 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library.
//
// The rgeth library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package hexutil implements hex encoding with 0x-prefixes for JSON, matching the
// conventions used by Ethereum JSON-RPC and by the EXECUTE verifier's witness payloads.
package hexutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrEmptyString = errors.New("empty hex string")
	ErrMissingPrefix = errors.New("hex string without 0x prefix")
	ErrOddLength   = errors.New("hex string of odd length")
	ErrSyntax      = errors.New("invalid hex string")
)

// Encode encodes b as a 0x-prefixed hex string.
func Encode(b []byte) string {
	enc := make([]byte, len(b)*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], b)
	return string(enc)
}

// Decode decodes a 0x-prefixed hex string into bytes.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrEmptyString
	}
	if !has0xPrefix(input) {
		return nil, ErrMissingPrefix
	}
	b, err := hex.DecodeString(input[2:])
	if err != nil {
		err = mapError(err)
	}
	return b, err
}

// MustDecode decodes the input and panics on error, for use with constants only.
func MustDecode(input string) []byte {
	b, err := Decode(input)
	if err != nil {
		panic(fmt.Sprintf("hexutil: %v", err))
	}
	return b
}

func has0xPrefix(input string) bool {
	return len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X')
}

func mapError(err error) error {
	if _, ok := err.(hex.InvalidByteError); ok {
		return ErrSyntax
	}
	if err == hex.ErrLength {
		return ErrOddLength
	}
	return err
}
