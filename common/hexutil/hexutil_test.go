// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package hexutil

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {0x00}, {0xde, 0xad, 0xbe, 0xef}} {
		enc := Encode(b)
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", enc, err)
		}
		if !bytes.Equal(got, b) && !(len(got) == 0 && len(b) == 0) {
			t.Fatalf("round trip mismatch: got %x, want %x", got, b)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		in      string
		wantErr error
	}{
		{"", ErrEmptyString},
		{"deadbeef", ErrMissingPrefix},
		{"0xde", nil},
		{"0xg0", ErrSyntax},
	}
	for _, tc := range cases {
		_, err := Decode(tc.in)
		if tc.wantErr != nil && err != tc.wantErr {
			t.Fatalf("Decode(%q) error = %v, want %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestMustDecodePanicsOnBadInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustDecode did not panic on invalid input")
		}
	}()
	MustDecode("not-hex")
}
