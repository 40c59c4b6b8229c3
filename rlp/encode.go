// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package rlp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
)

// Encoder is implemented by types that know how to encode themselves as RLP, such as
// RawValue and common.Hash-sized arrays that want canonical big-endian encoding.
type Encoder interface {
	EncodeRLP(io.Writer) error
}

var encoderInterface = reflect.TypeOf((*Encoder)(nil)).Elem()

// Encode writes the RLP encoding of val to w.
func Encode(w io.Writer, val interface{}) error {
	b, err := EncodeToBytes(val)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeToBytes returns the RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	if val == nil {
		return []byte{0x80}, nil
	}
	return encodeValue(reflect.ValueOf(val))
}

func encodeValue(v reflect.Value) ([]byte, error) {
	if !v.IsValid() {
		return []byte{0x80}, nil
	}
	t := v.Type()

	if t == rawValueType {
		return v.Interface().(RawValue), nil
	}
	if v.CanInterface() && t.Implements(encoderInterface) {
		var buf bytes.Buffer
		if err := v.Interface().(Encoder).EncodeRLP(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if v.CanAddr() {
		pv := v.Addr()
		if pv.CanInterface() && pv.Type().Implements(encoderInterface) {
			var buf bytes.Buffer
			if err := pv.Interface().(Encoder).EncodeRLP(&buf); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
	}
	if t == bigIntType {
		return encodeBigInt(v.Interface().(big.Int)), nil
	}
	if t == bigIntPtrType {
		bi := v.Interface().(*big.Int)
		if bi == nil {
			return []byte{0x80}, nil
		}
		return encodeBigInt(*bi), nil
	}

	switch t.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return encodeNilPointer(t.Elem())
		}
		return encodeValue(v.Elem())
	case reflect.Interface:
		if v.IsNil() {
			return []byte{0x80}, nil
		}
		return encodeValue(v.Elem())
	case reflect.Bool:
		if v.Bool() {
			return []byte{0x01}, nil
		}
		return []byte{0x80}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeUint(v.Uint()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := v.Int()
		if i < 0 {
			return nil, errors.New("rlp: cannot encode negative integers")
		}
		return encodeUint(uint64(i)), nil
	case reflect.String:
		return encodeBytes([]byte(v.String())), nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 && t.Elem().Name() == "uint8" {
			return encodeBytes(toBytes(v)), nil
		}
		return encodeList(v)
	case reflect.Struct:
		return encodeStruct(v)
	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-serializable", t)
	}
}

func toBytes(v reflect.Value) []byte {
	if v.Kind() == reflect.Slice {
		return v.Bytes()
	}
	b := make([]byte, v.Len())
	for i := range b {
		b[i] = byte(v.Index(i).Uint())
	}
	return b
}

func encodeNilPointer(elem reflect.Type) ([]byte, error) {
	switch elem.Kind() {
	case reflect.Array, reflect.Slice, reflect.Struct:
		if elem.Kind() != reflect.Struct && elem.Elem().Kind() == reflect.Uint8 {
			return []byte{0x80}, nil
		}
		if elem.Kind() == reflect.Struct {
			return []byte{0xc0}, nil
		}
		return []byte{0xc0}, nil
	default:
		return []byte{0x80}, nil
	}
}

func encodeList(v reflect.Value) ([]byte, error) {
	var body bytes.Buffer
	for i := 0; i < v.Len(); i++ {
		enc, err := encodeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		body.Write(enc)
	}
	return wrapList(body.Bytes()), nil
}

func encodeStruct(v reflect.Value) ([]byte, error) {
	t := v.Type()
	var body bytes.Buffer
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		tag := f.Tag.Get("rlp")
		if tag == "-" {
			continue
		}
		enc, err := encodeValue(v.Field(i))
		if err != nil {
			return nil, fmt.Errorf("rlp: field %s: %w", f.Name, err)
		}
		body.Write(enc)
	}
	return wrapList(body.Bytes()), nil
}

func wrapList(content []byte) []byte {
	return append(listHeader(len(content)), content...)
}

func listHeader(size int) []byte {
	if size < 56 {
		return []byte{0xc0 + byte(size)}
	}
	lenBytes := minimalBigEndian(uint64(size))
	header := make([]byte, 0, len(lenBytes)+1)
	header = append(header, 0xf7+byte(len(lenBytes)))
	header = append(header, lenBytes...)
	return header
}

func encodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		out := make([]byte, 0, len(b)+1)
		out = append(out, 0x80+byte(len(b)))
		return append(out, b...)
	}
	lenBytes := minimalBigEndian(uint64(len(b)))
	out := make([]byte, 0, len(b)+len(lenBytes)+1)
	out = append(out, 0xb7+byte(len(lenBytes)))
	out = append(out, lenBytes...)
	return append(out, b...)
}

func encodeUint(i uint64) []byte {
	if i == 0 {
		return []byte{0x80}
	}
	return encodeBytes(minimalBigEndian(i))
}

func encodeBigInt(bi big.Int) []byte {
	if bi.Sign() == 0 {
		return []byte{0x80}
	}
	return encodeBytes(bi.Bytes())
}

func minimalBigEndian(i uint64) []byte {
	if i == 0 {
		return nil
	}
	var buf [8]byte
	n := 8
	for i > 0 {
		n--
		buf[n] = byte(i)
		i >>= 8
	}
	return buf[n:]
}

var (
	rawValueType  = reflect.TypeOf(RawValue{})
	bigIntType    = reflect.TypeOf(big.Int{})
	bigIntPtrType = reflect.TypeOf(&big.Int{})
)
