// Copyright 2014 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package rlp

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
)

var (
	ErrExpectedString = errors.New("rlp: expected string or byte")
	ErrExpectedList   = errors.New("rlp: expected list")
	ErrCanonInt       = errors.New("rlp: non-canonical integer (leading zero bytes)")
	ErrCanonSize      = errors.New("rlp: non-canonical size information")
	ErrElemTooLarge   = errors.New("rlp: element is larger than containing list")
	ErrValueTooLarge  = errors.New("rlp: value size exceeds available input")
	ErrMoreThanOneValue = errors.New("rlp: input contains more than one value")
	ErrUnexpectedEOF  = errors.New("rlp: unexpected EOF")
)

// Decoder is implemented by types that decode themselves from a low-level item, given
// directly as the bytes that make up that item's RLP encoding (header included).
type Decoder interface {
	DecodeRLP(data []byte) error
}

var decoderInterface = reflect.TypeOf((*Decoder)(nil)).Elem()

// Kind identifies the shape of the next RLP item: a single byte, a byte string, or a list.
type Kind int

const (
	Byte Kind = iota
	String
	List
)

// Split reads a single RLP item from b and returns its kind, its content (without header)
// and the remaining unconsumed bytes.
func Split(b []byte) (Kind, []byte, []byte, error) {
	if len(b) == 0 {
		return 0, nil, nil, ErrUnexpectedEOF
	}
	switch tag := b[0]; {
	case tag < 0x80:
		return Byte, b[:1], b[1:], nil
	case tag < 0xb8:
		size := int(tag - 0x80)
		content, rest, err := takeSized(b[1:], size)
		return String, content, rest, err
	case tag < 0xc0:
		lenOfLen := int(tag - 0xb7)
		size, rest, err := readSize(b[1:], lenOfLen)
		if err != nil {
			return 0, nil, nil, err
		}
		content, rest, err := takeSized(rest, size)
		return String, content, rest, err
	case tag < 0xf8:
		size := int(tag - 0xc0)
		content, rest, err := takeSized(b[1:], size)
		return List, content, rest, err
	default:
		lenOfLen := int(tag - 0xf7)
		size, rest, err := readSize(b[1:], lenOfLen)
		if err != nil {
			return 0, nil, nil, err
		}
		content, rest, err := takeSized(rest, size)
		return List, content, rest, err
	}
}

func readSize(b []byte, lenOfLen int) (int, []byte, error) {
	if len(b) < lenOfLen {
		return 0, nil, ErrUnexpectedEOF
	}
	if b[0] == 0 {
		return 0, nil, ErrCanonSize
	}
	var size uint64
	for _, c := range b[:lenOfLen] {
		size = size<<8 | uint64(c)
	}
	if size < 56 {
		return 0, nil, ErrCanonSize
	}
	return int(size), b[lenOfLen:], nil
}

func takeSized(b []byte, size int) (content, rest []byte, err error) {
	if size > len(b) {
		return nil, nil, ErrValueTooLarge
	}
	return b[:size], b[size:], nil
}

// SplitString splits b into the content of a string item and the remainder.
func SplitString(b []byte) ([]byte, []byte, error) {
	k, content, rest, err := Split(b)
	if err != nil {
		return nil, nil, err
	}
	if k == List {
		return nil, nil, ErrExpectedString
	}
	return content, rest, nil
}

// SplitList splits b into the content of a list item and the remainder.
func SplitList(b []byte) ([]byte, []byte, error) {
	k, content, rest, err := Split(b)
	if err != nil {
		return nil, nil, err
	}
	if k != List {
		return nil, nil, ErrExpectedList
	}
	return content, rest, nil
}

// CountValues counts the number of top-level items encoded in b.
func CountValues(b []byte) (int, error) {
	i := 0
	for len(b) > 0 {
		_, _, rest, err := Split(b)
		if err != nil {
			return 0, err
		}
		b = rest
		i++
	}
	return i, nil
}

// DecodeBytes parses RLP-encoded data from b into val, which must be a non-nil pointer.
// The whole of b must be consumed by exactly one value.
func DecodeBytes(b []byte, val interface{}) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("rlp: DecodeBytes requires a non-nil pointer")
	}
	rest, err := decodeValue(b, rv.Elem())
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return ErrMoreThanOneValue
	}
	return nil
}

// Decode reads all of r and decodes it as a single RLP value into val.
func Decode(r io.Reader, val interface{}) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return DecodeBytes(b, val)
}

func decodeValue(b []byte, v reflect.Value) ([]byte, error) {
	t := v.Type()

	if t == rawValueType {
		_, _, rest, err := Split(b)
		if err != nil {
			return nil, err
		}
		v.SetBytes(b[:len(b)-len(rest)])
		return rest, nil
	}
	if v.CanAddr() && v.Addr().CanInterface() && v.Addr().Type().Implements(decoderInterface) {
		_, _, rest, err := Split(b)
		if err != nil {
			return nil, err
		}
		item := b[:len(b)-len(rest)]
		if err := v.Addr().Interface().(Decoder).DecodeRLP(item); err != nil {
			return nil, err
		}
		return rest, nil
	}
	if t == bigIntType || t == bigIntPtrType {
		content, rest, err := SplitString(b)
		if err != nil {
			return nil, err
		}
		if len(content) > 0 && content[0] == 0 {
			return nil, ErrCanonInt
		}
		bi := new(big.Int).SetBytes(content)
		if t == bigIntPtrType {
			v.Set(reflect.ValueOf(bi))
		} else {
			v.Set(reflect.ValueOf(*bi))
		}
		return rest, nil
	}

	switch t.Kind() {
	case reflect.Ptr:
		elem := reflect.New(t.Elem())
		rest, err := decodeValue(b, elem.Elem())
		if err != nil {
			return nil, err
		}
		v.Set(elem)
		return rest, nil
	case reflect.Bool:
		content, rest, err := SplitString(b)
		if err != nil {
			return nil, err
		}
		v.SetBool(len(content) == 1 && content[0] == 1)
		return rest, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		content, rest, err := SplitString(b)
		if err != nil {
			return nil, err
		}
		if len(content) > 0 && content[0] == 0 {
			return nil, ErrCanonInt
		}
		if len(content) > 8 {
			return nil, ErrElemTooLarge
		}
		var u uint64
		for _, c := range content {
			u = u<<8 | uint64(c)
		}
		v.SetUint(u)
		return rest, nil
	case reflect.String:
		content, rest, err := SplitString(b)
		if err != nil {
			return nil, err
		}
		v.SetString(string(content))
		return rest, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return decodeByteSlice(b, v)
		}
		return decodeList(b, v)
	case reflect.Struct:
		return decodeStruct(b, v)
	case reflect.Interface:
		if v.NumMethod() == 0 {
			var raw RawValue
			_, _, rest, err := Split(b)
			if err != nil {
				return nil, err
			}
			raw = RawValue(b[:len(b)-len(rest)])
			v.Set(reflect.ValueOf(raw))
			return rest, nil
		}
		return nil, fmt.Errorf("rlp: cannot decode into interface type %v", t)
	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-deserializable", t)
	}
}

func decodeByteSlice(b []byte, v reflect.Value) ([]byte, error) {
	content, rest, err := SplitString(b)
	if err != nil {
		return nil, err
	}
	if v.Kind() == reflect.Slice {
		cp := make([]byte, len(content))
		copy(cp, content)
		v.SetBytes(cp)
		return rest, nil
	}
	if len(content) != v.Len() {
		return nil, fmt.Errorf("rlp: input string of length %d too %s for array of size %d", len(content), sizeWord(len(content), v.Len()), v.Len())
	}
	for i := 0; i < v.Len(); i++ {
		v.Index(i).SetUint(uint64(content[i]))
	}
	return rest, nil
}

func sizeWord(have, want int) string {
	if have > want {
		return "long"
	}
	return "short"
}

func decodeList(b []byte, v reflect.Value) ([]byte, error) {
	content, rest, err := SplitList(b)
	if err != nil {
		return nil, err
	}
	var items []reflect.Value
	for len(content) > 0 {
		elem := reflect.New(v.Type().Elem()).Elem()
		var elemErr error
		content, elemErr = decodeValue(content, elem)
		if elemErr != nil {
			return nil, elemErr
		}
		items = append(items, elem)
	}
	if v.Kind() == reflect.Array {
		if len(items) != v.Len() {
			return nil, fmt.Errorf("rlp: array length mismatch: have %d, want %d", len(items), v.Len())
		}
		for i, it := range items {
			v.Index(i).Set(it)
		}
		return rest, nil
	}
	out := reflect.MakeSlice(v.Type(), len(items), len(items))
	for i, it := range items {
		out.Index(i).Set(it)
	}
	v.Set(out)
	return rest, nil
}

func decodeStruct(b []byte, v reflect.Value) ([]byte, error) {
	content, rest, err := SplitList(b)
	if err != nil {
		return nil, err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if f.Tag.Get("rlp") == "-" {
			continue
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("rlp: too few elements decoding struct %s", t.Name())
		}
		var ferr error
		content, ferr = decodeValue(content, v.Field(i))
		if ferr != nil {
			return nil, fmt.Errorf("rlp: field %s: %w", f.Name, ferr)
		}
	}
	return rest, nil
}
