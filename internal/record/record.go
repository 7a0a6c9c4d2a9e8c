// Package record encodes and decodes the column-tuple payload carried by
// every table and index B-tree cell: a varint header of serial types
// followed by a body of serial-typed column values.
package record

import (
	"fmt"

	"github.com/revred/Sharc-sub000/internal/varint"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// ValueKind is the logical type of a decoded column value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

// Value is one decoded column. Exactly one of Int, Float, Text, Blob is
// meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

func NullValue() Value           { return Value{Kind: KindNull} }
func IntValue(v int64) Value     { return Value{Kind: KindInteger, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }
func BlobValue(v []byte) Value   { return Value{Kind: KindBlob, Blob: v} }

func (v Value) serialType() varint.SerialType {
	switch v.Kind {
	case KindNull:
		return varint.TypeNull
	case KindInteger:
		return varint.SerialTypeForInt(v.Int)
	case KindFloat:
		return varint.TypeFloat64
	case KindText:
		return varint.SerialTypeForText(len(v.Text))
	case KindBlob:
		return varint.SerialTypeForBlob(len(v.Blob))
	default:
		return varint.TypeNull
	}
}

// Encode serializes values into a record payload: a varint header-size,
// one varint serial type per column, then the column bodies in order.
func Encode(values []Value) []byte {
	serialTypes := make([]varint.SerialType, len(values))
	serialTypesSize := 0
	bodySize := 0

	for i, v := range values {
		st := v.serialType()
		serialTypes[i] = st
		serialTypesSize += varint.UvarintLen(uint64(st))
		n, _ := varint.ContentSize(st)
		bodySize += n
	}

	// The header-size varint's own length feeds back into the header size,
	// so this converges by fixed point rather than by a closed-form formula.
	headerSize := serialTypesSize + 1
	for {
		n := varint.UvarintLen(uint64(headerSize))
		next := n + serialTypesSize
		if next == headerSize {
			break
		}
		headerSize = next
	}

	buf := make([]byte, 0, headerSize+bodySize)
	var tmp [varint.MaxLen]byte

	n := varint.PutUvarint(tmp[:], uint64(headerSize))
	buf = append(buf, tmp[:n]...)

	for _, st := range serialTypes {
		n := varint.PutUvarint(tmp[:], uint64(st))
		buf = append(buf, tmp[:n]...)
	}

	for i, v := range values {
		buf = appendBody(buf, v, serialTypes[i])
	}

	return buf
}

func appendBody(buf []byte, v Value, st varint.SerialType) []byte {
	size, _ := varint.ContentSize(st)
	if size == 0 {
		return buf
	}
	body := make([]byte, size)
	switch v.Kind {
	case KindInteger:
		varint.PutInt(body, st, v.Int)
	case KindFloat:
		varint.PutFloat64(body, v.Float)
	case KindText:
		copy(body, v.Text)
	case KindBlob:
		copy(body, v.Blob)
	}
	return append(buf, body...)
}

// parseHeader reads a record's varint(header_size) plus its serial-type
// array, returning the types and the byte offset the column bodies start
// at. Shared by Decode and DecodeWithEncoding.
func parseHeader(data []byte) ([]varint.SerialType, int, error) {
	if len(data) == 0 {
		return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, "empty record")
	}

	headerSize, n := varint.DecodeUvarint(data)
	if n == 0 {
		return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, "truncated record header size")
	}
	if int(headerSize) > len(data) {
		return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, "record header size exceeds payload")
	}

	offset := n
	var serialTypes []varint.SerialType
	for offset < int(headerSize) {
		st, n := varint.DecodeUvarint(data[offset:])
		if n == 0 {
			return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, "truncated serial type")
		}
		if st == 10 || st == 11 {
			return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, fmt.Sprintf("reserved serial type %d", st))
		}
		serialTypes = append(serialTypes, varint.SerialType(st))
		offset += n
	}
	return serialTypes, offset, nil
}

// Decode parses a record payload into its column values, treating TEXT
// bodies as UTF-8 (spec.md §3's default text encoding).
func Decode(data []byte) ([]Value, error) {
	serialTypes, offset, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	values := make([]Value, len(serialTypes))
	for i, st := range serialTypes {
		size, err := varint.ContentSize(st)
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "decoding serial type", err)
		}
		if offset+size > len(data) {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "record body truncated")
		}
		values[i] = decodeValue(data[offset:offset+size], st)
		offset += size
	}

	return values, nil
}

func decodeValue(body []byte, st varint.SerialType) Value {
	switch {
	case st == varint.TypeNull:
		return NullValue()
	case varint.IsText(st):
		return TextValue(string(body))
	case varint.IsBlob(st):
		b := make([]byte, len(body))
		copy(b, body)
		return BlobValue(b)
	case st == varint.TypeFloat64:
		return FloatValue(varint.ReadFloat64(body))
	default:
		return IntValue(varint.ReadInt(body, st))
	}
}
