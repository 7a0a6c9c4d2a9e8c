package record

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/varint"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// decodeTextBody converts a TEXT column body from its stored encoding to
// UTF-8 (encodeTextBody below goes the other way), per the database
// header's text-encoding field (spec.md §3).
// UTF-8 databases (the common case) need none; this is only reached for
// UTF-16LE/BE databases.
func decodeTextBody(body []byte, textEncoding uint32) (string, error) {
	switch textEncoding {
	case 0, format.EncodingUTF8:
		return string(body), nil
	case format.EncodingUTF16LE:
		return transcodeToUTF8(body, unicode.LittleEndian)
	case format.EncodingUTF16BE:
		return transcodeToUTF8(body, unicode.BigEndian)
	default:
		return "", sharcerr.New(sharcerr.KindInvalidDatabase, "unrecognized text encoding")
	}
}

func transcodeToUTF8(body []byte, order unicode.Endianness) (string, error) {
	dec := unicode.UTF16(order, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(body)
	if err != nil {
		return "", sharcerr.Wrap(sharcerr.KindCorruptPage, "transcoding utf-16 text column", err)
	}
	return string(out), nil
}

func encodeTextBody(s string, textEncoding uint32) ([]byte, error) {
	switch textEncoding {
	case 0, format.EncodingUTF8:
		return []byte(s), nil
	case format.EncodingUTF16LE:
		return transcodeFromUTF8(s, unicode.LittleEndian)
	case format.EncodingUTF16BE:
		return transcodeFromUTF8(s, unicode.BigEndian)
	default:
		return nil, sharcerr.New(sharcerr.KindInvalidDatabase, "unrecognized text encoding")
	}
}

func transcodeFromUTF8(s string, order unicode.Endianness) ([]byte, error) {
	enc := unicode.UTF16(order, unicode.IgnoreBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindInvalidArgument, "transcoding text column to utf-16", err)
	}
	return out, nil
}

// DecodeWithEncoding parses a record payload the way Decode does, but
// transcodes TEXT bodies from the database's stored text encoding
// (format.EncodingUTF8/UTF16LE/UTF16BE) into Go's native UTF-8 strings.
func DecodeWithEncoding(data []byte, textEncoding uint32) ([]Value, error) {
	if textEncoding == 0 || textEncoding == format.EncodingUTF8 {
		return Decode(data)
	}

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
		body := data[offset : offset+size]
		if varint.IsText(st) {
			text, err := decodeTextBody(body, textEncoding)
			if err != nil {
				return nil, err
			}
			values[i] = TextValue(text)
		} else {
			values[i] = decodeValue(body, st)
		}
		offset += size
	}
	return values, nil
}

// EncodeWithEncoding serializes values the way Encode does, but transcodes
// TEXT values into the database's stored text encoding before computing
// serial types and body sizes.
func EncodeWithEncoding(values []Value, textEncoding uint32) ([]byte, error) {
	if textEncoding == 0 || textEncoding == format.EncodingUTF8 {
		return Encode(values), nil
	}

	transcoded := make([]Value, len(values))
	for i, v := range values {
		if v.Kind != KindText {
			transcoded[i] = v
			continue
		}
		body, err := encodeTextBody(v.Text, textEncoding)
		if err != nil {
			return nil, err
		}
		transcoded[i] = BlobValue(body)
	}

	raw := Encode(transcoded)
	return retagTextSerialTypes(raw, values), nil
}

// retagTextSerialTypes rewrites the serial-type byte of each column the
// caller's original values marked as TEXT, so the transcoded bytes (laid
// out as BLOB bodies by the Encode pass above, to reuse its size math
// unmodified) are read back as TEXT by a plain Decode.
func retagTextSerialTypes(raw []byte, original []Value) []byte {
	hasText := false
	for _, v := range original {
		if v.Kind == KindText {
			hasText = true
			break
		}
	}
	if !hasText {
		return raw
	}

	headerSize, n := varint.DecodeUvarint(raw)
	out := make([]byte, len(raw))
	copy(out, raw)

	offset := n
	for _, v := range original {
		st, stLen := varint.DecodeUvarint(out[offset:])
		if v.Kind == KindText {
			// A BLOB and TEXT serial type of the same body length differ by
			// exactly one (12+2n vs 13+2n); bump it in place.
			var tmp [varint.MaxLen]byte
			newLen := varint.PutUvarint(tmp[:], st+1)
			copy(out[offset:offset+stLen], tmp[:newLen])
		}
		offset += stLen
		if offset >= int(headerSize) {
			break
		}
	}
	return out
}
