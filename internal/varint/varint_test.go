package varint

import "testing"

func TestPutGetUvarint(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  int
	}{
		{"1-byte zero", 0x00, 1},
		{"1-byte max", 0x7f, 1},
		{"2-byte min", 0x80, 2},
		{"2-byte max", 0x3fff, 2},
		{"3-byte min", 0x4000, 3},
		{"3-byte max", 0x1fffff, 3},
		{"4-byte min", 0x200000, 4},
		{"5-byte", 0x12345678, 5},
		{"8-byte boundary", 0xffffffffffffff, 8},
		{"9-byte min", 0x100000000000000, 9},
		{"9-byte max", 0xffffffffffffffff, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [MaxLen]byte
			n := PutUvarint(buf[:], tt.value)
			if n != tt.want {
				t.Fatalf("PutUvarint() length = %d, want %d", n, tt.want)
			}
			if got := UvarintLen(tt.value); got != tt.want {
				t.Fatalf("UvarintLen() = %d, want %d", got, tt.want)
			}
			got, m := DecodeUvarint(buf[:])
			if got != tt.value || m != n {
				t.Fatalf("DecodeUvarint() = (%d, %d), want (%d, %d)", got, m, tt.value, n)
			}
		})
	}
}

func TestEncodeDecodeSignedRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, -128, 16383, -16384, 1 << 40, -(1 << 40),
		9223372036854775807, -9223372036854775808}
	for _, v := range values {
		var buf [MaxLen]byte
		n := Encode(buf[:], v)
		if want := EncodedLen(v); n != want {
			t.Fatalf("Encode(%d) wrote %d bytes, EncodedLen said %d", v, n, want)
		}
		got, m := Decode(buf[:n])
		if got != v || m != n {
			t.Fatalf("round trip of %d failed: got (%d, %d)", v, got, m)
		}
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	if _, n := DecodeUvarint(nil); n != 0 {
		t.Fatalf("expected 0 bytes consumed on empty input, got %d", n)
	}
}

func TestDecodeTruncated(t *testing.T) {
	// A byte with the continuation bit set but nothing following it.
	if _, n := DecodeUvarint([]byte{0x80}); n != 0 {
		t.Fatalf("expected truncated varint to fail, got n=%d", n)
	}
}
