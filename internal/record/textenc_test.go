package record

import (
	"testing"

	"github.com/revred/Sharc-sub000/internal/format"
)

func TestEncodeDecodeWithEncodingUTF8PassesThrough(t *testing.T) {
	values := []Value{IntValue(7), TextValue("plain utf8"), NullValue()}
	data, err := EncodeWithEncoding(values, format.EncodingUTF8)
	if err != nil {
		t.Fatalf("EncodeWithEncoding() error = %v", err)
	}
	if got, want := data, Encode(values); string(got) != string(want) {
		t.Errorf("EncodeWithEncoding(UTF8) diverged from Encode()")
	}
	got, err := DecodeWithEncoding(data, format.EncodingUTF8)
	if err != nil {
		t.Fatalf("DecodeWithEncoding() error = %v", err)
	}
	if got[1].Text != "plain utf8" {
		t.Errorf("Text = %q, want %q", got[1].Text, "plain utf8")
	}
}

func TestEncodeDecodeWithEncodingUTF16RoundTrip(t *testing.T) {
	for _, enc := range []uint32{format.EncodingUTF16LE, format.EncodingUTF16BE} {
		values := []Value{TextValue("héllo sharc"), IntValue(42), BlobValue([]byte{1, 2, 3})}
		data, err := EncodeWithEncoding(values, enc)
		if err != nil {
			t.Fatalf("EncodeWithEncoding(%d) error = %v", enc, err)
		}

		got, err := DecodeWithEncoding(data, enc)
		if err != nil {
			t.Fatalf("DecodeWithEncoding(%d) error = %v", enc, err)
		}
		if len(got) != len(values) {
			t.Fatalf("DecodeWithEncoding(%d) returned %d values, want %d", enc, len(got), len(values))
		}
		if got[0].Kind != KindText || got[0].Text != "héllo sharc" {
			t.Errorf("encoding %d: Text = %+v, want %q", enc, got[0], "héllo sharc")
		}
		if got[1].Int != 42 {
			t.Errorf("encoding %d: Int = %d, want 42", enc, got[1].Int)
		}
		if got[2].Kind != KindBlob || string(got[2].Blob) != "\x01\x02\x03" {
			t.Errorf("encoding %d: Blob = %+v", enc, got[2])
		}
	}
}

func TestDecodeWithEncodingUnknownFails(t *testing.T) {
	data := Encode([]Value{TextValue("x")})
	if _, err := DecodeWithEncoding(data, 99); err == nil {
		t.Fatal("expected error for unrecognized text encoding")
	}
}
