package transform

import (
	"bytes"
	"testing"

	"github.com/revred/Sharc-sub000/internal/format"
)

func TestIdentityRoundTrip(t *testing.T) {
	var id Identity
	page := bytes.Repeat([]byte{0x55}, 4096)
	stored, err := id.Encode(3, page)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := id.Decode(3, stored)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("identity transform altered page bytes")
	}
	if id.StoredSize(4096) != 4096 {
		t.Errorf("StoredSize() = %d, want 4096", id.StoredSize(4096))
	}
}

func TestDeriveKeyAndVerify(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	copy(env.Salt[:], bytes.Repeat([]byte{0x07}, format.SaltLen))

	key, err := DeriveKey(env, []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(key) != keyLen {
		t.Fatalf("DeriveKey() length = %d, want %d", len(key), keyLen)
	}
	env.KeyCheckMAC = KeyVerifyMAC(key)

	if !VerifyKey(env, key) {
		t.Error("VerifyKey() false for the correct key")
	}

	wrongKey, _ := DeriveKey(env, []byte("wrong password"))
	if VerifyKey(env, wrongKey) {
		t.Error("VerifyKey() true for a wrong-password-derived key")
	}
}

func TestAEADEncryptDecryptRoundTrip(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	key, _ := DeriveKey(env, []byte("hunter2"))

	tr, err := New(env, key)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	page := bytes.Repeat([]byte{0xaa}, 4096)
	stored, err := tr.Encode(5, page)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(stored) != tr.StoredSize(4096) {
		t.Errorf("Encode() produced %d bytes, StoredSize says %d", len(stored), tr.StoredSize(4096))
	}

	got, err := tr.Decode(5, stored)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("round trip mismatch")
	}
}

func TestAEADDetectsPageSwap(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	key, _ := DeriveKey(env, []byte("hunter2"))
	tr, _ := New(env, key)

	pageA := bytes.Repeat([]byte{0x01}, 4096)
	storedA, _ := tr.Encode(1, pageA)

	// Pretend storedA's ciphertext was moved into page 2's slot.
	if _, err := tr.Decode(2, storedA); err == nil {
		t.Fatal("expected AEAD authentication to fail when page number AAD disagrees")
	}
}

func TestAEADDetectsTamperedCiphertext(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	key, _ := DeriveKey(env, []byte("hunter2"))
	tr, _ := New(env, key)

	page := bytes.Repeat([]byte{0x02}, 4096)
	stored, _ := tr.Encode(9, page)
	stored[len(stored)-1] ^= 0xff // flip a bit in the tag

	if _, err := tr.Decode(9, stored); err == nil {
		t.Fatal("expected AEAD authentication to fail on tampered tag")
	}
}

func TestNewRejectsUnknownCipher(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	env.CipherAlgo = 0xff
	if _, err := New(env, make([]byte, keyLen)); err == nil {
		t.Fatal("expected error for unknown cipher algorithm")
	}
}

func TestNewRejectsXChaCha20(t *testing.T) {
	env := format.NewArgon2idEnvelope(4096)
	env.CipherAlgo = format.CipherXChaCha20Poly1305
	if _, err := New(env, make([]byte, keyLen)); err == nil {
		t.Fatal("expected XChaCha20-Poly1305 to be rejected as unimplemented")
	}
}
