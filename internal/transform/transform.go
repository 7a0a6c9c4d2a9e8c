// Package transform implements the page transform pipeline: an identity
// no-op for cleartext databases, and an AEAD transform that encrypts every
// page independently under a key derived from a password.
package transform

import (
	"encoding/binary"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// PageTransform converts between the logical page bytes the B-tree layer
// works with and the bytes actually stored on disk.
type PageTransform interface {
	// Decode turns the on-disk bytes for pgno into logical page bytes.
	Decode(pgno uint32, stored []byte) ([]byte, error)

	// Encode turns logical page bytes for pgno into on-disk bytes.
	Encode(pgno uint32, logical []byte) ([]byte, error)

	// StoredSize returns the on-disk size of a page of the given logical size.
	StoredSize(logicalSize int) int
}

// Identity is a no-op transform: stored bytes are the logical bytes.
type Identity struct{}

func (Identity) Decode(pgno uint32, stored []byte) ([]byte, error) { return stored, nil }
func (Identity) Encode(pgno uint32, logical []byte) ([]byte, error) { return logical, nil }
func (Identity) StoredSize(logicalSize int) int                     { return logicalSize }

func pageNumberAAD(pgno uint32) []byte {
	aad := make([]byte, 4)
	binary.BigEndian.PutUint32(aad, pgno)
	return aad
}

// New constructs a PageTransform from an envelope and a derived key. cipherID
// must be format.CipherAES256GCM; any other id is rejected (see DESIGN.md's
// XChaCha20-Poly1305 open question).
func New(env *format.Envelope, key []byte) (PageTransform, error) {
	switch env.CipherAlgo {
	case format.CipherAES256GCM:
		return newAEAD(key)
	case format.CipherXChaCha20Poly1305:
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "cipher XChaCha20-Poly1305 is not implemented")
	default:
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "unsupported cipher algorithm")
	}
}
