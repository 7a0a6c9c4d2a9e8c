package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"sync"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// aeadTransform is an AES-256-GCM PageTransform. Every page is encrypted
// independently with a deterministic nonce and the page number as AAD, so
// swapping two ciphertext pages fails authentication.
//
// counters tracks, per page, how many times that page has been
// re-encrypted; it only ever grows when the same page number is encrypted
// a second time within the life of this transform (spec.md §4.11). A fresh
// write transaction starts every touched page at counter 0, so in practice
// this map stays empty for the common case of one encrypt per page per
// open — see DESIGN.md's open-question note on in-place re-encryption.
type aeadTransform struct {
	mu       sync.Mutex
	key      []byte
	aead     cipher.AEAD
	counters map[uint32]uint32
}

func newAEAD(key []byte) (*aeadTransform, error) {
	if len(key) != keyLen {
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "AES-256-GCM requires a 32-byte key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "constructing AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "constructing GCM mode", err)
	}
	return &aeadTransform{key: key, aead: gcm, counters: make(map[uint32]uint32)}, nil
}

func (t *aeadTransform) StoredSize(logicalSize int) int {
	return format.NonceLen + logicalSize + format.TagLen
}

func (t *aeadTransform) Encode(pgno uint32, logical []byte) ([]byte, error) {
	t.mu.Lock()
	counter := t.counters[pgno]
	t.mu.Unlock()

	nonce := deriveNonce(t.key, pgno, counter, format.NonceLen)
	ciphertext := t.aead.Seal(nil, nonce, logical, pageNumberAAD(pgno))

	out := make([]byte, 0, format.NonceLen+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (t *aeadTransform) Decode(pgno uint32, stored []byte) ([]byte, error) {
	if len(stored) < format.NonceLen+format.TagLen {
		return nil, sharcerr.New(sharcerr.KindIntegrityFailure, "encrypted page record truncated")
	}
	nonce := stored[:format.NonceLen]
	ciphertext := stored[format.NonceLen:]

	plain, err := t.aead.Open(nil, nonce, ciphertext, pageNumberAAD(pgno))
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIntegrityFailure, "AEAD authentication failed", err)
	}
	return plain, nil
}

// bumpCounter marks pgno as re-encrypted, so its next Encode call derives a
// fresh nonce instead of reusing one already written to disk. Not currently
// called by any commit path (see DESIGN.md); exposed for a future in-place
// re-encryption feature.
func (t *aeadTransform) bumpCounter(pgno uint32) {
	t.mu.Lock()
	t.counters[pgno]++
	t.mu.Unlock()
}
