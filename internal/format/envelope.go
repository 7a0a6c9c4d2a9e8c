package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encryption envelope constants (spec.md §3, §4.11). The envelope occupies
// the first 128 bytes of an encrypted database file; page records follow.
const (
	EnvelopeSize = 128

	EnvelopeMagic = "SHARCE"

	envOffMagic       = 0  // 6 bytes
	envOffVersion     = 6  // 2 bytes
	envOffKDFAlgo     = 8  // 1 byte
	envOffCipherAlgo  = 9  // 1 byte
	envOffReserved1   = 10 // 2 bytes
	envOffKDFTime     = 12 // 4 bytes
	envOffKDFMemoryKB = 16 // 4 bytes
	envOffKDFParallel = 20 // 1 byte
	envOffReserved2   = 21 // 3 bytes
	envOffSalt        = 24 // 32 bytes
	envOffKeyCheckMAC = 56 // 32 bytes
	envOffInnerPageSz = 88 // 4 bytes
	envOffPageCount   = 92 // 4 bytes
	envOffReserved3   = 96 // 32 bytes

	SaltLen        = 32
	KeyCheckMACLen = 32

	// Per-page AEAD framing: nonce || ciphertext(== page size) || tag.
	NonceLen = 12
	TagLen   = 16
)

// KDF algorithm identifiers.
const (
	KDFArgon2id = 1
	KDFScrypt   = 2
)

// Cipher algorithm identifiers.
const (
	CipherAES256GCM           = 1
	CipherXChaCha20Poly1305   = 2 // reserved, unimplemented; see DESIGN.md open questions
)

const EnvelopeVersion = 1

var ErrBadEnvelopeMagic = errors.New("format: invalid encryption envelope magic")

// Envelope is the parsed 128-byte encryption envelope.
type Envelope struct {
	Version       uint16
	KDFAlgo       uint8
	CipherAlgo    uint8
	KDFTimeCost   uint32
	KDFMemoryKB   uint32
	KDFParallel   uint8
	Salt          [SaltLen]byte
	KeyCheckMAC   [KeyCheckMACLen]byte
	InnerPageSize uint32
	PageCount     uint32
}

// PageRecordSize is the on-disk size of one encrypted page record:
// nonce, ciphertext of innerPageSize bytes, and the AEAD tag.
func PageRecordSize(innerPageSize int) int {
	return NonceLen + innerPageSize + TagLen
}

// ParseEnvelope parses the 128-byte encryption envelope at file offset 0.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < EnvelopeSize {
		return nil, fmt.Errorf("format: envelope truncated")
	}
	if string(data[envOffMagic:envOffMagic+6]) != EnvelopeMagic {
		return nil, ErrBadEnvelopeMagic
	}
	e := &Envelope{
		Version:     binary.BigEndian.Uint16(data[envOffVersion:]),
		KDFAlgo:     data[envOffKDFAlgo],
		CipherAlgo:  data[envOffCipherAlgo],
		KDFTimeCost: binary.BigEndian.Uint32(data[envOffKDFTime:]),
		KDFMemoryKB: binary.BigEndian.Uint32(data[envOffKDFMemoryKB:]),
		KDFParallel: data[envOffKDFParallel],
	}
	copy(e.Salt[:], data[envOffSalt:envOffSalt+SaltLen])
	copy(e.KeyCheckMAC[:], data[envOffKeyCheckMAC:envOffKeyCheckMAC+KeyCheckMACLen])
	e.InnerPageSize = binary.BigEndian.Uint32(data[envOffInnerPageSz:])
	e.PageCount = binary.BigEndian.Uint32(data[envOffPageCount:])
	return e, nil
}

// Write serializes the envelope into a fresh 128-byte slice.
func (e *Envelope) Write() []byte {
	data := make([]byte, EnvelopeSize)
	copy(data[envOffMagic:], EnvelopeMagic)
	binary.BigEndian.PutUint16(data[envOffVersion:], e.Version)
	data[envOffKDFAlgo] = e.KDFAlgo
	data[envOffCipherAlgo] = e.CipherAlgo
	binary.BigEndian.PutUint32(data[envOffKDFTime:], e.KDFTimeCost)
	binary.BigEndian.PutUint32(data[envOffKDFMemoryKB:], e.KDFMemoryKB)
	data[envOffKDFParallel] = e.KDFParallel
	copy(data[envOffSalt:], e.Salt[:])
	copy(data[envOffKeyCheckMAC:], e.KeyCheckMAC[:])
	binary.BigEndian.PutUint32(data[envOffInnerPageSz:], e.InnerPageSize)
	binary.BigEndian.PutUint32(data[envOffPageCount:], e.PageCount)
	return data
}

// NewArgon2idEnvelope returns an envelope configured with spec.md's default
// Argon2id parameters (time cost 3, memory 64 MiB, parallelism 4).
func NewArgon2idEnvelope(innerPageSize int) *Envelope {
	return &Envelope{
		Version:       EnvelopeVersion,
		KDFAlgo:       KDFArgon2id,
		CipherAlgo:    CipherAES256GCM,
		KDFTimeCost:   3,
		KDFMemoryKB:   64 * 1024,
		KDFParallel:   4,
		InnerPageSize: uint32(innerPageSize),
	}
}
