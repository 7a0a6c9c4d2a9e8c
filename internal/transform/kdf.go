package transform

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// keyVerifyPlaintext is the fixed plaintext whose HMAC under the derived
// key is stored in the envelope and re-checked on every open.
const keyVerifyPlaintext = "SHARC_KEY_VERIFY"

const keyLen = 32 // AES-256

// DeriveKey derives a 32-byte key from password using the KDF and
// parameters recorded in env.
func DeriveKey(env *format.Envelope, password []byte) ([]byte, error) {
	switch env.KDFAlgo {
	case format.KDFArgon2id:
		return argon2.IDKey(password, env.Salt[:], env.KDFTimeCost, env.KDFMemoryKB, env.KDFParallel, keyLen), nil
	case format.KDFScrypt:
		key, err := scrypt.Key(password, env.Salt[:], 1<<17, 8, 1, keyLen)
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "scrypt key derivation", err)
		}
		return key, nil
	default:
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "unsupported KDF algorithm")
	}
}

// KeyVerifyMAC computes the envelope's key-verification field for key.
func KeyVerifyMAC(key []byte) [format.KeyCheckMACLen]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(keyVerifyPlaintext))
	sum := mac.Sum(nil)
	var out [format.KeyCheckMACLen]byte
	copy(out[:], sum)
	return out
}

// VerifyKey reports whether key matches the envelope's stored verification
// MAC, in constant time. A false result means wrong password.
func VerifyKey(env *format.Envelope, key []byte) bool {
	want := KeyVerifyMAC(key)
	return subtle.ConstantTimeCompare(want[:], env.KeyCheckMAC[:]) == 1
}

// deriveNonce computes the first nonceLen bytes of
// HMAC-SHA-256(key, page_number || counter), per spec.md §4.11.
func deriveNonce(key []byte, pgno uint32, counter uint32, nonceLen int) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(pageNumberAAD(pgno))
	var c [4]byte
	c[0] = byte(counter >> 24)
	c[1] = byte(counter >> 16)
	c[2] = byte(counter >> 8)
	c[3] = byte(counter)
	mac.Write(c[:])
	sum := mac.Sum(nil)
	return sum[:nonceLen]
}
