// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package crypto is this module's cryptography facade: hashing,
// signing/verification, base64 encoding and the proof-of-work predicate.
// Everything the rest of the module needs from cryptography goes through
// this package so the primitives can be swapped without touching callers.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"golang.org/x/crypto/ed25519"
)

// HashSize is the digest size produced by Hash, in bytes.
const HashSize = 32

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) [HashSize]byte {
	return sha256.Sum256(data)
}

// HashBytes is a convenience wrapper returning a slice instead of an array.
func HashBytes(data []byte) []byte {
	h := Hash(data)
	return h[:]
}

// GenerateKey creates a new ed25519 keypair for account registration or the
// local miner identity.
func GenerateKey() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(nil)
}

// Sign signs digest with privkey, both already decoded from base64.
func Sign(privkey ed25519.PrivateKey, digest []byte) []byte {
	return ed25519.Sign(privkey, digest)
}

// Verify checks sign over digest against pubkey. It never panics on
// malformed inputs of the wrong length, returning false instead -- the
// validation pipeline treats a bad signature as a rejection, not a crash.
func Verify(pubkey, digest, sign []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize {
		return false
	}
	if len(sign) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), digest, sign)
}

// base64Alphabet is the standard RFC 4648 alphabet plus the '=' padding
// character; IsValidBase64 rejects anything using the URL-safe variant or
// containing characters outside this set.
var base64Alphabet [256]bool

func init() {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="
	for i := 0; i < len(alphabet); i++ {
		base64Alphabet[alphabet[i]] = true
	}
}

// IsValidBase64 reports whether s uses only the standard base64 alphabet and
// decodes to a complete byte sequence (no trailing garbage).
func IsValidBase64(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !base64Alphabet[s[i]] {
			return false
		}
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// EncodeBase64 / DecodeBase64 are the standard-alphabet codec used for every
// hash, pubkey and signature field that crosses a wire or storage boundary.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func DecodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// PowOk is the proof-of-work predicate: interpret the first 4 bytes of hash
// as a big-endian uint32 X, and accept iff X >> (32 - zeroBits) == 0, for
// zeroBits in [1,32].
func PowOk(hash []byte, zeroBits uint32) bool {
	if zeroBits < 1 || zeroBits > 32 {
		return false
	}
	if len(hash) < 4 {
		return false
	}
	x := binary.BigEndian.Uint32(hash[:4])
	return x>>(32-zeroBits) == 0
}
