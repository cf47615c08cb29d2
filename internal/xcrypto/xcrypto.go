// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package xcrypto is the thin, typed surface over the vetted cryptographic
// library that every other package in this module builds on. Nothing
// outside this package ever imports github.com/bytemare/crypto or
// golang.org/x/crypto/chacha20poly1305 directly.
package xcrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	group "github.com/bytemare/crypto"
	"github.com/bytemare/hash"
	"golang.org/x/crypto/chacha20poly1305"
)

// Scalar and Point are the Ristretto255 group element types. Both are
// opaque; callers never touch their internals except through this package.
type (
	Scalar = group.Scalar
	Point  = group.Element
)

// PointLength is the size in bytes of an encoded Ristretto255 group element.
const PointLength = 32

// ScalarLength is the size in bytes of an encoded Ristretto255 scalar.
const ScalarLength = 32

// Sha512Length is the size in bytes of a SHA-512 digest.
const Sha512Length = 64

// NonceLength is the size in bytes of the XChaCha20-Poly1305-IETF nonce.
const NonceLength = 24

// ErrInvalidEncoding is returned by decode operations when the input is not
// a valid encoding of the expected type. It is never a fatal error.
var ErrInvalidEncoding = fmt.Errorf("xcrypto: invalid encoding")

// ErrAuthFail is returned by Open when AEAD authentication fails. It is a
// normal negative outcome, not a fatal error; see spec §7.
var ErrAuthFail = fmt.Errorf("xcrypto: authentication failed")

// the group backing the whole protocol, per spec §2: Ristretto255.
var ristretto = group.Ristretto255Sha512

// Provider is the CryptoProvider capability set of spec §9: a single
// implementation backed by the vetted library, injected at engine
// construction rather than reached for as a process-wide singleton.
type Provider struct {
	sha512 *hash.Fixed
}

// NewProvider returns the default Provider, backed by github.com/bytemare/crypto
// (Ristretto255) and github.com/bytemare/hash (SHA-512, HKDF-SHA512).
func NewProvider() *Provider {
	return &Provider{sha512: hash.FromCrypto(crypto.SHA512).GetHashFunction()}
}

// HashToGroup maps input to a Ristretto255 group element, domain-separated
// by dst. This is the §4.1 hash_to_group primitive (H1 in §4.2), left
// unspecified by the protocol spec and supplied here by the vetted library.
func (p *Provider) HashToGroup(input, dst []byte) *Point {
	return ristretto.HashToGroup(input, dst)
}

// RandomScalar samples a scalar uniformly from the Ristretto255 scalar
// field using a CSPRNG.
func (p *Provider) RandomScalar() *Scalar {
	return ristretto.NewScalar().Random()
}

// ScalarInvert returns the multiplicative inverse of s in the scalar field.
func (p *Provider) ScalarInvert(s *Scalar) *Scalar {
	return s.Invert()
}

// ScalarMul returns s·P.
func (p *Provider) ScalarMul(s *Scalar, pt *Point) *Point {
	return pt.Multiply(s)
}

// PointEncode returns the canonical 32-byte encoding of pt.
func (p *Provider) PointEncode(pt *Point) []byte {
	return pt.Encode()
}

// PointDecode decodes a 32-byte canonical Ristretto255 encoding.
// Returns ErrInvalidEncoding if b is not a valid encoding.
func (p *Provider) PointDecode(b []byte) (*Point, error) {
	pt := ristretto.NewElement()
	if err := pt.Decode(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	return pt, nil
}

// ScalarEncode returns the canonical 32-byte encoding of s.
func (p *Provider) ScalarEncode(s *Scalar) []byte {
	return s.Encode()
}

// ScalarDecode decodes a 32-byte canonical scalar encoding.
func (p *Provider) ScalarDecode(b []byte) (*Scalar, error) {
	s := ristretto.NewScalar()
	if err := s.Decode(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	return s, nil
}

// Sha512 returns the 64-byte SHA-512 digest of the concatenation of input.
func (p *Provider) Sha512(input ...[]byte) [Sha512Length]byte {
	h := sha512.New()
	for _, i := range input {
		_, _ = h.Write(i)
	}

	var out [Sha512Length]byte
	copy(out[:], h.Sum(nil))

	return out
}

// HkdfSha512 derives length bytes from ikm using HKDF-SHA512 with the given
// salt and info, per RFC 5869.
func (p *Provider) HkdfSha512(ikm, salt, info []byte, length int) []byte {
	prk := p.sha512.HKDFExtract(ikm, salt)

	return p.sha512.HKDFExpand(prk, info, length)
}

// AeadSeal encrypts plaintext with XChaCha20-Poly1305-IETF under key and
// nonce, binding aad. key must be 32 bytes, nonce must be NonceLength bytes.
func (p *Provider) AeadSeal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: building AEAD: %w", err)
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// AeadOpen decrypts and authenticates ciphertext. Returns ErrAuthFail (a
// normal negative outcome, never fatal) if authentication fails.
func (p *Provider) AeadOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: building AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFail
	}

	return plaintext, nil
}

// RandomNonce returns NonceLength bytes of CSPRNG output suitable as an
// XChaCha20-Poly1305-IETF nonce.
func (p *Provider) RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("xcrypto: reading random nonce: %w", err)
	}

	return nonce, nil
}
