// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package xcrypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

func TestScalarEncodeDecodeRoundTrip(t *testing.T) {
	p := xcrypto.NewProvider()
	s := p.RandomScalar()

	enc := p.ScalarEncode(s)
	if len(enc) != xcrypto.ScalarLength {
		t.Fatalf("encoded scalar length = %d, want %d", len(enc), xcrypto.ScalarLength)
	}

	dec, err := p.ScalarDecode(enc)
	if err != nil {
		t.Fatalf("ScalarDecode: %v", err)
	}

	if !bytes.Equal(p.ScalarEncode(dec), enc) {
		t.Fatal("round-tripped scalar does not re-encode identically")
	}
}

func TestScalarDecodeRejectsBadEncoding(t *testing.T) {
	p := xcrypto.NewProvider()

	_, err := p.ScalarDecode([]byte("too short"))
	if !errors.Is(err, xcrypto.ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestPointEncodeDecodeRoundTrip(t *testing.T) {
	p := xcrypto.NewProvider()
	pt := p.HashToGroup([]byte("1.2.3.4"), []byte("dst"))

	enc := p.PointEncode(pt)
	if len(enc) != xcrypto.PointLength {
		t.Fatalf("encoded point length = %d, want %d", len(enc), xcrypto.PointLength)
	}

	dec, err := p.PointDecode(enc)
	if err != nil {
		t.Fatalf("PointDecode: %v", err)
	}

	if !bytes.Equal(p.PointEncode(dec), enc) {
		t.Fatal("round-tripped point does not re-encode identically")
	}
}

func TestHashToGroupIsDeterministicAndDomainSeparated(t *testing.T) {
	p := xcrypto.NewProvider()

	a := p.PointEncode(p.HashToGroup([]byte("1.2.3.4"), []byte("dst-a")))
	b := p.PointEncode(p.HashToGroup([]byte("1.2.3.4"), []byte("dst-a")))

	if !bytes.Equal(a, b) {
		t.Fatal("HashToGroup is not deterministic for identical input and dst")
	}

	c := p.PointEncode(p.HashToGroup([]byte("1.2.3.4"), []byte("dst-b")))
	if bytes.Equal(a, c) {
		t.Fatal("HashToGroup produced identical output for different dst values")
	}
}

func TestScalarMulInverseRoundTrip(t *testing.T) {
	p := xcrypto.NewProvider()
	base := p.HashToGroup([]byte("needle"), []byte("dst"))

	r := p.RandomScalar()
	blinded := p.ScalarMul(r, base)

	rInv := p.ScalarInvert(r)
	unblinded := p.ScalarMul(rInv, blinded)

	if !bytes.Equal(p.PointEncode(unblinded), p.PointEncode(base)) {
		t.Fatal("r^-1 * (r * P) != P")
	}
}

func TestAeadSealOpenRoundTrip(t *testing.T) {
	p := xcrypto.NewProvider()
	key := bytes.Repeat([]byte{0x42}, 32)

	nonce, err := p.RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce: %v", err)
	}

	aad := []byte("1.2.3.4")
	plaintext := []byte("malicious scanner, high confidence")

	ct, err := p.AeadSeal(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("AeadSeal: %v", err)
	}

	got, err := p.AeadOpen(key, nonce, aad, ct)
	if err != nil {
		t.Fatalf("AeadOpen: %v", err)
	}

	if !bytes.Equal(got, plaintext) {
		t.Fatalf("AeadOpen returned %q, want %q", got, plaintext)
	}
}

func TestAeadOpenFailsOnWrongAAD(t *testing.T) {
	p := xcrypto.NewProvider()
	key := bytes.Repeat([]byte{0x42}, 32)

	nonce, err := p.RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce: %v", err)
	}

	ct, err := p.AeadSeal(key, nonce, []byte("1.2.3.4"), []byte("secret"))
	if err != nil {
		t.Fatalf("AeadSeal: %v", err)
	}

	if _, err := p.AeadOpen(key, nonce, []byte("5.6.7.8"), ct); !errors.Is(err, xcrypto.ErrAuthFail) {
		t.Fatalf("expected ErrAuthFail for a mismatched AAD, got %v", err)
	}
}

func TestHkdfSha512IsStableForIdenticalInput(t *testing.T) {
	p := xcrypto.NewProvider()

	ikm := []byte("shared secret material")
	info := []byte("meta|malware_domains")

	a := p.HkdfSha512(ikm, nil, info, 32)
	b := p.HkdfSha512(ikm, nil, info, 32)

	if !bytes.Equal(a, b) {
		t.Fatal("HkdfSha512 is not stable for identical input")
	}

	c := p.HkdfSha512(ikm, nil, []byte("meta|other_feed"), 32)
	if bytes.Equal(a, c) {
		t.Fatal("HkdfSha512 produced identical output for different info")
	}
}
