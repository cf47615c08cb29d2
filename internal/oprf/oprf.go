// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package oprf implements the stateless blind/evaluate/unblind/finalize
// OPRF engine of spec §4.2, over Ristretto255-SHA512.
package oprf

import (
	"fmt"

	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

const (
	dstHashToGroup = "CLOAKmatch-OPRF-H2G|"
	infoPrefix     = "meta|"
)

// Engine is the stateless OPRF engine. It holds no per-query state; every
// method takes all the inputs it needs and returns all the outputs a
// caller needs for the next step.
type Engine struct {
	crypto *xcrypto.Provider
}

// NewEngine returns an Engine backed by the given crypto provider. Passing
// nil uses xcrypto.NewProvider().
func NewEngine(crypto *xcrypto.Provider) *Engine {
	if crypto == nil {
		crypto = xcrypto.NewProvider()
	}

	return &Engine{crypto: crypto}
}

func (e *Engine) h1(datasetName string, ioc []byte) *xcrypto.Point {
	dst := []byte(dstHashToGroup + datasetName)

	return e.crypto.HashToGroup(ioc, dst)
}

// Blind computes P = H1(ioc) and returns a fresh blinding scalar r and the
// encoded blinded point B = r·P. The caller keeps r for Unblind.
func (e *Engine) Blind(datasetName string, ioc []byte) (r *xcrypto.Scalar, blinded []byte) {
	p := e.h1(datasetName, ioc)

	r = e.crypto.RandomScalar()
	b := e.crypto.ScalarMul(r, p)

	return r, e.crypto.PointEncode(b)
}

// Evaluate decodes the blinded point, computes E = k·B, and re-encodes it.
// Returns xcrypto.ErrInvalidEncoding if blindedEnc is not a valid point.
func (e *Engine) Evaluate(k *xcrypto.Scalar, blindedEnc []byte) (evaluatedEnc []byte, err error) {
	b, err := e.crypto.PointDecode(blindedEnc)
	if err != nil {
		return nil, fmt.Errorf("oprf: evaluate: %w", err)
	}

	ev := e.crypto.ScalarMul(k, b)

	return e.crypto.PointEncode(ev), nil
}

// Unblind decodes the evaluated point and computes Q = r^-1 · E, the
// unblinded value k·H1(ioc) that only a client who ran Blind for this
// exact ioc (and still holds r) can reconstruct.
func (e *Engine) Unblind(r *xcrypto.Scalar, evaluatedEnc []byte) (q *xcrypto.Point, err error) {
	ev, err := e.crypto.PointDecode(evaluatedEnc)
	if err != nil {
		return nil, fmt.Errorf("oprf: unblind: %w", err)
	}

	rInv := e.crypto.ScalarInvert(r)

	return e.crypto.ScalarMul(rInv, ev), nil
}

// Finalize computes PRF = SHA512(ioc ‖ encode(Q)), the 64-byte
// pseudorandom output identifying this (dataset, ioc) pair.
func (e *Engine) Finalize(ioc []byte, q *xcrypto.Point) [xcrypto.Sha512Length]byte {
	return e.crypto.Sha512(ioc, e.crypto.PointEncode(q))
}

// DeriveKey computes K = HKDF-SHA512(IKM = PRF ‖ encode(Q), salt = "",
// info = "meta|" ‖ datasetName, L = 32), the per-entry AEAD key. Binding
// both PRF and Q into IKM means possession of the PRF alone — visible in
// the change log — is insufficient to derive K.
func (e *Engine) DeriveKey(prf [xcrypto.Sha512Length]byte, q *xcrypto.Point, datasetName string) []byte {
	ikm := append(append([]byte{}, prf[:]...), e.crypto.PointEncode(q)...)
	info := []byte(infoPrefix + datasetName)

	return e.crypto.HkdfSha512(ikm, nil, info, 32)
}

// EvaluateAndDeriveKey is the server-side convenience used by the Dataset
// State Engine (spec §4.4) when it already holds k and the raw ioc (during
// sync/rekey, never during a client query): it computes Q = k·H1(ioc)
// directly, without the blind/unblind round trip, and returns both the PRF
// and the per-entry key in one call.
func (e *Engine) EvaluateAndDeriveKey(k *xcrypto.Scalar, datasetName string, ioc []byte) (prf [xcrypto.Sha512Length]byte, key []byte) {
	p := e.h1(datasetName, ioc)
	q := e.crypto.ScalarMul(k, p)
	prf = e.Finalize(ioc, q)
	key = e.DeriveKey(prf, q, datasetName)

	return prf, key
}
