// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package metacipher implements the Metadata Cipher of spec §4.3: AEAD
// wrapping and unwrapping of per-entry metadata, bound to the IOC via AAD.
package metacipher

import (
	"fmt"

	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

// Cipher wraps the crypto provider's AEAD primitives with the IOC-bound
// AAD discipline spec §4.3 requires.
type Cipher struct {
	crypto *xcrypto.Provider
}

// New returns a Cipher backed by the given crypto provider. Passing nil
// uses xcrypto.NewProvider().
func New(crypto *xcrypto.Provider) *Cipher {
	if crypto == nil {
		crypto = xcrypto.NewProvider()
	}

	return &Cipher{crypto: crypto}
}

// Seal encrypts metadata under key with a fresh random nonce, binding ioc
// as AAD so a ciphertext can never be decrypted under a different IOC's
// AAD even if the wrong key were somehow guessed.
func (c *Cipher) Seal(key, ioc, metadata []byte) (nonce, ciphertext []byte, err error) {
	nonce, err = c.crypto.RandomNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("metacipher: seal: %w", err)
	}

	ciphertext, err = c.crypto.AeadSeal(key, nonce, ioc, metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("metacipher: seal: %w", err)
	}

	return nonce, ciphertext, nil
}

// Open decrypts and authenticates ciphertext under key, nonce, and ioc as
// AAD. Returns xcrypto.ErrAuthFail on authentication failure — a normal
// negative outcome, surfaced by callers as a query DecryptFailed result,
// never as a fatal error.
func (c *Cipher) Open(key, ioc, nonce, ciphertext []byte) ([]byte, error) {
	plaintext, err := c.crypto.AeadOpen(key, nonce, ioc, ciphertext)
	if err != nil {
		return nil, err
	}

	return plaintext, nil
}
