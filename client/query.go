// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

// QueryStatus is the outcome of Query, per spec §4.5.
type QueryStatus int

const (
	// NoMatch means the PRF for the queried IOC is not in the active
	// index: the dataset, as currently mirrored, does not contain it.
	NoMatch QueryStatus = iota

	// Match means the PRF was found and its ciphertext decrypted.
	Match

	// DecryptFailed means the PRF was found but AEAD authentication
	// failed — a normal negative outcome per spec §7, never a fatal
	// error. In practice this should not happen for an honest server
	// and an uncorrupted mirror.
	DecryptFailed
)

// String implements fmt.Stringer.
func (s QueryStatus) String() string {
	switch s {
	case Match:
		return "Match"
	case DecryptFailed:
		return "DecryptFailed"
	default:
		return "NoMatch"
	}
}

// QueryResult is the outcome of Query.
type QueryResult struct {
	Status   QueryStatus
	Metadata []byte
}

// Query runs the full §4.5 query flow for ioc against dataset: best-effort
// sync, blind, evaluate (server round trip), unblind, finalize,
// active_index lookup, and decrypt.
func (c *Client) Query(ctx context.Context, dataset string, ioc []byte) (QueryResult, error) {
	if err := c.Sync(ctx, dataset); err != nil {
		_, readErr := c.storage.Read(c.server, dataset, mirrorLogFile)
		if _, localErr := c.loadMirror(dataset); readErr != nil || localErr != nil {
			return QueryResult{}, fmt.Errorf("client: sync failed and no local mirror to fall back on: %w", err)
		}
		c.log.Warn("sync failed, querying against stale local mirror", "dataset", dataset, "error", err)
	}

	if c.checkSuiteOnQuery {
		if err := c.CheckSuite(ctx, dataset); err != nil {
			return QueryResult{}, err
		}
	}

	r, blindedEnc := c.oprf.Blind(dataset, ioc)

	evaluatedHex, err := c.transport.oprfEvaluate(ctx, dataset, hex.EncodeToString(blindedEnc))
	if err != nil {
		return QueryResult{}, err
	}

	evaluatedEnc, err := hex.DecodeString(evaluatedHex)
	if err != nil {
		return QueryResult{}, xcrypto.ErrInvalidEncoding
	}

	q, err := c.oprf.Unblind(r, evaluatedEnc)
	if err != nil {
		return QueryResult{}, err
	}

	prf := c.oprf.Finalize(ioc, q)
	prfHex := hex.EncodeToString(prf[:])

	idx, err := c.readActiveIndex(dataset)
	if err != nil {
		return QueryResult{}, err
	}

	entry, ok := idx[prfHex]
	if !ok {
		return QueryResult{Status: NoMatch}, nil
	}

	nonce, err := hex.DecodeString(entry.nonceHex)
	if err != nil {
		return QueryResult{}, xcrypto.ErrInvalidEncoding
	}

	ciphertext, err := hex.DecodeString(entry.ctHex)
	if err != nil {
		return QueryResult{}, xcrypto.ErrInvalidEncoding
	}

	key := c.oprf.DeriveKey(prf, q, dataset)

	metadata, err := c.cipher.Open(key, ioc, nonce, ciphertext)
	if err != nil {
		if errors.Is(err, xcrypto.ErrAuthFail) {
			return QueryResult{Status: DecryptFailed}, nil
		}

		return QueryResult{}, err
	}

	if c.matchHistory {
		c.appendMatchHistory(dataset, ioc, prfHex)
	}

	return QueryResult{Status: Match, Metadata: metadata}, nil
}

func (c *Client) readActiveIndex(dataset string) (activeIndex, error) {
	raw, err := c.storage.Read(c.server, dataset, activeIndexFile)
	if err != nil {
		return activeIndex{}, nil //nolint:nilerr // no mirror yet means an empty active index, not a failure
	}

	return decodeActiveIndex(raw), nil
}

// appendMatchHistory records a successful Match as one CSV line, per
// SPEC_FULL.md item 5's matches.txt. Best-effort: a failure here must
// never turn a successful Query into an error.
func (c *Client) appendMatchHistory(dataset string, ioc []byte, prfHex string) {
	line := fmt.Sprintf("%s,%s,%s\n", time.Now().UTC().Format(time.RFC3339), hex.EncodeToString(ioc), prfHex)
	if err := c.storage.Append(c.server, dataset, matchHistoryFile, []byte(line)); err != nil {
		c.log.Warn("writing match history", "dataset", dataset, "error", err)
	}
}
