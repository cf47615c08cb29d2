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
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/chain"
	"github.com/cloakmatch/cloakmatch/internal/metacipher"
	"github.com/cloakmatch/cloakmatch/internal/oprf"
	"github.com/cloakmatch/cloakmatch/internal/wire"
	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

// Error aliases from the root package, for callers that only import client.
var (
	ErrUnknownDataset  = cloakmatch.ErrUnknownDataset
	ErrInconsistent    = cloakmatch.ErrInconsistent
	ErrInvalidEncoding = cloakmatch.ErrInvalidEncoding
)

const (
	mirrorLogFile    = "changes.log"
	activeIndexFile  = "active_index"
	matchHistoryFile = "matches.txt"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger overrides the Client's logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithHTTPClient overrides the *http.Client used to reach the server.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.transport.http = h }
}

// WithCryptoProvider overrides the Client's xcrypto.Provider.
// xcrypto.Provider is a concrete type that always draws randomness from
// the system CSPRNG; it has no hook for a deterministic RNG.
func WithCryptoProvider(p *xcrypto.Provider) Option {
	return func(c *Client) { c.crypto = p }
}

// WithMatchHistory enables the optional append-only match history of
// spec §6 ("optional append-only match history"), resolved from
// client/cli.py's matches.txt in SPEC_FULL.md item 5.
func WithMatchHistory(enabled bool) Option {
	return func(c *Client) { c.matchHistory = enabled }
}

// WithSuiteCheck controls whether Query calls CheckSuite before the OPRF
// round trip. Enabled by default, matching client/cli.py's behavior
// (SPEC_FULL.md item 6); disable it to skip the extra round trip.
func WithSuiteCheck(enabled bool) Option {
	return func(c *Client) { c.checkSuiteOnQuery = enabled }
}

// AuditWriter receives the raw, unparsed body of every /sync_data
// response before it is merged into the local mirror, mirroring
// client/cli.py's `<full|delta>-<timestamp>.log` audit trail
// (SPEC_FULL.md item 7). On-disk path conventions are out of scope here
// — callers decide where, or whether, to persist what they receive.
type AuditWriter func(server, dataset, mode string) io.Writer

// WithAuditWriter installs w as the AuditWriter hook.
func WithAuditWriter(w AuditWriter) Option {
	return func(c *Client) { c.audit = w }
}

// Client is the Client Mirror Engine of spec §4.5. server is a short
// label identifying the remote Dataset State Engine, used only to
// namespace local storage — never transmitted.
type Client struct {
	server    string
	transport *transport
	storage   Storage
	crypto    *xcrypto.Provider
	oprf      *oprf.Engine
	cipher    *metacipher.Cipher
	log       *slog.Logger

	matchHistory      bool
	checkSuiteOnQuery bool
	audit             AuditWriter

	mu sync.Mutex
}

// NewClient returns a Client labeled server, talking to baseURL, and
// persisting its mirror through storage.
func NewClient(server, baseURL string, storage Storage, opts ...Option) *Client {
	c := &Client{
		server:            server,
		transport:         newTransport(baseURL, nil),
		storage:           storage,
		crypto:            xcrypto.NewProvider(),
		log:               slog.Default(),
		checkSuiteOnQuery: true,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.oprf = oprf.NewEngine(c.crypto)
	c.cipher = metacipher.New(c.crypto)

	return c
}

// loadMirror reads and verifies the local changes.log mirror. A missing
// file is treated as an empty log (the Empty state of spec §4.5's state
// machine), not an error.
func (c *Client) loadMirror(dataset string) ([]wire.ChangeLine, error) {
	raw, err := c.storage.Read(c.server, dataset, mirrorLogFile)
	if err != nil {
		return nil, nil //nolint:nilerr // missing mirror is the Empty state, not a failure
	}

	log, err := chain.Parse(raw)
	if err != nil {
		return nil, err
	}

	return log.Lines, nil
}

// Sync fetches changes since the local mirror's tip and applies them. If
// the server reports mode "full", the local log and active_index are
// replaced wholesale — the server-truncation-detection transition of
// spec §4.5's state machine (e.g. after a remote rekey).
func (c *Client) Sync(ctx context.Context, dataset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	localLines, err := c.loadMirror(dataset)
	if err != nil {
		c.log.Warn("local mirror inconsistent, forcing full resync", "dataset", dataset, "error", err)
		localLines = nil
	}

	tip := tipOf(localLines)

	remoteLines, mode, raw, err := c.transport.syncData(ctx, dataset, tip)
	if err != nil {
		return err
	}

	if c.audit != nil {
		if w := c.audit(c.server, dataset, mode); w != nil {
			_, _ = w.Write(raw) //nolint:errcheck // best-effort audit sink
		}
	}

	var merged []wire.ChangeLine

	var idx activeIndex

	switch mode {
	case "full":
		merged = remoteLines
		idx = rebuildActiveIndex(merged)
	default:
		merged = append(append([]wire.ChangeLine{}, localLines...), remoteLines...)

		existing, err := c.storage.Read(c.server, dataset, activeIndexFile)
		if err != nil {
			idx = rebuildActiveIndex(merged)
		} else {
			idx = decodeActiveIndex(existing)
			idx.applyDelta(remoteLines)
		}
	}

	if err := chain.Verify(merged); err != nil {
		c.log.Warn("mirror chain inconsistent after merge, discarding and forcing full resync next time", "dataset", dataset)

		if werr := c.storage.WriteAtomic(c.server, dataset, mirrorLogFile, nil); werr != nil {
			c.log.Warn("discarding local mirror", "dataset", dataset, "error", werr)
		}

		return err
	}

	if err := c.storage.WriteAtomic(c.server, dataset, mirrorLogFile, (&chain.Log{Lines: merged}).Encode()); err != nil {
		return cloakmatch.ErrCodeTransient.New("client: writing mirror log", err)
	}

	if err := c.storage.WriteAtomic(c.server, dataset, activeIndexFile, encodeActiveIndex(idx)); err != nil {
		return cloakmatch.ErrCodeTransient.New("client: writing active index", err)
	}

	c.log.Info("synced", "dataset", dataset, "mode", mode, "new_events", len(remoteLines))

	return nil
}

// Reset discards all local state for dataset and performs a full sync.
func (c *Client) Reset(ctx context.Context, dataset string) error {
	if err := c.Purge(dataset); err != nil {
		return err
	}

	return c.Sync(ctx, dataset)
}

// Purge deletes local state for dataset without contacting the server.
func (c *Client) Purge(dataset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.RemoveAll(c.server, dataset); err != nil {
		return cloakmatch.ErrCodeTransient.New("client: purging local state", err)
	}

	return nil
}

// CheckSuite fetches /encryption_type for dataset and fails with an
// ErrCodeConfiguration error if the server advertises anything other than the
// fixed Ristretto255/XChaCha20-Poly1305 suite this module implements —
// SPEC_FULL.md item 6.
func (c *Client) CheckSuite(ctx context.Context, dataset string) error {
	s, err := c.transport.encryptionType(ctx, dataset)
	if err != nil {
		return err
	}

	const wantSuite, wantEnc = "oprf-ristretto255-sha512", "xchacha20poly1305-ietf"

	if s.Suite != wantSuite || s.Encryption != wantEnc {
		return cloakmatch.ErrCodeConfiguration.New(
			"server advertises unsupported suite " + s.Suite + "/" + s.Encryption)
	}

	return nil
}

func tipOf(lines []wire.ChangeLine) string {
	if len(lines) == 0 {
		return ""
	}

	return lines[len(lines)-1].ChainHash
}
