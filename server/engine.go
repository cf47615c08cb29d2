// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package server

import (
	"encoding/hex"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/metacipher"
	"github.com/cloakmatch/cloakmatch/internal/oprf"
	"github.com/cloakmatch/cloakmatch/internal/wire"
	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

// Error aliases from the root package, for callers that only import server.
var (
	ErrUnknownDataset  = cloakmatch.ErrUnknownDataset
	ErrAlreadyExists   = cloakmatch.ErrAlreadyExists
	ErrInconsistent    = cloakmatch.ErrInconsistent
	ErrInvalidEncoding = cloakmatch.ErrInvalidEncoding

	ErrCodeUnknownDataset  = cloakmatch.ErrCodeUnknownDataset
	ErrCodeAlreadyExists   = cloakmatch.ErrCodeAlreadyExists
	ErrCodeInconsistent    = cloakmatch.ErrCodeInconsistent
	ErrCodeInvalidEncoding = cloakmatch.ErrCodeInvalidEncoding
	ErrCodeTransient       = cloakmatch.ErrCodeTransient
	ErrCodeFatal           = cloakmatch.ErrCodeFatal
	ErrCodeConfiguration   = cloakmatch.ErrCodeConfiguration
)

// Source is one (ioc, metadata) pair as produced by the source-file
// parser (explicitly out of scope, spec §1); SyncFromSource and Rekey
// consume a sequence of these using a Go range-over-func iterator rather
// than a bespoke iterator interface.
type Source = iter.Seq2[string, []byte]

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger overrides the Engine's logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithCryptoProvider overrides the Engine's xcrypto.Provider.
// xcrypto.Provider is a concrete type that always draws randomness from
// the system CSPRNG; it has no hook for a deterministic RNG.
func WithCryptoProvider(p *xcrypto.Provider) Option {
	return func(e *Engine) { e.crypto = p }
}

// Engine is the Dataset State Engine of spec §4.4. One Engine serves any
// number of datasets concurrently; per-dataset locking follows the
// discipline of spec §5 (writers exclusive, readers and OPRF evaluation
// shared).
type Engine struct {
	storage Storage
	crypto  *xcrypto.Provider
	oprf    *oprf.Engine
	cipher  *metacipher.Cipher
	log     *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// NewEngine returns an Engine backed by storage.
func NewEngine(storage Storage, opts ...Option) *Engine {
	e := &Engine{
		storage: storage,
		crypto:  xcrypto.NewProvider(),
		log:     slog.Default(),
		locks:   make(map[string]*sync.RWMutex),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.oprf = oprf.NewEngine(e.crypto)
	e.cipher = metacipher.New(e.crypto)

	return e
}

func (e *Engine) lockFor(name string) *sync.RWMutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	l, ok := e.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		e.locks[name] = l
	}

	return l
}

// CreateDataset initializes a dataset's schema and generates its private
// key. Fails with ErrAlreadyExists if the dataset's schema already
// exists.
func (e *Engine) CreateDataset(cfg cloakmatch.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	lock := e.lockFor(cfg.Name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.storage.Read(cfg.Name, schemaFile); err == nil {
		return ErrAlreadyExists
	}

	k := e.crypto.RandomScalar()

	if err := storeKey(e.storage, e.crypto, cfg.Name, k); err != nil {
		return err
	}

	if err := storeConfig(e.storage, cfg); err != nil {
		return err
	}

	e.log.Info("dataset created", "dataset", cfg.Name, "algorithm", cfg.Algorithm)

	return nil
}

// RemoveDataset deletes a dataset's schema and private key only. Data
// under the dataset's index/log is deliberately left behind — the
// documented asymmetry of the reference tooling's `--remove`, per spec
// §4.4 and SPEC_FULL.md item 1.
func (e *Engine) RemoveDataset(name string) error {
	lock := e.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if err := e.storage.Remove(name, schemaFile); err != nil {
		return ErrCodeTransient.New("server: removing schema", err)
	}

	if err := e.storage.Remove(name, keyFile); err != nil {
		return ErrCodeTransient.New("server: removing key", err)
	}

	e.log.Info("dataset schema and key removed", "dataset", name)

	return nil
}

// EvaluateOPRF performs the server half of one OPRF query: E = k·B. The
// caller holds only a shared lock — this is the "readers and OPRF
// evaluation take shared" case of spec §5, since it neither reads nor
// writes the index or log.
func (e *Engine) EvaluateOPRF(name string, blinded []byte) ([]byte, error) {
	lock := e.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	cfg, err := loadConfig(e.storage, name)
	if err != nil {
		return nil, err
	}

	if err := cfg.CheckImplemented(); err != nil {
		return nil, err
	}

	k, err := loadKey(e.storage, e.crypto, name)
	if err != nil {
		return nil, err
	}

	evaluated, err := e.oprf.Evaluate(k, blinded)
	if err != nil {
		if errors.Is(err, xcrypto.ErrInvalidEncoding) {
			return nil, ErrCodeInvalidEncoding.New("server: decoding blinded point", err)
		}

		return nil, err
	}

	return evaluated, nil
}

// ReadChanges returns the events since sinceHash (hex), and whether the
// result is a "full" or "delta" view, per spec §4.4.
func (e *Engine) ReadChanges(name, sinceHash string) ([]wire.ChangeLine, string, error) {
	lock := e.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	if !e.storage.Exists(name) {
		return nil, "", ErrUnknownDataset
	}

	raw, err := e.storage.Read(name, logFile)
	if err != nil {
		raw = nil
	}

	cl, err := parseChangeLog(raw)
	if err != nil {
		return nil, "", err
	}

	events, mode := cl.Since(sinceHash)

	return events, mode, nil
}

// SyncFromSource recomputes the target index from source, diffs it
// against the current index, and appends the diff to changes.log,
// writing the new index and log atomically as a pair (spec §4.4).
// Re-running with an unchanged source appends zero events.
func (e *Engine) SyncFromSource(name string, source Source) error {
	cfg, err := loadConfig(e.storage, name)
	if err != nil {
		return err
	}

	if err := cfg.CheckImplemented(); err != nil {
		return err
	}

	lock := e.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	k, err := loadKey(e.storage, e.crypto, name)
	if err != nil {
		return err
	}

	oldEntries, err := loadIndex(e.storage, name)
	if err != nil {
		return err
	}

	newEntries, err := e.computeEntries(cfg.Name, k, source, oldEntries)
	if err != nil {
		return err
	}

	added, removed := diff(oldEntries, newEntries)

	raw, err := e.storage.Read(name, logFile)
	if err != nil {
		raw = nil
	}

	cl, err := parseChangeLog(raw)
	if err != nil {
		return err
	}

	for _, a := range added {
		cl.Append(wire.Added, a.prfHex, a.encMetaHex())
	}

	for _, r := range removed {
		cl.Append(wire.Removed, r.prfHex, r.encMetaHex())
	}

	if err := writeAtomicPair(e.storage, name, indexFile, encodeIndex(newEntries), logFile, cl.Encode()); err != nil {
		return err
	}

	e.log.Info("dataset synced", "dataset", name, "added", len(added), "removed", len(removed))

	return nil
}

// Rekey generates a fresh private key, recomputes the entire index under
// it, and truncates changes.log to a fresh ADDED-only sequence. Every
// ciphertext encrypted under the old key becomes permanently
// undecryptable — intentional, per spec §4.4.
func (e *Engine) Rekey(name string, source Source) error {
	cfg, err := loadConfig(e.storage, name)
	if err != nil {
		return err
	}

	if err := cfg.CheckImplemented(); err != nil {
		return err
	}

	lock := e.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	k := e.crypto.RandomScalar()

	// A rekey intentionally invalidates every ciphertext under the old
	// key, so every entry is resealed fresh regardless of what the prior
	// index held — pass no old entries for computeEntries to carry forward.
	entries, err := e.computeEntries(cfg.Name, k, source, nil)
	if err != nil {
		return err
	}

	cl := &changeLog{}
	for _, entry := range entries {
		cl.Append(wire.Added, entry.prfHex, entry.encMetaHex())
	}

	if err := storeKey(e.storage, e.crypto, name, k); err != nil {
		return err
	}

	if err := writeAtomicPair(e.storage, name, indexFile, encodeIndex(entries), logFile, cl.Encode()); err != nil {
		return err
	}

	e.log.Info("dataset rekeyed", "dataset", name, "entries", len(entries))

	return nil
}

// computeEntries evaluates the OPRF and seals metadata for every source
// tuple not already present in oldEntries, producing the target index
// state. An ioc already present in oldEntries is carried forward
// unchanged rather than resealed: the nonce in enc_meta is random per
// §4.3, so resealing an unchanged ioc on every sync would change its
// enc_meta and make diff re-ADD it, in violation of §4.4's idempotent
// resync property. This mirrors the Python reference's data_sync.py,
// which only runs evaluate_and_encrypt_metadata over to_add/to_upgrade
// and carries every other entry forward from existing_map. Pass a nil
// oldEntries to force every ioc through the fresh-reseal path, which
// Rekey relies on since it must invalidate every prior ciphertext.
func (e *Engine) computeEntries(dataset string, k *xcrypto.Scalar, source Source, oldEntries []indexEntry) ([]indexEntry, error) {
	oldByIOC := make(map[string]indexEntry, len(oldEntries))
	for _, old := range oldEntries {
		oldByIOC[old.ioc] = old
	}

	var entries []indexEntry

	for ioc, metadata := range source {
		if old, ok := oldByIOC[ioc]; ok {
			entries = append(entries, old)
			continue
		}

		prf, key := e.oprf.EvaluateAndDeriveKey(k, dataset, []byte(ioc))

		nonce, ciphertext, err := e.cipher.Seal(key, []byte(ioc), metadata)
		if err != nil {
			return nil, ErrCodeFatal.New("server: sealing metadata", err)
		}

		entries = append(entries, indexEntry{
			ioc:      ioc,
			prfHex:   hex.EncodeToString(prf[:]),
			nonceHex: hex.EncodeToString(nonce),
			ctHex:    hex.EncodeToString(ciphertext),
		})
	}

	return entries, nil
}

// diff computes the ADDED and REMOVED sets between old and new index
// states, per spec §4.4's diffing algorithm. Both outputs are sorted by
// ioc for deterministic chain-hash ordering across repeated syncs of the
// same source. Every REMOVED entry carries the OLD PRF and enc_meta from
// oldEntries — the invariant resolved in SPEC_FULL.md item 3, never "-".
func diff(oldEntries, newEntries []indexEntry) (added, removed []indexEntry) {
	oldByIOC := make(map[string]indexEntry, len(oldEntries))
	for _, e := range oldEntries {
		oldByIOC[e.ioc] = e
	}

	newByIOC := make(map[string]indexEntry, len(newEntries))
	for _, e := range newEntries {
		newByIOC[e.ioc] = e
	}

	for _, n := range newEntries {
		o, ok := oldByIOC[n.ioc]
		if !ok || o.prfHex != n.prfHex || o.encMetaHex() != n.encMetaHex() {
			added = append(added, n)
		}
	}

	for _, o := range oldEntries {
		if _, ok := newByIOC[o.ioc]; !ok {
			removed = append(removed, o)
		}
	}

	sortEntries(added)
	sortEntries(removed)

	return added, removed
}
