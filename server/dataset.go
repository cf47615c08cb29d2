// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/wire"
	"github.com/cloakmatch/cloakmatch/internal/xcrypto"
)

const (
	schemaFile = "schema.json"
	keyFile    = "private.key"
	indexFile  = "index.csv"
	logFile    = "changes.log"
)

// schema is the on-disk JSON form of cloakmatch.Config, field-compatible
// with the reference tooling's create_source output.
type schema struct {
	DataName           string `json:"data_name"`
	SupportedAlgorithm string `json:"supported_algorithm"`
	RekeyInterval      string `json:"rekey_interval"`
}

func schemaOf(cfg cloakmatch.Config) schema {
	return schema{
		DataName:           cfg.Name,
		SupportedAlgorithm: string(cfg.Algorithm),
		RekeyInterval:      cfg.RekeyInterval,
	}
}

func (s schema) config() cloakmatch.Config {
	return cloakmatch.Config{
		Name:          s.DataName,
		Algorithm:     cloakmatch.Algorithm(s.SupportedAlgorithm),
		RekeyInterval: s.RekeyInterval,
	}
}

// loadConfig reads and decodes a dataset's schema.json.
func loadConfig(storage Storage, name string) (cloakmatch.Config, error) {
	raw, err := storage.Read(name, schemaFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cloakmatch.Config{}, ErrUnknownDataset
		}

		return cloakmatch.Config{}, ErrCodeTransient.New("server: reading schema", err)
	}

	var s schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return cloakmatch.Config{}, ErrCodeInconsistent.New("server: decoding schema", err)
	}

	return s.config(), nil
}

func storeConfig(storage Storage, cfg cloakmatch.Config) error {
	raw, err := json.MarshalIndent(schemaOf(cfg), "", "  ")
	if err != nil {
		return fmt.Errorf("server: encoding schema: %w", err)
	}

	return storage.WriteAtomic(cfg.Name, schemaFile, raw, 0o600)
}

// loadKey reads and decodes a dataset's private scalar.
func loadKey(storage Storage, crypto *xcrypto.Provider, name string) (*xcrypto.Scalar, error) {
	raw, err := storage.Read(name, keyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnknownDataset
		}

		return nil, ErrCodeTransient.New("server: reading key", err)
	}

	k, err := crypto.ScalarDecode(raw)
	if err != nil {
		return nil, ErrCodeFatal.New("server: decoding private key", err)
	}

	return k, nil
}

func storeKey(storage Storage, crypto *xcrypto.Provider, name string, k *xcrypto.Scalar) error {
	return storage.WriteAtomic(name, keyFile, crypto.ScalarEncode(k), 0o600)
}

// indexEntry is one decoded index.csv row, with the raw ioc retained for
// diffing (never persisted as plaintext anywhere but index.csv itself,
// per spec §3's ownership rule that the server never stores raw metadata
// plaintext — the ioc itself is not metadata and is, by design, the one
// thing the server must keep in the clear to rebuild PRFs on rekey).
type indexEntry struct {
	ioc      string
	prfHex   string
	nonceHex string
	ctHex    string
}

func (e indexEntry) encMetaHex() string {
	return e.nonceHex + ":" + e.ctHex
}

func loadIndex(storage Storage, name string) ([]indexEntry, error) {
	raw, err := storage.Read(name, indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, ErrCodeTransient.New("server: reading index", err)
	}

	rows, err := wire.ReadIndex(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrCodeInconsistent.New("server: parsing index", err)
	}

	entries := make([]indexEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, indexEntry{ioc: r.Ioc, prfHex: r.PrfHex, nonceHex: r.NonceHex, ctHex: r.CtHex})
	}

	return entries, nil
}

// sortEntries sorts entries by ioc in place, giving repeated syncs of an
// unchanged source a deterministic diff ordering and therefore identical
// chain hashes, per spec §4.4.
func sortEntries(entries []indexEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ioc < entries[j].ioc })
}

func encodeIndex(entries []indexEntry) []byte {
	sorted := make([]indexEntry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	rows := make([]wire.IndexRow, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, wire.IndexRow{Ioc: e.ioc, PrfHex: e.prfHex, NonceHex: e.nonceHex, CtHex: e.ctHex})
	}

	var buf bytes.Buffer
	_ = wire.WriteIndex(&buf, rows)

	return buf.Bytes()
}
