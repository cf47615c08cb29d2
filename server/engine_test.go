// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package server_test

import (
	"errors"
	"maps"
	"testing"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/server"
)

func newEngine(t *testing.T) *server.Engine {
	t.Helper()

	storage, err := server.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	return server.NewEngine(storage)
}

func source(entries map[string][]byte) server.Source {
	return maps.All(entries)
}

func TestCreateDatasetRejectsDuplicate(t *testing.T) {
	e := newEngine(t)
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.Classic, RekeyInterval: "30d"}

	if err := e.CreateDataset(cfg); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	if err := e.CreateDataset(cfg); !errors.Is(err, server.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on the second CreateDataset, got %v", err)
	}
}

func TestSyncFromSourceIsIdempotent(t *testing.T) {
	e := newEngine(t)
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.Classic, RekeyInterval: "30d"}

	if err := e.CreateDataset(cfg); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	entries := map[string][]byte{
		"evil.example.com": []byte(`{"confidence":90}`),
		"bad.example.net":  []byte(`{"confidence":50}`),
	}

	if err := e.SyncFromSource(cfg.Name, source(entries)); err != nil {
		t.Fatalf("first SyncFromSource: %v", err)
	}

	events, _, err := e.ReadChanges(cfg.Name, "")
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events after first sync, want 2", len(events))
	}

	// Re-running with an unchanged source must append zero events (spec §4.4).
	if err := e.SyncFromSource(cfg.Name, source(entries)); err != nil {
		t.Fatalf("second SyncFromSource: %v", err)
	}

	events, _, err = e.ReadChanges(cfg.Name, "")
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events after an idempotent resync, want 2", len(events))
	}
}

func TestSyncFromSourceDiffsAddedAndRemoved(t *testing.T) {
	e := newEngine(t)
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.Classic, RekeyInterval: "30d"}

	if err := e.CreateDataset(cfg); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	if err := e.SyncFromSource(cfg.Name, source(map[string][]byte{
		"evil.example.com": []byte("m1"),
		"bad.example.net":  []byte("m2"),
	})); err != nil {
		t.Fatalf("first SyncFromSource: %v", err)
	}

	tip, _, err := e.ReadChanges(cfg.Name, "")
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}

	sinceHash := tip[len(tip)-1].ChainHash

	if err := e.SyncFromSource(cfg.Name, source(map[string][]byte{
		"evil.example.com": []byte("m1"),
		"new.example.org":  []byte("m3"),
	})); err != nil {
		t.Fatalf("second SyncFromSource: %v", err)
	}

	delta, mode, err := e.ReadChanges(cfg.Name, sinceHash)
	if err != nil {
		t.Fatalf("ReadChanges since tip: %v", err)
	}

	if mode != "delta" {
		t.Fatalf("mode = %q, want delta", mode)
	}

	if len(delta) != 2 {
		t.Fatalf("got %d delta events, want 2 (one ADDED, one REMOVED)", len(delta))
	}
}

func TestEvaluateOPRFUnknownDataset(t *testing.T) {
	e := newEngine(t)

	if _, err := e.EvaluateOPRF("nope", []byte("anything")); !errors.Is(err, server.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestRekeyInvalidatesPreviousPRFs(t *testing.T) {
	e := newEngine(t)
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.Classic, RekeyInterval: "30d"}

	if err := e.CreateDataset(cfg); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	entries := map[string][]byte{"evil.example.com": []byte("m1")}

	if err := e.SyncFromSource(cfg.Name, source(entries)); err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}

	before, _, err := e.ReadChanges(cfg.Name, "")
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}

	if err := e.Rekey(cfg.Name, source(entries)); err != nil {
		t.Fatalf("Rekey: %v", err)
	}

	after, mode, err := e.ReadChanges(cfg.Name, before[len(before)-1].ChainHash)
	if err != nil {
		t.Fatalf("ReadChanges after rekey: %v", err)
	}

	// The old tip no longer appears in the truncated post-rekey log, so
	// this must fall back to a full resync (spec §4.5's
	// server-truncation-detection transition).
	if mode != "full" {
		t.Fatalf("mode after rekey = %q, want full", mode)
	}

	if len(after) != 1 || after[0].PrfHex == before[0].PrfHex {
		t.Fatal("rekey did not produce a fresh PRF for the same ioc")
	}
}

func TestRemoveDatasetLeavesIndexAndLogBehind(t *testing.T) {
	e := newEngine(t)
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.Classic, RekeyInterval: "30d"}

	if err := e.CreateDataset(cfg); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	if err := e.SyncFromSource(cfg.Name, source(map[string][]byte{"evil.example.com": []byte("m1")})); err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}

	if err := e.RemoveDataset(cfg.Name); err != nil {
		t.Fatalf("RemoveDataset: %v", err)
	}

	// EvaluateOPRF needs the schema and key, both removed.
	if _, err := e.EvaluateOPRF(cfg.Name, []byte("anything")); !errors.Is(err, server.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset after removal, got %v", err)
	}

	// ReadChanges only needs the log, which RemoveDataset leaves behind.
	events, _, err := e.ReadChanges(cfg.Name, "")
	if err != nil {
		t.Fatalf("ReadChanges after removal: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events after removal, want the 1 event left behind", len(events))
	}
}
