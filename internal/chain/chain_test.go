// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package chain_test

import (
	"testing"

	"github.com/cloakmatch/cloakmatch/internal/chain"
	"github.com/cloakmatch/cloakmatch/internal/wire"
)

func TestEmptyLogTipIsSeed(t *testing.T) {
	l := &chain.Log{}
	if l.Tip() != chain.SeedHex {
		t.Fatalf("Tip() of an empty log = %q, want SeedHex", l.Tip())
	}
}

func TestAppendEncodeParseRoundTrip(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")
	l.Append(wire.Added, "dd", "ee:ff")
	l.Append(wire.Removed, "aa", "bb:cc")

	parsed, err := chain.Parse(l.Encode())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(parsed.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(parsed.Lines))
	}

	if parsed.Tip() != l.Tip() {
		t.Fatalf("parsed tip %q != original tip %q", parsed.Tip(), l.Tip())
	}
}

// TestParseDetectsTamper covers spec §8's tamper-detection property: a
// single flipped character in any field invalidates every later link.
func TestParseDetectsTamper(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")
	l.Append(wire.Added, "dd", "ee:ff")

	raw := l.Encode()
	tampered := append([]byte{}, raw...)
	tampered[0] = 'Z' // corrupt the first line's event field

	if _, err := chain.Parse(tampered); err == nil {
		t.Fatal("expected Parse to reject a tampered log")
	}
}

func TestSinceEmptyOrSeedHashReturnsFull(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")

	events, mode := l.Since("")
	if mode != "full" || len(events) != 1 {
		t.Fatalf("Since(\"\"): got mode=%q events=%d, want full/1", mode, len(events))
	}

	events, mode = l.Since(chain.SeedHex)
	if mode != "full" || len(events) != 1 {
		t.Fatalf("Since(SeedHex): got mode=%q events=%d, want full/1", mode, len(events))
	}
}

// TestSinceUnknownHashReturnsFull covers the server-truncation-detection
// case of spec §4.5: a hash the log no longer contains (e.g. after a
// rekey truncated it) falls back to a full resync.
func TestSinceUnknownHashReturnsFull(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")

	_, mode := l.Since("0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000")
	if mode != "full" {
		t.Fatalf("Since(unknown hash): got mode=%q, want full", mode)
	}
}

// TestSinceKnownHashReturnsDelta covers the normal incremental-sync path.
func TestSinceKnownHashReturnsDelta(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")
	tip := l.Tip()
	l.Append(wire.Added, "dd", "ee:ff")

	events, mode := l.Since(tip)
	if mode != "delta" || len(events) != 1 || events[0].PrfHex != "dd" {
		t.Fatalf("Since(tip): got mode=%q events=%+v, want delta/[dd]", mode, events)
	}
}

// TestVerifyAgreesWithParse checks that the slice-level Verify and the
// byte-level Parse agree on a merged local+delta sequence, the property
// client.Client.Sync relies on before committing a merge.
func TestVerifyAgreesWithParse(t *testing.T) {
	l := &chain.Log{}
	l.Append(wire.Added, "aa", "bb:cc")
	l.Append(wire.Added, "dd", "ee:ff")

	if err := chain.Verify(l.Lines); err != nil {
		t.Fatalf("Verify: unexpected error %v", err)
	}

	if _, err := chain.Parse(l.Encode()); err != nil {
		t.Fatalf("Parse: unexpected error %v", err)
	}

	tampered := append([]wire.ChangeLine{}, l.Lines...)
	tampered[0].PrfHex = "ff"

	if err := chain.Verify(tampered); err == nil {
		t.Fatal("Verify: expected an error for a tampered line")
	}

	if _, err := chain.Parse((&chain.Log{Lines: tampered}).Encode()); err == nil {
		t.Fatal("Parse: expected an error for a tampered line")
	}
}
