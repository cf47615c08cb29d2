// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package wire_test

import (
	"bytes"
	"testing"

	"github.com/cloakmatch/cloakmatch/internal/wire"
)

func TestChangeLineFormatParseRoundTrip(t *testing.T) {
	line := wire.ChangeLine{
		Event:      wire.Added,
		PrfHex:     "ab",
		EncMetaHex: "cd:ef",
		ChainHash:  "01",
	}

	parsed, err := wire.ParseChangeLine(wire.FormatChangeLine(line))
	if err != nil {
		t.Fatalf("ParseChangeLine: %v", err)
	}

	if parsed != line {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, line)
	}
}

func TestParseChangeLineRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"ADDED ab cd:ef",
		"MAYBE ab cd:ef 01",
		"ADDED ab cd:ef 01 extra",
	}

	for _, tt := range tests {
		if _, err := wire.ParseChangeLine(tt); err == nil {
			t.Errorf("ParseChangeLine(%q): expected an error", tt)
		}
	}
}

func TestEncMetaSplitRoundTrip(t *testing.T) {
	nonce := []byte{1, 2, 3}
	ct := []byte{4, 5, 6, 7}

	gotNonce, gotCt, err := wire.SplitEncMeta(wire.EncMeta(nonce, ct))
	if err != nil {
		t.Fatalf("SplitEncMeta: %v", err)
	}

	if !bytes.Equal(gotNonce, nonce) || !bytes.Equal(gotCt, ct) {
		t.Fatalf("got nonce=%x ct=%x, want nonce=%x ct=%x", gotNonce, gotCt, nonce, ct)
	}
}

func TestSplitEncMetaRejectsUnknown(t *testing.T) {
	if _, _, err := wire.SplitEncMeta(wire.Unknown); err == nil {
		t.Fatal("expected an error for the Unknown placeholder")
	}
}

// TestIndexCSVQuotesCommaContainingIOC documents the RFC 4180 quoting
// resolution of spec.md §9's comma-in-IOC Open Question.
func TestIndexCSVQuotesCommaContainingIOC(t *testing.T) {
	rows := []wire.IndexRow{
		{Ioc: "a,b.example.com", PrfHex: "ab", NonceHex: "cd", CtHex: "ef"},
		{Ioc: "plain.example.com", PrfHex: "12", NonceHex: "34", CtHex: "56"},
	}

	var buf bytes.Buffer
	if err := wire.WriteIndex(&buf, rows); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}

	got, err := wire.ReadIndex(&buf)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}

	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}

	for i, r := range rows {
		if got[i] != r {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], r)
		}
	}
}
