// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package chain implements the append-only hash chain that backs
// changes.log on both sides of the protocol (spec §3, §4.4, §4.5): the
// server extends it on every sync/rekey, and the client verifies it on
// every replay. Keeping both sides on one implementation is what makes
// "replaying changes.log reproduces every chain_hash field exactly" (spec
// §8 property 5) a property of the code, not a coincidence between two
// independent implementations.
package chain

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/wire"
)

// Seed is chain_hash_0, resolved from
// original_source/server/data_sync.py as 64 zero bytes rather than
// SHA512(empty) — spec §9's first Open Question.
var Seed = [sha512.Size]byte{}

// SeedHex is the hex encoding of Seed, the tip of an empty log.
var SeedHex = hex.EncodeToString(Seed[:])

// link computes chain_hash_i from the previous chain hash and the event
// about to be appended, matching data_sync.py's
// `_append_change_events`: SHA512(prev ‖ "|" ‖ EVENT ‖ "|" ‖ prf_hex ‖ "|" ‖
// enc_meta_hex), operating on hex-encoded fields, pipe-delimited.
func link(prev [sha512.Size]byte, event wire.Event, prfHex, encMetaHex string) [sha512.Size]byte {
	h := sha512.New()
	h.Write(prev[:])
	h.Write([]byte("|"))
	h.Write([]byte(event))
	h.Write([]byte("|"))
	h.Write([]byte(prfHex))
	h.Write([]byte("|"))
	h.Write([]byte(encMetaHex))

	var out [sha512.Size]byte
	copy(out[:], h.Sum(nil))

	return out
}

func decodeHash(h string) ([sha512.Size]byte, error) {
	var out [sha512.Size]byte

	b, err := hex.DecodeString(h)
	if err != nil || len(b) != sha512.Size {
		return out, cloakmatch.ErrInvalidEncoding
	}

	copy(out[:], b)

	return out, nil
}

// Log is the decoded, in-memory form of a changes.log, shared by the
// server (which extends it) and the client (which only replays it).
type Log struct {
	Lines []wire.ChangeLine
}

// Parse decodes raw changes.log bytes into a Log, verifying every link in
// the chain as it goes. Returns an ErrCodeInconsistent error on the first
// malformed line or mismatch, per spec §7 and §8 property 5.
func Parse(raw []byte) (*Log, error) {
	l := &Log{}
	prev := Seed

	text := strings.TrimRight(string(raw), "\n")
	if text == "" {
		return l, nil
	}

	for _, line := range strings.Split(text, "\n") {
		parsed, err := wire.ParseChangeLine(line)
		if err != nil {
			return nil, cloakmatch.ErrCodeInconsistent.New("chain: parsing change log", err)
		}

		want := link(prev, parsed.Event, parsed.PrfHex, parsed.EncMetaHex)
		if hex.EncodeToString(want[:]) != parsed.ChainHash {
			return nil, cloakmatch.ErrCodeInconsistent.New("chain: chain hash mismatch")
		}

		l.Lines = append(l.Lines, parsed)

		prev, err = decodeHash(parsed.ChainHash)
		if err != nil {
			return nil, cloakmatch.ErrCodeInconsistent.New("chain: decoding chain hash", err)
		}
	}

	return l, nil
}

// Verify checks that lines forms a valid chain from Seed, without going
// through the text encoding. Used by the client to check a merged
// local-plus-delta line set before committing it to the mirror; on a
// Verify failure the client discards its mirror so that its next sync is a
// full one. A tampered on-disk mirror is caught earlier, by Parse, when the
// client loads it.
func Verify(lines []wire.ChangeLine) error {
	prev := Seed

	for _, l := range lines {
		want := link(prev, l.Event, l.PrfHex, l.EncMetaHex)
		if hex.EncodeToString(want[:]) != l.ChainHash {
			return cloakmatch.ErrCodeInconsistent.New("chain: chain hash mismatch")
		}

		var err error

		prev, err = decodeHash(l.ChainHash)
		if err != nil {
			return cloakmatch.ErrCodeInconsistent.New("chain: decoding chain hash", err)
		}
	}

	return nil
}

// Tip returns the hex chain hash of the last event, or SeedHex if empty.
func (l *Log) Tip() string {
	if len(l.Lines) == 0 {
		return SeedHex
	}

	return l.Lines[len(l.Lines)-1].ChainHash
}

// Append extends the log in place with one event, computing its chain
// hash from the current tip.
func (l *Log) Append(event wire.Event, prfHex, encMetaHex string) {
	prev := Seed
	if len(l.Lines) != 0 {
		prev, _ = decodeHash(l.Lines[len(l.Lines)-1].ChainHash)
	}

	next := link(prev, event, prfHex, encMetaHex)

	l.Lines = append(l.Lines, wire.ChangeLine{
		Event:      event,
		PrfHex:     prfHex,
		EncMetaHex: encMetaHex,
		ChainHash:  hex.EncodeToString(next[:]),
	})
}

// Encode renders the log back to its on-disk/on-wire byte form.
func (l *Log) Encode() []byte {
	if len(l.Lines) == 0 {
		return nil
	}

	var b strings.Builder
	for _, line := range l.Lines {
		b.WriteString(wire.FormatChangeLine(line))
		b.WriteString("\n")
	}

	return []byte(b.String())
}

// Since returns the events strictly after the line whose chain hash is
// hash, and "full" or "delta". An empty hash, or one equal to SeedHex, or
// one absent from the log, yields the full log and mode "full" — the
// server-truncation-detection case of spec §4.5.
func (l *Log) Since(hash string) (events []wire.ChangeLine, mode string) {
	if hash == "" || hash == SeedHex {
		return l.Lines, "full"
	}

	for i, line := range l.Lines {
		if line.ChainHash == hash {
			return l.Lines[i+1:], "delta"
		}
	}

	return l.Lines, "full"
}
