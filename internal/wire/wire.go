// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package wire is the hex/CSV codec for the on-disk and on-the-wire
// formats of spec §6: index.csv rows and changes.log lines. Per spec §9,
// hex encoding is strictly a boundary concern — every other package in
// this module works with fixed-size byte arrays.
package wire

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Unknown is the placeholder written for a REMOVED event's PRF or enc_meta
// field when unknown, per spec §3/§6. This implementation never emits it
// (see DESIGN.md); it is still recognized on read for interoperability.
const Unknown = "-"

// Event is a change-log event kind.
type Event string

// Added and Removed are the only two recognized change-log event kinds.
const (
	Added   Event = "ADDED"
	Removed Event = "REMOVED"
)

// ChangeLine is the decoded form of one changes.log line:
// "EVENT PRF_HEX ENC_META_HEX CHAIN_HASH_HEX".
type ChangeLine struct {
	Event      Event
	PrfHex     string // 128 hex chars, or Unknown
	EncMetaHex string // "NONCE_HEX:CT_HEX", or Unknown
	ChainHash  string // 128 hex chars
}

// EncMeta builds the "nonce_hex:ciphertext_hex" enc_meta field.
func EncMeta(nonce, ciphertext []byte) string {
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext)
}

// SplitEncMeta splits an enc_meta field back into nonce and ciphertext
// bytes. Returns an error if encMeta is Unknown or malformed.
func SplitEncMeta(encMeta string) (nonce, ciphertext []byte, err error) {
	if encMeta == Unknown || encMeta == "" {
		return nil, nil, fmt.Errorf("wire: enc_meta is unknown")
	}

	nonceHex, ctHex, ok := strings.Cut(encMeta, ":")
	if !ok {
		return nil, nil, fmt.Errorf("wire: malformed enc_meta %q", encMeta)
	}

	nonce, err = hex.DecodeString(nonceHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: decoding nonce hex: %w", err)
	}

	ciphertext, err = hex.DecodeString(ctHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: decoding ciphertext hex: %w", err)
	}

	return nonce, ciphertext, nil
}

// FormatChangeLine renders a ChangeLine to its on-disk/on-wire line, without
// a trailing newline.
func FormatChangeLine(l ChangeLine) string {
	return fmt.Sprintf("%s %s %s %s", l.Event, l.PrfHex, l.EncMetaHex, l.ChainHash)
}

// ParseChangeLine parses one changes.log line. Blank lines, lines with
// other than four space-separated fields, and unknown events are rejected.
func ParseChangeLine(line string) (ChangeLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return ChangeLine{}, fmt.Errorf("wire: malformed change line %q", line)
	}

	ev := Event(strings.ToUpper(fields[0]))
	if ev != Added && ev != Removed {
		return ChangeLine{}, fmt.Errorf("wire: unknown event %q", fields[0])
	}

	return ChangeLine{
		Event:      ev,
		PrfHex:     fields[1],
		EncMetaHex: fields[2],
		ChainHash:  fields[3],
	}, nil
}

// IndexRow is one decoded index.csv row: IOC,PRF_HEX,NONCE_HEX,CT_HEX.
type IndexRow struct {
	Ioc      string
	PrfHex   string
	NonceHex string
	CtHex    string
}

// WriteIndex writes rows as RFC 4180 CSV (quoting fields that contain a
// comma, quote, or newline), resolving spec §9's Open Question about
// comma-containing IOCs the safe way the spec itself recommends.
func WriteIndex(w io.Writer, rows []IndexRow) error {
	cw := csv.NewWriter(w)
	for _, r := range rows {
		if err := cw.Write([]string{r.Ioc, r.PrfHex, r.NonceHex, r.CtHex}); err != nil {
			return fmt.Errorf("wire: writing index row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// ReadIndex parses index.csv rows written by WriteIndex.
func ReadIndex(r io.Reader) ([]IndexRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4

	var rows []IndexRow

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("wire: reading index row: %w", err)
		}

		rows = append(rows, IndexRow{Ioc: rec[0], PrfHex: rec[1], NonceHex: rec[2], CtHex: rec[3]})
	}

	return rows, nil
}
