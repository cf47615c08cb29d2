// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package cloakmatch

import "regexp"

// Algorithm identifies the OPRF construction a dataset is configured to
// use. Only Classic is implemented; OT is accepted by configuration
// validation but rejected by the operations that call CheckImplemented.
type Algorithm string

const (
	// Classic is the Ristretto255 blind/evaluate/unblind/finalize OPRF of
	// §4.2. The only algorithm this module implements.
	Classic Algorithm = "classic"

	// OT names the oblivious-transfer-based variant mentioned in the
	// original dataset schema format. It is accepted here only so that
	// datasets created by the reference tooling still parse; EvaluateOPRF,
	// SyncFromSource and Rekey on an OT dataset fail with an
	// ErrCodeConfiguration error.
	OT Algorithm = "ot"
)

// nameRe matches spec §6's data_type identifier grammar: non-empty,
// alphanumeric plus '_', '.', '-', no path separators.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateName reports whether name is a well-formed dataset identifier.
func ValidateName(name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return ErrCodeInvalidEncoding.New("invalid dataset name " + quote(name))
	}

	return nil
}

func quote(s string) string { return "\"" + s + "\"" }

// Config is a dataset's persistent configuration, round-tripped by the
// Dataset State Engine's schema file and carried, informationally, by the
// client. It mirrors the {data_name, supported_algorithm, rekey_interval}
// schema the reference tooling's create_source writes.
type Config struct {
	// Name is the dataset identifier; must satisfy ValidateName.
	Name string

	// Algorithm is the configured OPRF construction.
	Algorithm Algorithm

	// RekeyInterval is an informational string such as "30d". It is
	// round-tripped but never itself enforced or scheduled: process
	// lifecycle and bootstrap are out of scope (spec §1).
	RekeyInterval string
}

// Validate checks that c is well-formed. It does not check that Algorithm
// is implemented — that is an operation-time failure (ErrCodeConfiguration),
// not a construction-time one, so that schemas written by the reference
// tooling with algorithm "ot" still load.
func (c Config) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}

	if c.Algorithm != Classic && c.Algorithm != OT {
		return ErrCodeConfiguration.New("unsupported algorithm " + quote(string(c.Algorithm)))
	}

	return nil
}

// CheckImplemented returns an ErrCodeConfiguration error if c's algorithm
// is not implemented by this module. The Dataset State Engine calls it in
// EvaluateOPRF, SyncFromSource and Rekey before touching any state,
// matching data_sync.py's "OT sync not yet implemented" abort.
// CreateDataset, RemoveDataset and ReadChanges do not call it, and the
// Client Mirror Engine holds no dataset configuration to check.
func (c Config) CheckImplemented() error {
	if c.Algorithm != Classic {
		return ErrCodeConfiguration.New(string(c.Algorithm) + " not yet implemented")
	}

	return nil
}
