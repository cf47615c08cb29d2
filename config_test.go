// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package cloakmatch_test

import (
	"errors"
	"testing"

	"github.com/cloakmatch/cloakmatch"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"malware_domains", true},
		{"malware-domains.v2", true},
		{"", false},
		{"has space", false},
		{"../etc/passwd", false},
		{"slash/in/name", false},
	}

	for _, tt := range tests {
		err := cloakmatch.ValidateName(tt.name)
		if tt.ok && err != nil {
			t.Errorf("ValidateName(%q): unexpected error %v", tt.name, err)
		}

		if !tt.ok && err == nil {
			t.Errorf("ValidateName(%q): expected an error", tt.name)
		}
	}
}

func TestConfig_ValidateAcceptsOTButCheckImplementedRejectsIt(t *testing.T) {
	cfg := cloakmatch.Config{Name: "feed", Algorithm: cloakmatch.OT, RekeyInterval: "30d"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}

	err := cfg.CheckImplemented()
	if err == nil {
		t.Fatal("CheckImplemented: expected an error for an OT dataset")
	}

	var code cloakmatch.ErrorCode
	if !errors.As(err, &code) || code != cloakmatch.ErrCodeConfiguration {
		t.Fatalf("CheckImplemented: expected ErrCodeConfiguration, got %v", err)
	}
}

func TestConfig_ValidateRejectsUnknownAlgorithm(t *testing.T) {
	cfg := cloakmatch.Config{Name: "feed", Algorithm: "quantum", RekeyInterval: "30d"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown algorithm tag")
	}
}
