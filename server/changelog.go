// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package server

import (
	"github.com/cloakmatch/cloakmatch/internal/chain"
)

// changeLog is an alias for the shared hash-chain implementation
// (internal/chain), kept so the rest of this package reads in terms of
// its own domain rather than the shared primitive's name.
type changeLog = chain.Log

func parseChangeLog(raw []byte) (*changeLog, error) {
	return chain.Parse(raw)
}
