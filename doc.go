// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package cloakmatch implements privacy-preserving lookup of indicators of
// compromise against a server-held dataset.
//
// A client learns whether a query IOC is present in a dataset, and if so
// recovers an encrypted per-IOC metadata blob, without revealing the query
// IOC to the server and without the server ever publishing raw IOCs. The
// protocol is an Oblivious Pseudo-Random Function over Ristretto255, with
// per-entry authenticated encryption keyed by material that only a client
// holding the correct IOC can reconstruct.
//
// The cryptographic engine lives in internal/xcrypto, internal/oprf, and
// internal/metacipher. The dataset state engine lives in server, and the
// client-side mirror and query engine lives in client.
package cloakmatch
