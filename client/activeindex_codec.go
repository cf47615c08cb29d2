// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package client

import (
	"fmt"
	"sort"
	"strings"
)

// encodeActiveIndex renders idx as sorted "PRF_HEX,NONCE_HEX:CT_HEX"
// lines, matching the format spec §6 prescribes for the persisted
// active_index.
func encodeActiveIndex(idx activeIndex) []byte {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		e := idx[k]
		fmt.Fprintf(&b, "%s,%s:%s\n", k, e.nonceHex, e.ctHex) //nolint:errcheck // strings.Builder never errors
	}

	return []byte(b.String())
}

// decodeActiveIndex parses the format encodeActiveIndex writes.
func decodeActiveIndex(raw []byte) activeIndex {
	idx := make(activeIndex)

	text := strings.TrimRight(string(raw), "\n")
	if text == "" {
		return idx
	}

	for _, line := range strings.Split(text, "\n") {
		prfHex, rest, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}

		nonceHex, ctHex, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}

		idx[prfHex] = activeEntry{nonceHex: nonceHex, ctHex: ctHex}
	}

	return idx
}
