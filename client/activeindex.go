// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package client

import (
	"encoding/hex"

	"github.com/cloakmatch/cloakmatch/internal/wire"
)

// activeEntry is one active_index entry: a PRF's current nonce and
// ciphertext, keyed externally by its hex PRF.
type activeEntry struct {
	nonceHex string
	ctHex    string
}

// activeIndex is the client's projection of the mirrored changes.log, per
// spec §9's "model the active index as a pure projection of the log"
// redesign note: it holds no state the log can't reproduce.
// rebuildActiveIndex replays the log from the start, and applyDelta applies
// new events to a persisted index with the same rule, so both paths agree.
type activeIndex map[string]activeEntry

// rebuildActiveIndex replays lines from the beginning, applying ADDED and
// REMOVED events in order, per spec §4.5's active-index maintenance rule.
func rebuildActiveIndex(lines []wire.ChangeLine) activeIndex {
	idx := make(activeIndex)

	idx.applyDelta(lines)

	return idx
}

// applyDelta updates idx in place by replaying only the new lines — an
// incremental update equivalent to a full rebuild, per spec §8 property 7
// ("delta equivalence").
func (idx activeIndex) applyDelta(lines []wire.ChangeLine) {
	for _, l := range lines {
		switch l.Event {
		case wire.Added:
			nonceHex, ctHex, err := splitEncMetaHex(l.EncMetaHex)
			if err == nil {
				idx[l.PrfHex] = activeEntry{nonceHex: nonceHex, ctHex: ctHex}
			}
		case wire.Removed:
			if l.PrfHex != wire.Unknown {
				delete(idx, l.PrfHex)
			}
		}
	}
}

func splitEncMetaHex(encMetaHex string) (nonceHex, ctHex string, err error) {
	nonce, ct, err := wire.SplitEncMeta(encMetaHex)
	if err != nil {
		return "", "", err
	}

	return hex.EncodeToString(nonce), hex.EncodeToString(ct), nil
}
