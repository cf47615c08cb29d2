// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/wire"
)

// transport is the §6 HTTP wire binding as seen from the client. It is
// the one place in this package that imports net/http — the rest of the
// Client Mirror Engine is transport-agnostic.
type transport struct {
	baseURL string
	http    *http.Client
}

func newTransport(baseURL string, httpClient *http.Client) *transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &transport{baseURL: baseURL, http: httpClient}
}

// syncData calls GET /sync_data?data_type=name&hash=sinceHash and
// returns the decoded lines plus the X-Delta mode header.
func (t *transport) syncData(ctx context.Context, name, sinceHash string) (lines []wire.ChangeLine, mode string, raw []byte, err error) {
	u := t.baseURL + "/sync_data?" + url.Values{"data_type": {name}, "hash": {sinceHash}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("client: building sync_data request: %w", err)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, "", nil, cloakmatch.ErrCodeTransient.New("client: sync_data request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response already fully consumed below

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", nil, cloakmatch.ErrCodeTransient.New("client: reading sync_data response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", nil, httpStatusError(resp.StatusCode, raw)
	}

	mode = resp.Header.Get("X-Delta")

	lines, err = parseLines(raw)
	if err != nil {
		return nil, "", nil, err
	}

	return lines, mode, raw, nil
}

func parseLines(raw []byte) ([]wire.ChangeLine, error) {
	var lines []wire.ChangeLine

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}

		l, err := wire.ParseChangeLine(text)
		if err != nil {
			return nil, cloakmatch.ErrCodeInconsistent.New("client: parsing sync_data response", err)
		}

		lines = append(lines, l)
	}

	return lines, nil
}

type suite struct {
	Suite      string `json:"suite"`
	Encryption string `json:"encryption"`
}

// encryptionType calls GET /encryption_type?data_type=name.
func (t *transport) encryptionType(ctx context.Context, name string) (suite, error) {
	u := t.baseURL + "/encryption_type?" + url.Values{"data_type": {name}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return suite{}, fmt.Errorf("client: building encryption_type request: %w", err)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return suite{}, cloakmatch.ErrCodeTransient.New("client: encryption_type request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response already fully consumed below

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return suite{}, httpStatusError(resp.StatusCode, raw)
	}

	var s suite
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return suite{}, cloakmatch.ErrCodeInconsistent.New("client: decoding encryption_type response", err)
	}

	return s, nil
}

type oprfEvaluateRequest struct {
	DataType string `json:"data_type"`
	Blinded  string `json:"blinded"`
}

type oprfEvaluateResponse struct {
	Evaluated string `json:"evaluated"`
}

// oprfEvaluate calls POST /oprf_evaluate with the hex-encoded blinded
// point and returns the hex-encoded evaluated point.
func (t *transport) oprfEvaluate(ctx context.Context, name, blindedHex string) (string, error) {
	body, err := json.Marshal(oprfEvaluateRequest{DataType: name, Blinded: blindedHex})
	if err != nil {
		return "", fmt.Errorf("client: encoding oprf_evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/oprf_evaluate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("client: building oprf_evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", cloakmatch.ErrCodeTransient.New("client: oprf_evaluate request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response already fully consumed below

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", httpStatusError(resp.StatusCode, raw)
	}

	var respBody oprfEvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", cloakmatch.ErrCodeInconsistent.New("client: decoding oprf_evaluate response", err)
	}

	return respBody.Evaluated, nil
}

func httpStatusError(status int, body []byte) error {
	switch status {
	case http.StatusNotFound:
		return cloakmatch.ErrUnknownDataset
	case http.StatusBadRequest:
		return cloakmatch.ErrCodeInvalidEncoding.New("client: server rejected request: " + string(body))
	default:
		return cloakmatch.ErrCodeTransient.New(fmt.Sprintf("client: server returned status %d: %s", status, body))
	}
}
