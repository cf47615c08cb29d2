// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloakmatch/cloakmatch"
	"github.com/cloakmatch/cloakmatch/internal/wire"
)

// Suite names the fixed ciphersuite this module implements, echoed by the
// /encryption_type endpoint. There is no negotiation — spec §4.1 fixes
// the group and AEAD.
const (
	SuiteOPRF       = "oprf-ristretto255-sha512"
	SuiteEncryption = "xchacha20poly1305-ietf"
)

// Handler is the §6 HTTP wire binding over an Engine. The core protocol
// engine has no HTTP dependency; Handler is the thin, optional
// collaborator spec §1 describes as "specified only at their interfaces".
type Handler struct {
	engine *Engine
}

// NewHandler returns a Handler serving engine.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes registers the three endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sync_data", h.handleSyncData)
	mux.HandleFunc("GET /encryption_type", h.handleEncryptionType)
	mux.HandleFunc("POST /oprf_evaluate", h.handleOPRFEvaluate)
}

func dataTypeParam(r *http.Request) (string, error) {
	name := r.URL.Query().Get("data_type")
	if err := cloakmatch.ValidateName(name); err != nil {
		return "", err
	}

	return name, nil
}

func (h *Handler) handleSyncData(w http.ResponseWriter, r *http.Request) {
	name, err := dataTypeParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	since := r.URL.Query().Get("hash")

	events, mode, err := h.engine.ReadChanges(name, since)
	if writeEngineError(w, err) {
		return
	}

	w.Header().Set("X-Delta", mode)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	for _, e := range events {
		fmt.Fprintln(w, wire.FormatChangeLine(e)) //nolint:errcheck // best-effort streaming write
	}
}

func (h *Handler) handleEncryptionType(w http.ResponseWriter, r *http.Request) {
	if _, err := dataTypeParam(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"suite":      SuiteOPRF,
		"encryption": SuiteEncryption,
	})
}

type oprfEvaluateRequest struct {
	DataType string `json:"data_type"`
	Blinded  string `json:"blinded"`
}

type oprfEvaluateResponse struct {
	Evaluated string `json:"evaluated"`
}

func (h *Handler) handleOPRFEvaluate(w http.ResponseWriter, r *http.Request) {
	var req oprfEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if err := cloakmatch.ValidateName(req.DataType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	blinded, err := hex.DecodeString(req.Blinded)
	if err != nil {
		http.Error(w, "invalid blinded encoding", http.StatusBadRequest)
		return
	}

	evaluated, err := h.engine.EvaluateOPRF(req.DataType, blinded)
	if writeEngineError(w, err) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(oprfEvaluateResponse{Evaluated: hex.EncodeToString(evaluated)})
}

// writeEngineError writes the appropriate HTTP status for err and reports
// whether it wrote anything (true means the caller must not write more).
// It classifies by ErrorCode via errors.As rather than errors.Is against a
// sentinel, since a freshly constructed *Error's custom message need not
// match a sentinel's default message for the code to still apply.
func writeEngineError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	status := http.StatusInternalServerError

	var code cloakmatch.ErrorCode
	if errors.As(err, &code) {
		switch code {
		case cloakmatch.ErrCodeUnknownDataset:
			status = http.StatusNotFound
		case cloakmatch.ErrCodeInvalidEncoding, cloakmatch.ErrCodeConfiguration:
			status = http.StatusBadRequest
		}
	}

	http.Error(w, err.Error(), status)

	return true
}
