// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package client implements the Client Mirror Engine of spec §4.5: the
// local changes.log mirror, the active_index projection, and the query
// flow that orchestrates the OPRF Engine and Metadata Cipher against a
// remote Dataset State Engine.
package client

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the capability the Client Mirror Engine uses to persist its
// local mirror. It is exclusively owned by the client — disjoint from any
// server.Storage the same process might also hold, per spec §3's
// ownership rule, even when both happen to be backed by the same
// filesystem.
type Storage interface {
	// Read returns the contents of name within the mirror's directory
	// for (server, dataset), or os.ErrNotExist if absent.
	Read(server, dataset, name string) ([]byte, error)

	// WriteAtomic atomically replaces name's contents.
	WriteAtomic(server, dataset, name string, contents []byte) error

	// Append appends contents to name, creating it if absent. Used only
	// for the optional match-history file, which has no consistency
	// requirement beyond "never corrupt a prior line".
	Append(server, dataset, name string, contents []byte) error

	// RemoveAll deletes all local state for (server, dataset).
	RemoveAll(server, dataset string) error
}

// FileStorage is the default Storage, rooted at a single directory on
// disk, one subdirectory per (server_label, dataset) pair — mirroring
// the reference client's per-server, per-dataset layout.
type FileStorage struct {
	root string
}

// NewFileStorage returns a FileStorage rooted at root.
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("client: creating storage root: %w", err)
	}

	return &FileStorage{root: root}, nil
}

func (s *FileStorage) dir(server, dataset string) string {
	return filepath.Join(s.root, server, dataset)
}

// Read implements Storage.
func (s *FileStorage) Read(server, dataset, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dir(server, dataset), name))
	if err != nil {
		return nil, err //nolint:wrapcheck // os.ErrNotExist must survive unwrapped
	}

	return b, nil
}

// WriteAtomic implements Storage, using the same temp-file-then-rename
// discipline as server.FileStorage.
func (s *FileStorage) WriteAtomic(server, dataset, name string, contents []byte) error {
	dir := s.dir(server, dataset)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("client: creating mirror directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("client: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() { _ = os.Remove(tmpPath) }()

	if _, err = tmp.Write(contents); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("client: writing temp file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("client: fsyncing temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("client: closing temp file: %w", err)
	}

	if err = os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("client: renaming temp file into place: %w", err)
	}

	return nil
}

// Append implements Storage.
func (s *FileStorage) Append(server, dataset, name string, contents []byte) error {
	dir := s.dir(server, dataset)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("client: creating mirror directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("client: opening %s: %w", name, err)
	}
	defer f.Close() //nolint:errcheck // best-effort close after a successful write below

	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("client: appending to %s: %w", name, err)
	}

	return nil
}

// RemoveAll implements Storage.
func (s *FileStorage) RemoveAll(server, dataset string) error {
	if err := os.RemoveAll(s.dir(server, dataset)); err != nil {
		return fmt.Errorf("client: removing mirror directory: %w", err)
	}

	return nil
}
