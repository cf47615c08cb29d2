// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

// Package server implements the Dataset State Engine of spec §4.4: the
// canonical index, the append-only hash-chained change log, and the
// build/sync/rekey transitions over them. It also exposes the §6 HTTP
// wire binding as a thin net/http handler.
package server

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the capability the Dataset State Engine uses to read and
// atomically write a dataset's on-disk files. It replaces the reference
// implementation's global dataset directory (spec §9's "Global dataset
// directory" redesign flag) with an explicit, injectable capability, so
// an engine is never coupled to a process-wide filesystem root.
type Storage interface {
	// Read returns the full contents of name within a dataset's
	// directory, or os.ErrNotExist if it does not exist.
	Read(dataset, name string) ([]byte, error)

	// WriteAtomic replaces name within a dataset's directory with
	// contents as a single atomic operation: the prior contents are
	// visible to any concurrent reader until the write completes, and a
	// crash mid-write leaves the prior contents intact.
	WriteAtomic(dataset, name string, contents []byte, perm os.FileMode) error

	// Remove deletes a single file within a dataset's directory. It is
	// not an error if the file does not exist.
	Remove(dataset, name string) error

	// RemoveAll deletes a dataset's entire directory, if present.
	RemoveAll(dataset string) error

	// Exists reports whether a dataset's directory exists.
	Exists(dataset string) bool
}

// FileStorage is the default Storage, rooted at a single directory on
// disk, one subdirectory per dataset — mirroring the reference
// implementation's `server/data/<name>/` and `server/schemas/<name>/`
// layout, but as an explicit capability rather than a hardcoded path.
type FileStorage struct {
	root string
}

// NewFileStorage returns a FileStorage rooted at root. root is created
// with mode 0o700 if it does not already exist.
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("server: creating storage root: %w", err)
	}

	return &FileStorage{root: root}, nil
}

func (s *FileStorage) datasetDir(dataset string) string {
	return filepath.Join(s.root, dataset)
}

// Read implements Storage.
func (s *FileStorage) Read(dataset, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.datasetDir(dataset), name))
	if err != nil {
		return nil, err //nolint:wrapcheck // os.ErrNotExist must survive unwrapped for errors.Is
	}

	return b, nil
}

// WriteAtomic implements Storage. It writes to a temp file in the same
// directory, fsyncs it, then renames over the target — satisfying the
// §4.4 partial-write-safety requirement that a crash leaves either the
// prior or the new state, never a torn file.
func (s *FileStorage) WriteAtomic(dataset, name string, contents []byte, perm os.FileMode) error {
	dir := s.datasetDir(dataset)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("server: creating dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("server: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		_ = os.Remove(tmpPath) // no-op once the rename below has succeeded
	}()

	if _, err = tmp.Write(contents); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("server: writing temp file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("server: fsyncing temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("server: closing temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("server: setting permissions: %w", err)
	}

	if err = os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("server: renaming temp file into place: %w", err)
	}

	return nil
}

// Remove implements Storage.
func (s *FileStorage) Remove(dataset, name string) error {
	if err := os.Remove(filepath.Join(s.datasetDir(dataset), name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("server: removing %s: %w", name, err)
	}

	return nil
}

// RemoveAll implements Storage.
func (s *FileStorage) RemoveAll(dataset string) error {
	if err := os.RemoveAll(s.datasetDir(dataset)); err != nil {
		return fmt.Errorf("server: removing dataset directory: %w", err)
	}

	return nil
}

// Exists implements Storage.
func (s *FileStorage) Exists(dataset string) bool {
	_, err := os.Stat(s.datasetDir(dataset))
	return err == nil
}

// writeAtomicPair writes two files as a single logical unit: index is
// written first, then the log. If writing the log fails after the index
// succeeded, the caller is left with a new index and an old log, which
// is always a safe (if stale) state to resync from — never a torn log.
func writeAtomicPair(s Storage, dataset string, indexName string, indexBytes []byte, logName string, logBytes []byte) error {
	if err := s.WriteAtomic(dataset, indexName, indexBytes, 0o600); err != nil {
		return err
	}

	if err := s.WriteAtomic(dataset, logName, logBytes, 0o600); err != nil {
		return err
	}

	return nil
}
