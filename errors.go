// SPDX-License-Identifier: MIT
//
// Copyright (C) 2020-2025 Daniel Bourdrez. All Rights Reserved.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree or at
// https://spdx.org/licenses/MIT.html

package cloakmatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var (
	// ErrInvalidEncoding indicates a group/scalar/hex/JSON decode failed.
	ErrInvalidEncoding = ErrCodeInvalidEncoding.New("")

	// ErrUnknownDataset indicates an operation referenced a dataset that
	// does not exist.
	ErrUnknownDataset = ErrCodeUnknownDataset.New("")

	// ErrAlreadyExists indicates create_dataset was called for a name
	// that already exists.
	ErrAlreadyExists = ErrCodeAlreadyExists.New("")

	// ErrInconsistent indicates a chain-hash mismatch during client
	// replay, or a log prefix the server claimed but did not match.
	// Triggers a full-resync fallback; never fatal.
	ErrInconsistent = ErrCodeInconsistent.New("")

	// ErrTransient indicates an I/O or network failure; retryable at the
	// caller's discretion.
	ErrTransient = ErrCodeTransient.New("")

	// ErrFatal indicates the crypto library is unavailable or
	// misconfigured; the process cannot continue.
	ErrFatal = ErrCodeFatal.New("")

	// ErrConfiguration indicates an invalid dataset configuration, such
	// as an unsupported algorithm tag.
	ErrConfiguration = ErrCodeConfiguration.New("")
)

// ErrorCode represents the taxonomy of spec §7. errors.As recovers it from
// any *Error, independent of the message text; errors.Is against an *Error
// also compares the message (see (*Error).Is).
type ErrorCode byte //nolint:errname // This is an error code, not an error type.

const (
	// ErrCodeUnknown represents an unknown error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeInvalidEncoding represents a decode failure of a group
	// element, scalar, hex string, or JSON payload.
	ErrCodeInvalidEncoding

	// ErrCodeUnknownDataset represents a reference to a nonexistent dataset.
	ErrCodeUnknownDataset

	// ErrCodeAlreadyExists represents a lifecycle conflict on create.
	ErrCodeAlreadyExists

	// ErrCodeInconsistent represents a hash-chain or log-prefix mismatch.
	ErrCodeInconsistent

	// ErrCodeTransient represents a retryable I/O or network failure.
	ErrCodeTransient

	// ErrCodeFatal represents an unrecoverable crypto or configuration
	// failure.
	ErrCodeFatal

	// ErrCodeConfiguration represents an invalid dataset configuration.
	ErrCodeConfiguration
)

// New creates a new Error with the given message and wrapped errors.
func (c ErrorCode) New(message string, errs ...error) *Error {
	if message == "" {
		message = strings.ReplaceAll(c.String(), "_", " ")
	}

	return &Error{
		Code:    c,
		Message: message,
		Err:     errors.Join(errs...),
	}
}

// String returns the string representation of the ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidEncoding:
		return "invalid_encoding"
	case ErrCodeUnknownDataset:
		return "unknown_dataset"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeInconsistent:
		return "inconsistent"
	case ErrCodeTransient:
		return "transient"
	case ErrCodeFatal:
		return "fatal"
	case ErrCodeConfiguration:
		return "configuration_error"
	default:
		return "unknown_error"
	}
}

// Error implements the error interface for the ErrorCode type.
func (c ErrorCode) Error() string {
	return c.String()
}

// Is implements errors.Is for ErrorCode.
func (c ErrorCode) Is(target error) bool {
	var errCode ErrorCode
	if errors.As(target, &errCode) {
		return byte(c) == byte(errCode)
	}

	var cmErr *Error
	if errors.As(target, &cmErr) {
		return byte(c) == byte(cmErr.Code)
	}

	return false
}

// As implements errors.As for ErrorCode.
func (c ErrorCode) As(target any) bool {
	switch t := target.(type) {
	case ErrorCode:
		return true
	case *ErrorCode:
		*t = c
		return true
	default:
		return false
	}
}

// Error represents a categorized error in the CLOAKmatch protocol.
type Error struct {
	Err     error
	Message string
	Code    ErrorCode
}

// Error implements the error interface. By convention it returns only the
// concise form of the current error; the cause is retrievable via Unwrap.
func (e *Error) Error() string { return e.Message }

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error { return e.Err }

// Join wraps the provided errors onto the current error.
func (e *Error) Join(errs ...error) error {
	return errors.Join(e, errors.Join(errs...))
}

// LogValue implements slog.LogValuer.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("code", int(e.Code)),
		slog.String("code_name", e.Code.String()),
		slog.String("message", e.Message),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}

	return slog.GroupValue(attrs...)
}

// Format implements fmt.Formatter.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			e.formatV(f)
			return
		}

		fallthrough
	case 's':
		_, _ = io.WriteString(f, e.Error()) //nolint:errcheck // human-readable
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", e.Error()) //nolint:errcheck // quoted string
	default:
		_, _ = io.WriteString(f, e.Error()) //nolint:errcheck // safe default
	}
}

// Is implements errors.Is for Error.
func (e *Error) Is(target error) bool {
	return e.Code.Is(target) && strings.EqualFold(e.Message, target.Error())
}

// As implements errors.As for Error.
func (e *Error) As(target any) bool {
	switch t := target.(type) {
	case *ErrorCode:
		*t = e.Code
		return true
	case **Error:
		*t = e
		return true
	default:
		return false
	}
}

func printV(f fmt.State, err error, depth int) {
	if err == nil {
		return
	}

	prefix := strings.Repeat("  ", depth)
	_, _ = fmt.Fprintf(f, "\n%s↳ %v", prefix, err) //nolint:errcheck

	var multiUnwrapper interface{ Unwrap() []error }
	if errors.As(err, &multiUnwrapper) {
		for _, child := range multiUnwrapper.Unwrap() {
			printV(f, child, depth+1)
		}

		return
	}

	var singleUnwrapper interface{ Unwrap() error }
	if errors.As(err, &singleUnwrapper) {
		printV(f, singleUnwrapper.Unwrap(), depth+1)
	}
}

func (e *Error) formatV(f fmt.State) {
	_, _ = fmt.Fprintf(f, "code=%d(%s)", e.Code, e.Code.String()) //nolint:errcheck
	if e.Message != "" {
		_, _ = fmt.Fprintf(f, " message=%q", e.Message) //nolint:errcheck
	}

	if e.Err != nil {
		printV(f, e.Err, 0)
	}
}
