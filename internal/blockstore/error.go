// Copyright (c) 2020-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrDriver indicates the underlying leveldb database returned an error.
	ErrDriver = ErrorKind("ErrDriver")

	// ErrCorruption indicates a checksum failure or otherwise malformed
	// stored record.
	ErrCorruption = ErrorKind("ErrCorruption")

	// ErrRecordNotFound indicates a requested block or undo record does not
	// exist.  This is the case for records in pruned files.
	ErrRecordNotFound = ErrorKind("ErrRecordNotFound")

	// ErrInvalidPos indicates a null or out of range file position.
	ErrInvalidPos = ErrorKind("ErrInvalidPos")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to the block store.  It has full support
// for errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates an Error given a set of arguments.
func storeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
