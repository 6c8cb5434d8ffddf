// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import "errors"

// ErrorCode identifies a category of error.
type ErrorCode uint8

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates a generic error with the underlying database.
	// When this error code is set, the Err field of the Error will be set
	// to the underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrData describes an error where data stored in the account
	// database is incorrect.  This may be due to unexpected values, wrong
	// lengths, or rows that fail to decode.  The stored data is never
	// silently repaired.
	ErrData

	// ErrInput describes an error where caller-supplied data is invalid,
	// such as a viewing key or address that does not round-trip through
	// its encoding.
	ErrInput

	// ErrWrongNet describes an error where stored rows carry the bech32
	// prefix of a different network than the manager was opened with.
	ErrWrongNet

	// ErrAlreadyExists describes an error where a manager already exists
	// in the namespace a creation was attempted in.
	ErrAlreadyExists

	// ErrNoExists describes an error where a manager does not exist in
	// the namespace and must be created before it can be opened.
	ErrNoExists

	// ErrNeedsUpgrade describes an error where the manager was recorded
	// by an older version of the software and requires an upgrade before
	// it can be used.
	ErrNeedsUpgrade

	// ErrUnknownVersion describes an error where the manager was recorded
	// by a newer version of the software.
	ErrUnknownVersion

	// ErrAccountNotFound describes an error where the requested account
	// has not been set up in the manager.
	ErrAccountNotFound

	// ErrClosed describes an error where the manager has been closed and
	// its cached key material zeroed.
	ErrClosed
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:        "ErrDatabase",
	ErrData:            "ErrData",
	ErrInput:           "ErrInput",
	ErrWrongNet:        "ErrWrongNet",
	ErrAlreadyExists:   "ErrAlreadyExists",
	ErrNoExists:        "ErrNoExists",
	ErrNeedsUpgrade:    "ErrNeedsUpgrade",
	ErrUnknownVersion:  "ErrUnknownVersion",
	ErrAccountNotFound: "ErrAccountNotFound",
	ErrClosed:          "ErrClosed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return "Unknown ErrorCode"
}

// Error provides a single type for errors that can happen during manager
// operation.  It is used to indicate several types of failures including
// errors with caller requests such as unknown accounts, database errors, and
// corrupted or wrong-network rows.
type Error struct {
	Code ErrorCode // Describes the kind of error
	Desc string    // Human-readable description of the issue
	Err  error     // Underlying error, optional
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}
	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// managerError creates a Error given a set of arguments.
func managerError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsError returns whether the error is a Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.Code == code
}
