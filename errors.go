// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import "fmt"

// Kind classifies an Error, mirroring the abstract error taxonomy of
// the format this package parses: ParserError, LimitReached,
// StrictParserError and ParserStateError.
type Kind uint8

const (
	// KindNone is the zero Kind; never appears on a returned Error.
	KindNone Kind = iota

	// ParserError subkinds: malformed input.
	KindInvalidBoundary
	KindInvalidBoundaryLocation
	KindInvalidHeader
	KindInvalidLineBreak
	KindMissingDisposition
	KindUnsupportedTransferEncoding
	KindEmptyHeader
	KindHeaderTooLong

	// KindLimitReached: a configured cap was exceeded.
	KindLimitReached

	// KindStrict: rejected only because strict mode is enabled.
	KindStrict

	// KindState: API misuse (parse after close, close before complete, ...).
	KindState
)

var kindNames = [...]string{
	KindNone:                       "none",
	KindInvalidBoundary:            "invalid_boundary",
	KindInvalidBoundaryLocation:    "invalid_boundary_location",
	KindInvalidHeader:              "invalid_header",
	KindInvalidLineBreak:           "invalid_line_break",
	KindMissingDisposition:         "missing_disposition",
	KindUnsupportedTransferEncoding: "unsupported_transfer_encoding",
	KindEmptyHeader:                "empty_header",
	KindHeaderTooLong:              "header_too_long",
	KindLimitReached:               "limit_reached",
	KindStrict:                     "strict_violation",
	KindState:                      "state_error",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Status returns the HTTP status hint associated with a Kind: 400 for
// malformed input, 413 for exhausted limits, 500 for API misuse.
func (k Kind) Status() int {
	switch k {
	case KindLimitReached:
		return 413
	case KindState:
		return 500
	case KindNone:
		return 0
	default:
		return 400
	}
}

// Error is the concrete error type returned by every operation in this
// package. It plays the role the teacher parser's raw ErrorHdr sentinel
// plays (a small, cheaply comparable value threaded through every parse
// step) but is a real error, so it composes with errors.Is/errors.As and
// %w wrapping the way idiomatic Go code expects.
type Error struct {
	Kind    Kind
	Limit   string // name of the exceeded limit, set only for KindLimitReached
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Limit != "" {
		return fmt.Sprintf("multipart: %s (%s): %s", e.Kind, e.Limit, e.Message)
	}
	return fmt.Sprintf("multipart: %s: %s", e.Kind, e.Message)
}

// Is supports errors.Is(err, multipart.ErrX) against the sentinel errors
// declared below, comparing by Kind rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == KindNone {
		return false
	}
	return e.Kind == t.Kind
}

// Status returns the HTTP status hint for e.
func (e *Error) Status() int {
	return e.Kind.Status()
}

func newErr(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func limitErr(name string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindLimitReached, Limit: name, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for use with errors.Is. Each carries only a Kind; the
// Message/Limit fields on the actual returned error carry the detail.
var (
	ErrInvalidBoundary             = &Error{Kind: KindInvalidBoundary}
	ErrInvalidBoundaryLocation     = &Error{Kind: KindInvalidBoundaryLocation}
	ErrInvalidHeader               = &Error{Kind: KindInvalidHeader}
	ErrInvalidLineBreak            = &Error{Kind: KindInvalidLineBreak}
	ErrMissingDisposition          = &Error{Kind: KindMissingDisposition}
	ErrUnsupportedTransferEncoding = &Error{Kind: KindUnsupportedTransferEncoding}
	ErrEmptyHeader                 = &Error{Kind: KindEmptyHeader}
	ErrHeaderTooLong               = &Error{Kind: KindHeaderTooLong}
	ErrLimitReached                = &Error{Kind: KindLimitReached}
	ErrStrictViolation             = &Error{Kind: KindStrict}
	ErrParserState                 = &Error{Kind: KindState}
)

// errMoreBytes is the internal-only sentinel the teacher parser calls
// ErrHdrMoreBytes: a scan function returns it to mean "correct so far,
// call me again once more bytes are appended to the buffer". It never
// escapes to a Parser caller as an error value; Parse() surfaces it as
// "no more events this call, not done, not failed".
var errMoreBytes = &Error{Kind: KindNone, Message: "more bytes needed"}

func isMoreBytes(err *Error) bool {
	return err == errMoreBytes
}
