// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import (
	"strings"

	"github.com/intuitivelabs/bytescase"
)

// scanLine finds the end of a line starting at start, the same contract
// the teacher parser's ParseHdrLine/ParseFLine line scanners use: it
// returns errMoreBytes if buf doesn't yet contain a full line.
//
// Only CRLF terminates a line; a bare LF or bare CR is a *Error in both
// strict and lenient mode, per §4.2 "Strict vs. lenient mode" ("Both
// modes reject: bare LF/CR..."). strict is accepted for a uniform
// signature with scanLineLimited, whose caller threads the parser's
// mode through regardless of what this function does with it.
//
// On success it returns the offset just after the terminator; the line
// itself is buf[start:end-2].
func scanLine(buf []byte, start int, strict bool) (end int, err *Error) {
	for i := start; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			if i > start && buf[i-1] == '\r' {
				return i + 1, nil
			}
			return i, ErrInvalidLineBreak
		case '\r':
			if i+1 >= len(buf) {
				return i, errMoreBytes
			}
			if buf[i+1] != '\n' {
				return i, ErrInvalidLineBreak
			}
			// the '\n' case above validates and returns on the next iter
		}
	}
	return start, errMoreBytes
}

// scanLineLimited is scanLine with an eager per-line cap: the cap is
// checked crossing the limit, before a terminator is seen, as specified
// in §4.2 "Limits and tie-breaks".
func scanLineLimited(buf []byte, start, limit int, strict bool) (end int, err *Error) {
	if limit > 0 {
		probe := start + limit
		if probe > len(buf) {
			probe = len(buf)
		}
		for i := start; i < probe; i++ {
			if buf[i] == '\n' {
				probe = i + 1 // let scanLine see it and validate/CR-pair it
				break
			}
		}
		if probe-start >= limit {
			// no newline within the first `limit` bytes: eager failure,
			// regardless of whether more bytes would complete the line.
			hasNL := false
			for i := start; i < start+limit && i < len(buf); i++ {
				if buf[i] == '\n' {
					hasNL = true
					break
				}
			}
			if !hasNL {
				return start, limitErr("header_line", "header line exceeds %d bytes", limit)
			}
		}
	}
	return scanLine(buf, start, strict)
}

// splitHeaderLine splits a single header line (without its trailing
// CRLF) into a name and a value, per the grammar
// token ":" OWS value OWS (continuation lines are not supported).
func splitHeaderLine(line []byte) (name, value []byte, err *Error) {
	colon := -1
	for i, c := range line {
		if c == ':' {
			colon = i
			break
		}
		if !isTokenByte(c) {
			return nil, nil, ErrInvalidHeader
		}
	}
	if colon <= 0 {
		return nil, nil, ErrInvalidHeader
	}
	name = line[:colon]
	value = bytesTrimOWS(line[colon+1:])
	return name, value, nil
}

func bytesTrimOWS(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

// headerEqualFold reports whether two already-decoded header names are
// equal, ASCII case-insensitively.
func headerEqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

var (
	hdrContentDisposition       = []byte("content-disposition")
	hdrContentType              = []byte("content-type")
	hdrContentTransferEncoding  = []byte("content-transfer-encoding")
)

func bytesEqualFoldName(name []byte, known []byte) bool {
	return bytescase.CmpEq(name, known)
}
