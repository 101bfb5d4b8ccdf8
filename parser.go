// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import "bytes"

// state is the Parser's position in the multipart grammar.
type state uint8

const (
	statePreamble state = iota
	stateHeader
	stateBody
	stateDelimiterTail
	stateTerminatorTail
	stateComplete
	stateError
	stateClosed
)

// Stats accumulates cumulative counters for a Parser's lifetime, the
// programmatic counterpart of the limit_violations_total metric.
type Stats struct {
	Segments        int
	HeaderBytes     int64
	BodyBytes       int64
	LimitViolations int
}

// Parser is an incremental, non-blocking multipart/form-data parser.
// Construct one with New, feed it bytes as they arrive with Parse, and
// drain the returned events before calling Parse again: the Event slice
// (and any BodyChunk.Data it carries) is only valid until the next call.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	boundary Boundary
	limits   Limits
	strict   bool
	charset  string

	buf   []byte
	pos   int // offset of the next unconsumed byte in buf
	state state
	err   *Error

	segIndex       int
	headerCount    int
	headerBytes    int
	headers        []HeaderField
	sawCD, sawCT   bool
	cdValue        string
	ctValue        string
	segBodyBytes   int64
	totalBodyBytes int64

	stats Stats
}

// New constructs a Parser for a body delimited by boundary (as extracted
// from a Content-Type header's boundary parameter, e.g. with
// BoundaryFromContentType), decoding header values through charset
// (empty means us-ascii/utf-8 passthrough), honoring limits (a Limits
// whose fields are all zero is replaced by DefaultLimits).
func New(boundary string, charset string, limits Limits, strict bool) (*Parser, error) {
	b, err := NewBoundary([]byte(boundary))
	if err != nil {
		return nil, err
	}
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Parser{
		boundary: b,
		limits:   limits,
		strict:   strict,
		charset:  charset,
		state:    statePreamble,
	}, nil
}

// Closed reports whether a call to Close has succeeded.
func (p *Parser) Closed() bool {
	return p.state == stateClosed
}

// Close releases the Parser's internal buffer. After Close, Parse
// returns ErrParserState. Close is idempotent once it has succeeded,
// but fails with ErrParserState if the parser has not yet reached
// COMPLETE: a caller must not close out from under an in-flight parse.
func (p *Parser) Close() error {
	if p.state == stateClosed {
		return nil
	}
	if p.state != stateComplete {
		return newErr(KindState, "incomplete input")
	}
	p.buf = nil
	p.state = stateClosed
	return nil
}

// Stats returns a snapshot of the Parser's cumulative counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// Done reports whether the terminating boundary has been seen: the body
// is fully and successfully parsed.
func (p *Parser) Done() bool {
	return p.state == stateComplete
}

// Parse feeds chunk to the parser and returns the events it produces.
// chunk may be any non-negative length; an empty chunk signals EOF (no
// further bytes will ever arrive), which matters only to resolve a
// terminator's optional trailing CRLF: at EOF without it, lenient mode
// completes and strict mode fails. chunk need not
// align with any message boundary; call Parse again with the next chunk
// once EOF has not yet been signaled by a COMPLETE state and no error
// was returned.
//
// Once Parse returns a non-nil error the Parser is poisoned: every
// subsequent call returns the same error. Once the terminating boundary
// has been seen (Done returns true), further chunks are treated as
// epilogue and discarded without error.
func (p *Parser) Parse(chunk []byte) ([]Event, error) {
	if p.state == stateClosed {
		return nil, ErrParserState
	}
	if p.state == stateError {
		return nil, p.err
	}
	if p.state == stateComplete {
		return nil, nil
	}

	eof := len(chunk) == 0

	if p.pos > 0 {
		n := copy(p.buf, p.buf[p.pos:])
		p.buf = p.buf[:n]
		p.pos = 0
	}
	if len(chunk) > 0 {
		p.buf = append(p.buf, chunk...)
	}

	var events []Event
	for {
		switch p.state {
		case statePreamble:
			ok, err := p.stepPreamble()
			if err != nil {
				return p.fail(events, err)
			}
			if !ok {
				return events, nil
			}

		case stateHeader:
			ev, ok, err := p.stepHeader()
			if err != nil {
				return p.fail(events, err)
			}
			if ev != nil {
				events = append(events, *ev)
			}
			if !ok {
				return events, nil
			}

		case stateBody:
			evs, ok, err := p.stepBody()
			if err != nil {
				return p.fail(events, err)
			}
			events = append(events, evs...)
			if !ok {
				return events, nil
			}

		case stateDelimiterTail:
			ev, ok, err := p.stepDelimiterTail()
			if err != nil {
				return p.fail(events, err)
			}
			if ev != nil {
				events = append(events, *ev)
			}
			if !ok {
				return events, nil
			}

		case stateTerminatorTail:
			ok, err := p.stepTerminatorTail(eof)
			if err != nil {
				return p.fail(events, err)
			}
			if !ok {
				return events, nil
			}

		case stateComplete:
			p.pos = len(p.buf)
			p.buf = p.buf[:0]
			return events, nil

		default:
			return events, nil
		}
	}
}

func (p *Parser) fail(events []Event, err *Error) ([]Event, error) {
	p.state = stateError
	p.err = err
	if err.Kind == KindLimitReached {
		p.stats.LimitViolations++
	}
	recordError(err)
	return events, err
}

// stepPreamble locates the opening dash-boundary and determines whether
// it is immediately followed by the terminating "--" (a body with zero
// segments) or a CRLF starting the first segment's header block. A
// non-empty preamble (anything before the dash-boundary, or before the
// CRLF immediately preceding it) is tolerated in lenient mode and
// rejected in strict mode.
func (p *Parser) stepPreamble() (advanced bool, err *Error) {
	dash := p.boundary.DashBoundary()
	delim := p.boundary.Delimiter()

	var matchEnd int
	if bytes.HasPrefix(p.buf[p.pos:], dash) {
		matchEnd = p.pos + len(dash)
	} else {
		maxPreamble := p.limits.MaxHeaderSize
		if maxPreamble <= 0 {
			maxPreamble = DefaultLimits().MaxHeaderSize
		}
		idx := bytes.Index(p.buf[p.pos:], delim)
		if idx < 0 {
			if len(p.buf)-p.pos > maxPreamble+len(delim) {
				return false, newErr(KindInvalidBoundaryLocation,
					"no boundary found within first %d bytes", maxPreamble)
			}
			// might still be a partial match of delim at the tail; wait
			// for more bytes, but only up to the same bound.
			return false, nil
		}
		if idx > maxPreamble {
			return false, newErr(KindInvalidBoundaryLocation,
				"preamble exceeds %d bytes", maxPreamble)
		}
		if p.strict && idx > 0 {
			return false, newErr(KindStrict,
				"non-empty preamble before the first dash-boundary")
		}
		matchEnd = p.pos + idx + len(delim)
	}

	if len(p.buf)-matchEnd < 2 {
		return false, nil
	}
	if p.buf[matchEnd] == '-' && p.buf[matchEnd+1] == '-' {
		p.pos = matchEnd + 2
		p.state = stateTerminatorTail
		return true, nil
	}
	if p.buf[matchEnd] == '\r' && p.buf[matchEnd+1] == '\n' {
		p.pos = matchEnd + 2
		p.beginHeaderBlock()
		return true, nil
	}
	return false, newErr(KindInvalidBoundary, "garbage after opening boundary")
}

// stepTerminatorTail resolves the terminator's optional trailing CRLF,
// per §4.2 "Strict vs. lenient mode": lenient tolerates a missing final
// CRLF, strict requires it. Whatever follows (present or not) is
// resolved once two bytes are available, or at EOF.
func (p *Parser) stepTerminatorTail(eof bool) (advanced bool, err *Error) {
	if len(p.buf)-p.pos >= 2 {
		if p.buf[p.pos] == '\r' && p.buf[p.pos+1] == '\n' {
			p.pos += 2
		} else if p.strict {
			return false, newErr(KindStrict, "missing final CRLF after the terminator")
		}
		p.state = stateComplete
		return true, nil
	}
	if eof {
		if p.strict {
			return false, newErr(KindStrict, "missing final CRLF after the terminator")
		}
		p.state = stateComplete
		return true, nil
	}
	return false, nil
}

func (p *Parser) beginHeaderBlock() {
	p.state = stateHeader
	p.headerCount = 0
	p.headerBytes = 0
	p.headers = nil
	p.sawCD = false
	p.sawCT = false
	p.cdValue = ""
	p.ctValue = ""
}

// stepHeader consumes a single header line, or the blank line ending
// the header block.
func (p *Parser) stepHeader() (ev *Event, advanced bool, err *Error) {
	end, serr := scanLineLimited(p.buf, p.pos, p.limits.MaxHeaderLine, p.strict)
	if serr != nil {
		if isMoreBytes(serr) {
			return nil, false, nil
		}
		return nil, false, serr
	}

	lineLen := end - p.pos
	p.headerBytes += lineLen
	if p.limits.MaxHeaderSize > 0 && p.headerBytes > p.limits.MaxHeaderSize {
		return nil, false, limitErr("max_header_size", "segment %d header block exceeds %d bytes",
			p.segIndex, p.limits.MaxHeaderSize)
	}

	lineEnd := end
	for lineEnd > p.pos && (p.buf[lineEnd-1] == '\n' || p.buf[lineEnd-1] == '\r') {
		lineEnd--
	}
	line := p.buf[p.pos:lineEnd]
	p.pos = end

	if len(line) == 0 {
		return p.finishHeaderBlock()
	}

	name, value, serr := splitHeaderLine(line)
	if serr != nil {
		return nil, false, serr
	}

	p.headerCount++
	if max := p.limits.maxHeaderCount(); max > 0 && p.headerCount > max {
		return nil, false, limitErr("max_header_count", "segment %d has more than %d header lines",
			p.segIndex, max)
	}

	// Classify against the well-known header names on the raw buffer,
	// via bytescase, before paying for a charset decode: a rejected
	// transfer encoding short-circuits without ever materializing a
	// string out of the rest of this line.
	isCD := bytesEqualFoldName(name, hdrContentDisposition)
	isCT := bytesEqualFoldName(name, hdrContentType)
	isTE := bytesEqualFoldName(name, hdrContentTransferEncoding)
	if isTE && transferEncodingUnsupported(recognizeTransferEncoding(value)) {
		return nil, false, ErrUnsupportedTransferEncoding
	}

	nameStr, derr := decodeCharset(p.charset, name)
	if derr != nil {
		return nil, false, derr
	}
	valueStr, derr := decodeCharset(p.charset, value)
	if derr != nil {
		return nil, false, derr
	}
	p.headers = append(p.headers, HeaderField{Name: nameStr, Value: valueStr})
	if isCD && !p.sawCD {
		p.cdValue = valueStr
		p.sawCD = true
	}
	if isCT && !p.sawCT {
		p.ctValue = valueStr
		p.sawCT = true
	}
	return nil, true, nil
}

func (p *Parser) finishHeaderBlock() (*Event, bool, *Error) {
	if p.limits.CountHeadersInBody && p.limits.MaxBodySize > 0 {
		p.totalBodyBytes += int64(p.headerBytes)
		if p.totalBodyBytes > p.limits.MaxBodySize {
			return nil, false, limitErr("max_body_size", "cumulative body size exceeds %d bytes",
				p.limits.MaxBodySize)
		}
	}

	sh := &SegmentHeader{
		Index:   p.segIndex,
		Headers: p.headers,
	}

	if !p.sawCD {
		return nil, false, ErrMissingDisposition
	}
	cd, cerr := ParseContentDisposition(p.cdValue)
	if cerr != nil {
		if e, ok := cerr.(*Error); ok {
			return nil, false, e
		}
		return nil, false, newErr(KindMissingDisposition, "%v", cerr)
	}
	sh.Name = cd.Name
	sh.Filename = cd.Filename
	sh.HasFile = cd.HasFile

	switch {
	case p.sawCT:
		primary, _, perr := ParseContentType(p.ctValue)
		if perr != nil {
			if e, ok := perr.(*Error); ok {
				return nil, false, e
			}
			return nil, false, newErr(KindInvalidHeader, "%v", perr)
		}
		sh.ContentType = primary
	case cd.HasFile:
		sh.ContentType = "application/octet-stream"
	default:
		sh.ContentType = "text/plain"
	}

	p.segBodyBytes = 0
	p.state = stateBody
	p.stats.Segments++
	p.stats.HeaderBytes += int64(p.headerBytes)
	segmentsParsed.Inc()
	return &Event{Kind: EventSegmentHeader, Header: sh, Segment: p.segIndex}, true, nil
}

// stepBody emits BodyChunk events for data available up to (but not
// including) the first byte that could be part of the next delimiter,
// and detects a complete delimiter match.
func (p *Parser) stepBody() (events []Event, advanced bool, err *Error) {
	delim := p.boundary.Delimiter()
	window := p.buf[p.pos:]

	if idx := bytes.Index(window, delim); idx >= 0 {
		if idx > 0 {
			ev, berr := p.emitBodyChunk(window[:idx])
			if berr != nil {
				return nil, false, berr
			}
			events = append(events, ev)
		}
		p.pos += idx + len(delim)
		events = append(events, Event{Kind: EventSegmentEnd, Segment: p.segIndex})
		p.state = stateDelimiterTail
		return events, true, nil
	}

	safe := len(window) - (len(delim) - 1)
	if safe > 0 {
		ev, berr := p.emitBodyChunk(window[:safe])
		if berr != nil {
			return nil, false, berr
		}
		events = append(events, ev)
		p.pos += safe
	}
	return events, false, nil
}

func (p *Parser) emitBodyChunk(data []byte) (Event, *Error) {
	p.segBodyBytes += int64(len(data))
	if p.limits.MaxSegmentSize > 0 && p.segBodyBytes > p.limits.MaxSegmentSize {
		return Event{}, limitErr("max_segment_size", "segment %d body exceeds %d bytes",
			p.segIndex, p.limits.MaxSegmentSize)
	}
	p.totalBodyBytes += int64(len(data))
	if p.limits.MaxBodySize > 0 && p.totalBodyBytes > p.limits.MaxBodySize {
		return Event{}, limitErr("max_body_size", "cumulative body size exceeds %d bytes",
			p.limits.MaxBodySize)
	}
	p.stats.BodyBytes += int64(len(data))
	bodyBytesParsed.Add(float64(len(data)))
	return Event{Kind: EventBodyChunk, Chunk: BodyChunk{Data: data}, Segment: p.segIndex}, nil
}

// stepDelimiterTail decides, once at least two bytes are available past
// a matched delimiter, whether the stream terminates here or a new
// segment's header block begins.
func (p *Parser) stepDelimiterTail() (ev *Event, advanced bool, err *Error) {
	if len(p.buf)-p.pos < 2 {
		return nil, false, nil
	}
	a, b := p.buf[p.pos], p.buf[p.pos+1]
	switch {
	case a == '-' && b == '-':
		p.pos += 2
		p.state = stateTerminatorTail
		return nil, true, nil
	case a == '\r' && b == '\n':
		p.pos += 2
		p.segIndex++
		if max := p.limits.maxSegments(); max > 0 && p.segIndex >= max {
			return nil, false, limitErr("max_segments", "more than %d segments", max)
		}
		p.beginHeaderBlock()
		return nil, true, nil
	default:
		return nil, false, newErr(KindInvalidBoundary, "garbage after delimiter")
	}
}
