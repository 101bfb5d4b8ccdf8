// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

// Limits bounds the resources a Parser (and, transitively, a
// formdata.Builder) will consume parsing a single request, as a defense
// against maliciously or accidentally oversized multipart bodies. A zero
// value for any *Size/*Count field except MaxSegments/MaxHeaderCount
// means "unlimited"; MaxSegments and MaxHeaderCount of zero mean "use the
// package default" — pass NoLimit explicitly for genuinely unlimited.
// New replaces a Limits whose fields are all zero with DefaultLimits.
type Limits struct {
	// MaxHeaderSize bounds the total bytes of one segment's header
	// block (all header lines plus the terminating blank line).
	MaxHeaderSize int

	// MaxHeaderLine bounds a single header line's length.
	MaxHeaderLine int

	// MaxHeaderCount bounds the number of header lines per segment.
	MaxHeaderCount int

	// MaxSegments bounds the total number of segments in the stream.
	// The (N+1)th segment is rejected at its dash-boundary.
	MaxSegments int

	// MaxSegmentSize bounds the body bytes of a single segment. Zero
	// means unlimited (callers typically rely on MaxBodySize instead).
	MaxSegmentSize int64

	// MaxBodySize bounds the cumulative body bytes across all segments.
	// Zero means unlimited.
	MaxBodySize int64

	// CountHeadersInBody, if true, counts header block bytes against
	// MaxBodySize. Historical implementations of this parser do not;
	// see SPEC_FULL.md Open Questions #1.
	CountHeadersInBody bool
}

// NoLimit is the sentinel meaning "no cap", for fields that otherwise
// default to a non-zero package default (MaxSegments, MaxHeaderCount).
const NoLimit = -1

// DefaultLimits mirrors the configuration table in the specification:
// generous enough for ordinary browser form submissions, small enough to
// bound a single request's resource consumption.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderSize:  4096,
		MaxHeaderLine:  4096,
		MaxHeaderCount: 8,
		MaxSegments:    128,
		MaxSegmentSize: 0, // unlimited; bounded by MaxBodySize/disk limit upstream
		MaxBodySize:    0,
	}
}

func (l Limits) maxSegments() int {
	if l.MaxSegments == 0 {
		return DefaultLimits().MaxSegments
	}
	if l.MaxSegments == NoLimit {
		return 0
	}
	return l.MaxSegments
}

func (l Limits) maxHeaderCount() int {
	if l.MaxHeaderCount == 0 {
		return DefaultLimits().MaxHeaderCount
	}
	if l.MaxHeaderCount == NoLimit {
		return 0
	}
	return l.MaxHeaderCount
}
