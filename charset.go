// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// decodeCharset decodes b, which is assumed to be in the named IANA
// charset, into a Go string (UTF-8). An empty charset, or "us-ascii" or
// "utf-8", is a cheap passthrough: header values on the wire are, in
// the overwhelming majority of cases, already valid UTF-8, and this
// package should not pay the cost of a full transcode for them.
//
// Anything else is resolved through golang.org/x/text/encoding/ianaindex,
// the same mechanism github.com/zostay/go-email's encoding package wraps
// for mime.CharsetDecoder. charmap is imported for its init-time
// registration of the single-byte IANA charsets ianaindex.MIME consults
// (windows-125x, iso-8859-*), which otherwise are never linked in.
func decodeCharset(charsetName string, b []byte) (string, *Error) {
	switch strings.ToLower(strings.TrimSpace(charsetName)) {
	case "", "us-ascii", "ascii", "utf-8", "utf8":
		return string(b), nil
	}
	enc, err := ianaindex.MIME.Encoding(charsetName)
	if err != nil || enc == nil {
		return "", newErr(KindInvalidHeader, "unsupported charset %q", charsetName)
	}
	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", newErr(KindInvalidHeader, "invalid %s byte sequence: %v", charsetName, err)
	}
	return string(decoded), nil
}

// keep the charmap import alive for its encoding registrations; nothing
// in this file references the package's exported symbols directly.
var _ = charmap.ISO8859_1
