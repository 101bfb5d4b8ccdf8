// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import "github.com/intuitivelabs/bytescase"

// transferEncodingT is a recognized Content-Transfer-Encoding value,
// adapted from the teacher parser's TrEncT/TrEncResolve
// (parse_tr_enc.go): a length-dispatched, case-insensitive byte compare
// rather than a generic string switch, since the values checked here are
// MIME transfer-encoding tokens with well-known fixed spellings.
type transferEncodingT uint8

const (
	teOther transferEncodingT = iota
	teBase64
	teQuotedPrintable
	teBinary
	te7bit
	te8bit
)

// recognizeTransferEncoding classifies a Content-Transfer-Encoding
// value. Non-goals (§1) exclude decoding base64/quoted-printable bodies;
// this package instead rejects segments declaring them outright.
func recognizeTransferEncoding(v []byte) transferEncodingT {
	switch len(v) {
	case 6:
		if bytescase.CmpEq(v, []byte("base64")) {
			return teBase64
		}
		if bytescase.CmpEq(v, []byte("binary")) {
			return teBinary
		}
	case 4:
		if bytescase.CmpEq(v, []byte("7bit")) {
			return te7bit
		}
		if bytescase.CmpEq(v, []byte("8bit")) {
			return te8bit
		}
	case 16:
		if bytescase.CmpEq(v, []byte("quoted-printable")) {
			return teQuotedPrintable
		}
	}
	return teOther
}

// transferEncodingUnsupported reports whether te is one this package
// refuses to accept on a multipart segment.
func transferEncodingUnsupported(te transferEncodingT) bool {
	return te == teBase64 || te == teQuotedPrintable
}
