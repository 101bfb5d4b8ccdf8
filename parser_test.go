// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package multipart

import (
	"bytes"
	"errors"
	"testing"
)

const testBoundary = "XBoundary"

// buildBody assembles a well-formed multipart/form-data body for
// testBoundary out of (headers, body) segment pairs.
func buildBody(segments [][2]string) []byte {
	var b bytes.Buffer
	for _, seg := range segments {
		b.WriteString("--" + testBoundary + "\r\n")
		b.WriteString(seg[0])
		b.WriteString("\r\n\r\n")
		b.WriteString(seg[1])
		b.WriteString("\r\n")
	}
	b.WriteString("--" + testBoundary + "--\r\n")
	return b.Bytes()
}

// drain feeds chunks to p and then signals EOF with a final empty
// Parse call, the way formdata.Builder does once its source reader is
// exhausted; this is needed to resolve a terminator's optional trailing
// CRLF (see TestParserLenientAcceptsMissingFinalCRLF).
func drain(t *testing.T, p *Parser, chunks [][]byte) []Event {
	t.Helper()
	var all []Event
	for _, c := range chunks {
		events, err := p.Parse(c)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		all = append(all, events...)
	}
	events, err := p.Parse(nil)
	if err != nil {
		t.Fatalf("Parse (EOF) error: %v", err)
	}
	all = append(all, events...)
	if !p.Done() {
		t.Fatalf("parser did not reach completion")
	}
	return all
}

func TestParserSingleTextField(t *testing.T) {
	body := buildBody([][2]string{
		{`Content-Disposition: form-data; name="field1"`, "value1"},
	})
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := drain(t, p, [][]byte{body})

	var header *SegmentHeader
	var data []byte
	sawEnd := false
	for _, ev := range events {
		switch ev.Kind {
		case EventSegmentHeader:
			header = ev.Header
		case EventBodyChunk:
			data = append(data, ev.Chunk.Data...)
		case EventSegmentEnd:
			sawEnd = true
		}
	}
	if header == nil || header.Name != "field1" {
		t.Fatalf("header = %+v", header)
	}
	if !sawEnd {
		t.Fatal("missing EventSegmentEnd")
	}
	if string(data) != "value1" {
		t.Fatalf("body = %q, want %q", data, "value1")
	}
}

func TestParserChunkBoundarySplit(t *testing.T) {
	body := buildBody([][2]string{
		{`Content-Disposition: form-data; name="a"`, "hello world"},
		{`Content-Disposition: form-data; name="b"`, "second value"},
	})

	// Feed one byte at a time: the delimiter, which spans several
	// bytes, will straddle many Parse calls.
	var chunks [][]byte
	for _, b := range body {
		chunks = append(chunks, []byte{b})
	}

	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := drain(t, p, chunks)

	var names []string
	var bodies []string
	var cur bytes.Buffer
	for _, ev := range events {
		switch ev.Kind {
		case EventSegmentHeader:
			names = append(names, ev.Header.Name)
			cur.Reset()
		case EventBodyChunk:
			cur.Write(ev.Chunk.Data)
		case EventSegmentEnd:
			bodies = append(bodies, cur.String())
		}
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
	if len(bodies) != 2 || bodies[0] != "hello world" || bodies[1] != "second value" {
		t.Fatalf("bodies = %v", bodies)
	}
}

func TestParserFileUpload(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0x01, 0xff, 0x80}, 256)
	body := buildBody([][2]string{
		{"Content-Disposition: form-data; name=\"upload\"; filename=\"a.bin\"\r\nContent-Type: application/octet-stream", string(payload)},
	})
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := drain(t, p, [][]byte{body[:100], body[100:]})

	var header *SegmentHeader
	var data []byte
	for _, ev := range events {
		switch ev.Kind {
		case EventSegmentHeader:
			header = ev.Header
		case EventBodyChunk:
			data = append(data, ev.Chunk.Data...)
		}
	}
	if header == nil || !header.HasFile || header.Filename != "a.bin" {
		t.Fatalf("header = %+v", header)
	}
	if header.ContentType != "application/octet-stream" {
		t.Fatalf("ContentType = %q", header.ContentType)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("body mismatch: got %d bytes, want %d", len(data), len(payload))
	}
}

func TestParserStrictRejectsBareLF(t *testing.T) {
	raw := "--" + testBoundary + "\r\n" +
		"Content-Disposition: form-data; name=\"a\"\n" + // bare LF, no CR
		"\r\n" +
		"value" +
		"\r\n--" + testBoundary + "--\r\n"

	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse([]byte(raw))
	if perr == nil {
		t.Fatal("expected strict mode to reject a bare LF line ending")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindInvalidLineBreak {
		t.Fatalf("err = %v, want KindInvalidLineBreak", perr)
	}
}

func TestParserLenientAlsoRejectsBareLF(t *testing.T) {
	raw := "--" + testBoundary + "\r\n" +
		"Content-Disposition: form-data; name=\"a\"\n" + // bare LF, no CR
		"\r\n" +
		"value" +
		"\r\n--" + testBoundary + "--\r\n"

	p, err := New(testBoundary, "", DefaultLimits(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse([]byte(raw))
	if perr == nil {
		t.Fatal("expected lenient mode to also reject a bare LF line ending")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindInvalidLineBreak {
		t.Fatalf("err = %v, want KindInvalidLineBreak", perr)
	}
}

func TestParserLenientToleratesNonEmptyPreamble(t *testing.T) {
	raw := "this is junk preamble text\r\nthat is not a dash-boundary\r\n" +
		string(buildBody([][2]string{
			{`Content-Disposition: form-data; name="a"`, "value"},
		}))

	p, err := New(testBoundary, "", DefaultLimits(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := drain(t, p, [][]byte{[]byte(raw)})
	found := false
	for _, ev := range events {
		if ev.Kind == EventSegmentHeader && ev.Header.Name == "a" {
			found = true
		}
	}
	if !found {
		t.Fatal("missing segment header event")
	}
}

func TestParserStrictRejectsNonEmptyPreamble(t *testing.T) {
	raw := "this is junk preamble text\r\nthat is not a dash-boundary\r\n" +
		string(buildBody([][2]string{
			{`Content-Disposition: form-data; name="a"`, "value"},
		}))

	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse([]byte(raw))
	if perr == nil {
		t.Fatal("expected strict mode to reject a non-empty preamble")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindStrict {
		t.Fatalf("err = %v, want KindStrict", perr)
	}
}

func TestParserLenientAcceptsMissingFinalCRLF(t *testing.T) {
	raw := "--" + testBoundary + "\r\n" +
		`Content-Disposition: form-data; name="a"` + "\r\n\r\n" +
		"value" +
		"\r\n--" + testBoundary + "--" // no trailing CRLF

	p, err := New(testBoundary, "", DefaultLimits(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drain(t, p, [][]byte{[]byte(raw)})
}

func TestParserStrictRejectsMissingFinalCRLF(t *testing.T) {
	raw := "--" + testBoundary + "\r\n" +
		`Content-Disposition: form-data; name="a"` + "\r\n\r\n" +
		"value" +
		"\r\n--" + testBoundary + "--" // no trailing CRLF

	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, perr := p.Parse([]byte(raw)); perr != nil {
		t.Fatalf("unexpected error before EOF: %v", perr)
	}
	_, perr := p.Parse(nil)
	if perr == nil {
		t.Fatal("expected strict mode to reject a missing final CRLF")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindStrict {
		t.Fatalf("err = %v, want KindStrict", perr)
	}
}

func TestParserHeaderTooLarge(t *testing.T) {
	longValue := bytes.Repeat([]byte("x"), 8192)
	body := buildBody([][2]string{
		{"Content-Disposition: form-data; name=\"a\"\r\nX-Long: " + string(longValue), "value"},
	})
	limits := DefaultLimits()
	p, err := New(testBoundary, "", limits, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse(body)
	if perr == nil {
		t.Fatal("expected a limit error for an oversized header block")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindLimitReached {
		t.Fatalf("err = %v, want KindLimitReached", perr)
	}
}

func TestParserMaxSegments(t *testing.T) {
	segs := make([][2]string, 3)
	for i := range segs {
		segs[i] = [2]string{`Content-Disposition: form-data; name="f"`, "v"}
	}
	body := buildBody(segs)
	limits := DefaultLimits()
	limits.MaxSegments = 2
	p, err := New(testBoundary, "", limits, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse(body)
	if perr == nil {
		t.Fatal("expected max segments limit error")
	}
	var me *Error
	if !errors.As(perr, &me) || me.Kind != KindLimitReached || me.Limit != "max_segments" {
		t.Fatalf("err = %v, want max_segments limit error", perr)
	}
}

func TestParserUnsupportedTransferEncoding(t *testing.T) {
	body := buildBody([][2]string{
		{"Content-Disposition: form-data; name=\"a\"\r\nContent-Transfer-Encoding: base64", "dmFsdWU="},
	})
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse(body)
	if !errors.Is(perr, ErrUnsupportedTransferEncoding) {
		t.Fatalf("err = %v, want ErrUnsupportedTransferEncoding", perr)
	}
}

func TestParserMissingDisposition(t *testing.T) {
	body := buildBody([][2]string{
		{"Content-Type: text/plain", "value"},
	})
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, perr := p.Parse(body)
	if !errors.Is(perr, ErrMissingDisposition) {
		t.Fatalf("err = %v, want ErrMissingDisposition", perr)
	}
}

func TestParserCloseFailsBeforeComplete(t *testing.T) {
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); !errors.Is(err, ErrParserState) {
		t.Fatalf("Close err = %v, want ErrParserState", err)
	}
	if p.Closed() {
		t.Fatal("expected Closed() == false after a failed Close")
	}
}

func TestParserCloseSucceedsAfterComplete(t *testing.T) {
	body := buildBody([][2]string{
		{`Content-Disposition: form-data; name="a"`, "value"},
	})
	p, err := New(testBoundary, "", DefaultLimits(), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drain(t, p, [][]byte{body})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.Closed() {
		t.Fatal("expected Closed() == true")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close should be idempotent, got: %v", err)
	}
	if _, err := p.Parse([]byte("x")); !errors.Is(err, ErrParserState) {
		t.Fatalf("err = %v, want ErrParserState", err)
	}
}
