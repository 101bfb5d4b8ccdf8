// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package formdata

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/coreware/multipart"
)

// Part is one field of a parsed multipart/form-data body. A Part with a
// Filename is a file upload; one without is a plain form field, which
// Builder still hands back as a Part when it is too large for Form.Values.
// Either kind's content may have been spooled to a temporary file rather
// than held in memory, depending on Builder's configured MemFileLimit.
type Part struct {
	// Name is the Content-Disposition "name" parameter.
	Name string
	// Filename is the Content-Disposition "filename" parameter, empty
	// for plain value parts.
	Filename string
	// ContentType is the part's Content-Type primary value (or the
	// RFC 7578 implicit default).
	ContentType string
	// Headers holds every header the segment carried, in wire order.
	Headers []multipart.HeaderField
	// Size is the number of body bytes the part contains.
	Size int64

	content []byte // set when the part is held in memory
	tmpfile string // set when the part was spooled to disk
}

// Header returns the first value of the named header, case insensitive.
func (p *Part) Header(name string) (string, bool) {
	for _, h := range p.Headers {
		if len(h.Name) == len(name) && equalFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// InMemory reports whether the part's content is held in memory rather
// than spooled to a temporary file.
func (p *Part) InMemory() bool {
	return p.tmpfile == ""
}

// Value returns the part's content decoded as a string. It only
// succeeds for a part still held in memory: a part large enough to
// have been spooled to disk is, by definition, too large to decode
// implicitly, and callers must read it with Open instead.
func (p *Part) Value() (string, error) {
	if !p.InMemory() {
		return "", fmt.Errorf("formdata: part %q was spooled to disk, use Open instead of Value", p.Name)
	}
	return string(p.content), nil
}

// Raw returns the part's content as a byte slice, the counterpart to
// Value for callers that want the undecoded bytes. Like Value, it only
// succeeds for a part still held in memory.
func (p *Part) Raw() ([]byte, error) {
	if !p.InMemory() {
		return nil, fmt.Errorf("formdata: part %q was spooled to disk, use Open instead of Raw", p.Name)
	}
	return append([]byte(nil), p.content...), nil
}

// File is a readable, seekable handle onto a Part's content, mirroring
// mime/multipart.File: in-memory parts are backed by a bytes.Reader
// section, disk-spooled parts by the temporary *os.File.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

type memFile struct {
	*io.SectionReader
}

func (memFile) Close() error { return nil }

// Open returns a File positioned at the start of the part's content.
func (p *Part) Open() (File, error) {
	if p.InMemory() {
		return memFile{io.NewSectionReader(bytes.NewReader(p.content), 0, int64(len(p.content)))}, nil
	}
	return os.Open(p.tmpfile)
}

// SaveAs moves (or, across filesystems, copies) the part's content to
// path, the rename semantics a file upload handler almost always wants:
// a disk-spooled part is renamed in place when possible; an in-memory
// part is written out fresh. After SaveAs succeeds the Part no longer
// owns a temporary file, so Close becomes a no-op.
func (p *Part) SaveAs(path string) error {
	if p.InMemory() {
		return os.WriteFile(path, p.content, 0o600)
	}
	if err := os.Rename(p.tmpfile, path); err == nil {
		p.tmpfile = ""
		return nil
	}
	src, err := os.Open(p.tmpfile)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := os.Remove(p.tmpfile); err != nil {
		return err
	}
	p.tmpfile = ""
	return nil
}

// Close removes the part's temporary file, if any. Closing an
// already-saved or in-memory part is a no-op.
func (p *Part) Close() error {
	if p.tmpfile == "" {
		return nil
	}
	err := os.Remove(p.tmpfile)
	p.tmpfile = ""
	return err
}
