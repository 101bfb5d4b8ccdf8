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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coreware/multipart"
)

var (
	partsSpooled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "formdata",
			Name:      "parts_spooled_total",
			Help:      "Total number of parts spooled to a temporary file.",
		},
	)

	diskBytesSpooled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multipart",
			Subsystem: "formdata",
			Name:      "disk_bytes_spooled_total",
			Help:      "Total number of body bytes written to temporary files.",
		},
	)
)

// Builder drives a multipart.Parser from a blocking byte source and
// assembles a Form, spilling individual parts to a temporary file once
// their content outgrows MemFileLimit, the same two-tier strategy
// net/http's multipart form reader uses (buffer in memory up to a
// threshold, then flush to disk and keep copying).
type Builder struct {
	// Limits bounds the underlying multipart.Parser; the zero value is
	// multipart.DefaultLimits().
	Limits multipart.Limits
	// Strict enables strict mode on the parser: a non-empty preamble and
	// a missing final CRLF after the terminator are rejected.
	Strict bool

	// MemFileLimit is the largest single part this Builder will hold
	// entirely in memory before spooling it to a temporary file. Zero
	// selects a 256 KiB default.
	MemFileLimit int64
	// MemLimit bounds the cumulative bytes this Builder will decode into
	// plain field values across one Build call. A fieldless part that
	// would push the running total past MemLimit is classified as a
	// file instead of a value, so the caller reads it via Open/SaveAs
	// rather than pulling it entirely into memory. Zero selects a 2 MiB
	// default.
	MemLimit int64
	// SpoolLimit bounds the size of any one disk-spooled part. Zero
	// means unlimited (bounded instead by DiskLimit and Limits).
	SpoolLimit int64
	// DiskLimit bounds the cumulative bytes this Builder will write to
	// temporary files across every part of one Build call. Zero means
	// unlimited.
	DiskLimit int64
	// TempDir is passed to os.CreateTemp for spooled parts; "" selects
	// the OS default.
	TempDir string
	// ReadSize is the chunk size read from the source on each
	// iteration. Zero selects a 32 KiB default.
	ReadSize int
}

const (
	defaultMemFileLimit = 256 << 10
	defaultMemLimit     = 2 << 20
	defaultReadSize     = 32 << 10
)

// Form is the result of a successful Build: the plain field values and
// the file parts, both keyed by Content-Disposition name. Close removes
// every temporary file any Part in Files still owns; callers must defer
// it once Build succeeds.
type Form struct {
	Values *Values
	Files  map[string][]*Part

	all []*Part
}

// Close releases every temporary file backing a Part of this Form.
func (f *Form) Close() error {
	var firstErr error
	for _, p := range f.all {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build reads r to completion (a blocking byte source; r.Read may block
// in the caller the way a request body's Read does), parsing it as a
// multipart/form-data body with the given boundary and header charset.
//
// On any error, every temporary file created during this call is
// removed before returning: a failed build leaves nothing behind for
// the caller to clean up.
func (b *Builder) Build(r io.Reader, boundary, charset string) (form *Form, err error) {
	p, perr := multipart.New(boundary, charset, b.Limits, b.Strict)
	if perr != nil {
		return nil, perr
	}

	built := &Form{Values: NewValues(), Files: make(map[string][]*Part)}
	form = built
	defer func() {
		if err != nil {
			built.Close()
			form = nil
		}
	}()

	readSize := b.ReadSize
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	buf := make([]byte, readSize)

	var cur *partBuild
	defer func() {
		// a part still being built is not yet in the Form: drop its
		// temporary file here
		if err != nil && cur != nil && cur.file != nil {
			name := cur.file.Name()
			cur.file.Close()
			os.Remove(name)
		}
	}()
	var diskUsed int64
	var valuesMemUsed int64

	memLimit := b.MemLimit
	if memLimit <= 0 {
		memLimit = defaultMemLimit
	}

	handle := func(events []multipart.Event) error {
		for _, ev := range events {
			switch ev.Kind {
			case multipart.EventSegmentHeader:
				cur = &partBuild{
					part: &Part{
						Name:        ev.Header.Name,
						Filename:    ev.Header.Filename,
						ContentType: ev.Header.ContentType,
						Headers:     append([]multipart.HeaderField(nil), ev.Header.Headers...),
					},
				}
			case multipart.EventBodyChunk:
				if cur == nil {
					continue
				}
				if err := b.appendChunk(cur, ev.Chunk.Data, &diskUsed); err != nil {
					return err
				}
			case multipart.EventSegmentEnd:
				if cur == nil {
					continue
				}
				if err := b.finalize(cur); err != nil {
					return err
				}
				form.all = append(form.all, cur.part)
				switch {
				case cur.part.Filename != "":
					form.Files[cur.part.Name] = append(form.Files[cur.part.Name], cur.part)
				case cur.part.InMemory() && valuesMemUsed+cur.part.Size <= memLimit:
					v, verr := cur.part.Value()
					if verr != nil {
						return verr
					}
					form.Values.Add(cur.part.Name, v)
					valuesMemUsed += cur.part.Size
				default:
					// an oversized text field: over the in-memory
					// aggregate budget (or already spooled to disk),
					// so it is handed back as a file instead.
					form.Files[cur.part.Name] = append(form.Files[cur.part.Name], cur.part)
				}
				cur = nil
			}
		}
		return nil
	}

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			events, perr := p.Parse(buf[:n])
			if herr := handle(events); herr != nil {
				return nil, herr
			}
			if perr != nil {
				return nil, perr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	// signal EOF so the parser can resolve a terminator's optional
	// trailing CRLF instead of waiting forever for bytes that will
	// never come.
	events, perr := p.Parse(nil)
	if herr := handle(events); herr != nil {
		return nil, herr
	}
	if perr != nil {
		return nil, perr
	}
	if !p.Done() {
		return nil, fmt.Errorf("formdata: body ended before the closing boundary")
	}
	return form, nil
}

// partBuild accumulates one in-flight part's body: a memory buffer
// until MemFileLimit is crossed, then a spooled temp file.
type partBuild struct {
	part *Part
	buf  bytes.Buffer
	file *os.File
}

func (b *Builder) appendChunk(cur *partBuild, data []byte, diskUsed *int64) error {
	if cur.file != nil {
		return b.writeSpool(cur, data, diskUsed)
	}

	memLimit := b.MemFileLimit
	if memLimit <= 0 {
		memLimit = defaultMemFileLimit
	}
	if int64(cur.buf.Len()+len(data)) <= memLimit {
		cur.buf.Write(data)
		return nil
	}

	// crossing the threshold: spool the buffered prefix plus this chunk
	f, err := os.CreateTemp(b.TempDir, "multipart-"+uuid.NewString()+"-*.part")
	if err != nil {
		return err
	}
	cur.file = f
	partsSpooled.Inc()
	if err := b.writeSpool(cur, cur.buf.Bytes(), diskUsed); err != nil {
		return err
	}
	cur.buf.Reset()
	return b.writeSpool(cur, data, diskUsed)
}

func (b *Builder) writeSpool(cur *partBuild, data []byte, diskUsed *int64) error {
	if len(data) == 0 {
		return nil
	}
	if b.SpoolLimit > 0 && cur.part.Size+int64(len(data)) > b.SpoolLimit {
		return fmt.Errorf("formdata: part %q exceeds spool limit of %d bytes", cur.part.Name, b.SpoolLimit)
	}
	if b.DiskLimit > 0 && *diskUsed+int64(len(data)) > b.DiskLimit {
		return fmt.Errorf("formdata: cumulative disk spool exceeds limit of %d bytes", b.DiskLimit)
	}
	if _, err := cur.file.Write(data); err != nil {
		return err
	}
	cur.part.Size += int64(len(data))
	*diskUsed += int64(len(data))
	diskBytesSpooled.Add(float64(len(data)))
	return nil
}

func (b *Builder) finalize(cur *partBuild) error {
	if cur.file != nil {
		name := cur.file.Name()
		if err := cur.file.Close(); err != nil {
			os.Remove(name)
			return err
		}
		cur.part.tmpfile = name
		return nil
	}
	cur.part.content = append([]byte(nil), cur.buf.Bytes()...)
	cur.part.Size = int64(len(cur.part.content))
	return nil
}
