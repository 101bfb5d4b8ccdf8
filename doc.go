// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package multipart implements an incremental, non-blocking parser for
// HTTP multipart/form-data message bodies (RFC 7578). The parser consumes
// arbitrary-length byte chunks at arbitrary boundaries and emits a stream
// of typed events without ever requiring the caller to buffer an entire
// request body.
//
// The core type is Parser: construct one with New, feed it chunks with
// Parse, and drain the returned events before feeding the next chunk. For
// most callers, package formdata (github.com/coreware/multipart/formdata)
// is a better starting point: it drives a Parser from a blocking byte
// source and materializes each segment into an in-memory or on-disk Part.
package multipart
