// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command multipartctl parses a multipart/form-data body from disk and
// prints its parts, for inspecting captured request bodies or
// exercising the parser's limits and charset handling from a shell.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreware/multipart"
	"github.com/coreware/multipart/formdata"
)

var (
	boundary     string
	charset      string
	strict       bool
	memFileLimit int64
	maxSegments  int
	maxBodySize  int64
	verbose      bool
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

var rootCmd = &cobra.Command{
	Use:   "multipartctl FILE",
	Short: "Inspect a multipart/form-data body",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.Flags().StringVar(&boundary, "boundary", "", "multipart boundary (required)")
	rootCmd.Flags().StringVar(&charset, "charset", "", "header value charset (default us-ascii/utf-8)")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "reject a non-empty preamble and a missing final CRLF")
	rootCmd.Flags().Int64Var(&memFileLimit, "mem-limit", 0, "bytes a part may use in memory before spooling to disk")
	rootCmd.Flags().IntVar(&maxSegments, "max-segments", 0, "maximum number of segments (0 = package default)")
	rootCmd.Flags().Int64Var(&maxBodySize, "max-body-size", 0, "maximum cumulative body size in bytes (0 = unlimited)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log parse diagnostics to stderr")
	_ = rootCmd.MarkFlagRequired("boundary")
}

func runDump(cmd *cobra.Command, args []string) error {
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		logger.Error("open failed", "path", path, "err", err)
		return err
	}
	defer f.Close()

	limits := multipart.DefaultLimits()
	if maxSegments > 0 {
		limits.MaxSegments = maxSegments
	}
	if maxBodySize > 0 {
		limits.MaxBodySize = maxBodySize
	}

	if verbose {
		logger.Debug("parsing", "path", path, "boundary", boundary, "strict", strict, "charset", charset)
	}

	b := formdata.Builder{
		Limits:       limits,
		Strict:       strict,
		MemFileLimit: memFileLimit,
	}
	form, err := b.Build(f, boundary, charset)
	if err != nil {
		logger.Error("parse failed", "path", path, "err", err)
		return fmt.Errorf("parse: %w", err)
	}
	defer form.Close()

	if verbose {
		logger.Debug("parsed", "fields", len(form.Values.Keys()), "files", len(form.Files))
	}

	for _, key := range form.Values.Keys() {
		for _, v := range form.Values.GetAll(key) {
			fmt.Printf("value  %-20s %q\n", key, v)
		}
	}
	for name, parts := range form.Files {
		for _, p := range parts {
			backing := "memory"
			if !p.InMemory() {
				backing = "disk"
			}
			fmt.Printf("file   %-20s filename=%q content-type=%q size=%d backing=%s\n",
				name, p.Filename, p.ContentType, p.Size, backing)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
