//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package fingerprint detects added and changed files of the document
// directory by comparing SHA-256 content hashes with the last recorded ones.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"trpc.group/trpc-go/trpc-rag-go/errs"
)

// Fingerprint is the recorded state of one tracked file.
type Fingerprint struct {
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Table maps file names (slash separated, relative to the directory) to
// their fingerprints.
type Table map[string]Fingerprint

// Diff is the result of comparing a directory with a previous Table.
type Diff struct {
	New       []string
	Changed   []string
	Unchanged []string
	// Deleted lists files recorded in the previous table that no longer exist.
	Deleted []string
	// Current holds the fingerprints computed during the scan.
	Current Table
}

// HasChanges reports whether any file is new or changed.
func (d *Diff) HasChanges() bool {
	return len(d.New) > 0 || len(d.Changed) > 0
}

// Pending returns the new and changed files, sorted.
func (d *Diff) Pending() []string {
	out := append(slices.Clone(d.New), d.Changed...)
	slices.Sort(out)
	return out
}

// Compute returns the hex SHA-256 digest of the file content.
func Compute(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.ErrIO, "fingerprint open", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap(errs.ErrIO, "fingerprint read "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Tracker scans a directory. By default it looks at the regular, non hidden
// files directly inside the directory.
type Tracker struct {
	include   []string
	exclude   []string
	recursive bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInclude limits tracking to names matching any doublestar pattern.
func WithInclude(patterns ...string) Option {
	return func(t *Tracker) { t.include = append(t.include, patterns...) }
}

// WithExclude drops names matching any doublestar pattern.
func WithExclude(patterns ...string) Option {
	return func(t *Tracker) { t.exclude = append(t.exclude, patterns...) }
}

// WithRecursive descends into sub directories.
func WithRecursive(recursive bool) Option {
	return func(t *Tracker) { t.recursive = recursive }
}

// NewTracker creates a Tracker and validates its patterns.
func NewTracker(opts ...Option) (*Tracker, error) {
	t := &Tracker{}
	for _, opt := range opts {
		opt(t)
	}
	for _, p := range append(slices.Clone(t.include), t.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("fingerprint: invalid pattern %q", p)
		}
	}
	return t, nil
}

// Match reports whether the relative name is tracked.
func (t *Tracker) Match(name string) bool {
	for _, p := range t.exclude {
		if doublestar.MatchUnvalidated(p, name) {
			return false
		}
	}
	if len(t.include) == 0 {
		return true
	}
	for _, p := range t.include {
		if doublestar.MatchUnvalidated(p, name) {
			return true
		}
	}
	return false
}

// Scan lists the tracked files of dir and fingerprints them.
func (t *Tracker) Scan(dir string) (Table, error) {
	current := make(Table)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if !t.recursive || hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !t.Match(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hash, err := Compute(path)
		if err != nil {
			return err
		}
		current[name] = Fingerprint{Filename: name, ContentHash: hash, ModifiedAt: info.ModTime().UTC()}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrIO) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrIO, "fingerprint scan "+dir, err)
	}
	return current, nil
}

// Diff scans dir and classifies every tracked file against previous. It has
// no side effects; persisting the new table is up to the caller.
func (t *Tracker) Diff(dir string, previous Table) (*Diff, error) {
	current, err := t.Scan(dir)
	if err != nil {
		return nil, err
	}
	d := &Diff{Current: current}
	for _, name := range slices.Sorted(maps.Keys(current)) {
		prev, ok := previous[name]
		switch {
		case !ok:
			d.New = append(d.New, name)
		case prev.ContentHash != current[name].ContentHash:
			d.Changed = append(d.Changed, name)
		default:
			d.Unchanged = append(d.Unchanged, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(previous)) {
		if _, ok := current[name]; !ok {
			d.Deleted = append(d.Deleted, name)
		}
	}
	return d, nil
}

// Apply returns a copy of previous updated with the current fingerprints of
// files. With prune set, records of deleted files are dropped; otherwise they
// are kept as stale entries.
func Apply(previous Table, d *Diff, files []string, prune bool) Table {
	next := maps.Clone(previous)
	if next == nil {
		next = make(Table)
	}
	for _, f := range files {
		if fp, ok := d.Current[f]; ok {
			next[f] = fp
		}
	}
	if prune {
		for _, f := range d.Deleted {
			delete(next, f)
		}
	}
	return next
}
