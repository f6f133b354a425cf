//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package reader

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
)

// Constructor is a function that creates a new Reader instance.
type Constructor func() Reader

// Registry maps lower case extensions (with the dot) to reader constructors.
// Readers are built lazily and cached.
type Registry struct {
	mu          sync.Mutex
	readers     map[string]Constructor
	initialized map[string]Reader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers:     make(map[string]Constructor),
		initialized: make(map[string]Reader),
	}
}

var globalRegistry = NewRegistry()

// Default returns the process wide registry that reader packages register into.
func Default() *Registry {
	return globalRegistry
}

// RegisterReader registers constructor in the default registry.
func RegisterReader(extensions []string, constructor Constructor) {
	globalRegistry.Register(extensions, constructor)
}

// GetReader looks up a reader in the default registry.
func GetReader(extension string) (Reader, bool) {
	return globalRegistry.Get(extension)
}

// Register registers constructor for every extension in extensions.
func (r *Registry) Register(extensions []string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		r.readers[ext] = constructor
		delete(r.initialized, ext)
	}
}

// Get returns the reader for extension.
func (r *Registry) Get(extension string) (Reader, bool) {
	ext := normalizeExt(extension)
	r.mu.Lock()
	defer r.mu.Unlock()
	if rd, ok := r.initialized[ext]; ok {
		return rd, true
	}
	constructor, ok := r.readers[ext]
	if !ok {
		return nil, false
	}
	rd := constructor()
	r.initialized[ext] = rd
	return rd, true
}

// Supports reports whether a reader is registered for path's extension.
func (r *Registry) Supports(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.readers[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions returns the sorted registered extensions.
func (r *Registry) Extensions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	exts := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// ReadFile reads path with the reader registered for its extension and tags
// every document with the file name.
func (r *Registry) ReadFile(path string) ([]*document.Document, error) {
	ext := filepath.Ext(path)
	rd, ok := r.Get(ext)
	if !ok {
		return nil, &UnsupportedError{Ext: ext}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	docs, err := rd.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	for _, d := range docs {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any)
		}
		d.Metadata[document.MetaFileName] = name
		d.Metadata[document.MetaFileExt] = normalizeExt(ext)
	}
	return docs, nil
}

// UnsupportedError reports a file extension without a registered reader.
type UnsupportedError struct {
	Ext string
}

func (e *UnsupportedError) Error() string {
	return "reader: unsupported extension " + e.Ext
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
