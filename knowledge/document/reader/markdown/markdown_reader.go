//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package markdown provides the markdown document reader. Markup is stripped
// by walking the goldmark AST so only readable text is embedded.
package markdown

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
)

func init() {
	reader.RegisterReader([]string{".md", ".markdown"}, func() reader.Reader { return New() })
}

// Reader reads markdown documents.
type Reader struct {
	md goldmark.Markdown
}

// New creates a markdown reader.
func New() *Reader {
	return &Reader{md: goldmark.New()}
}

// ReadFromReader implements reader.Reader.
func (r *Reader) ReadFromReader(name string, rd io.Reader) ([]*document.Document, error) {
	src, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	doc := document.New(r.PlainText(src), name)
	if doc.IsEmpty() {
		return nil, nil
	}
	return []*document.Document{doc}, nil
}

// ReadFromFile implements reader.Reader.
func (r *Reader) ReadFromFile(filePath string) ([]*document.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.ReadFromReader(filepath.Base(filePath), f)
}

// PlainText renders markdown source as text, one block per line.
func (r *Reader) PlainText(src []byte) string {
	root := r.md.Parser().Parse(text.NewReader(src))
	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					b.WriteByte('\n')
				case node.SoftLineBreak():
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				newline()
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				newline()
				return ast.WalkSkipChildren, nil
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				newline()
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// Name implements reader.Reader.
func (r *Reader) Name() string {
	return "MarkdownReader"
}
