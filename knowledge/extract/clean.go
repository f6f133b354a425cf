//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces      = regexp.MustCompile(`\s+`)
	reCamelJoin   = regexp.MustCompile(`([a-z])([A-Z])`)
	rePunctJoin   = regexp.MustCompile(`([.,?!;])([A-Za-z])`)
	reSentenceEnd = regexp.MustCompile(`\.\s+`)
	reColon       = regexp.MustCompile(`:\s+`)
)

// CleanText normalises extracted text before embedding: it repairs invalid
// UTF-8, applies NFC, collapses whitespace, separates words glued together by
// extraction and starts a new line after each sentence and colon.
func CleanText(text string) string {
	if !utf8.ValidString(text) {
		text = repairUTF8(text)
	}
	text = norm.NFC.String(text)
	text = reSpaces.ReplaceAllString(text, " ")
	text = reCamelJoin.ReplaceAllString(text, "$1 $2")
	text = rePunctJoin.ReplaceAllString(text, "$1 $2")
	text = reSentenceEnd.ReplaceAllString(text, ".\n")
	text = reColon.ReplaceAllString(text, ":\n")
	return strings.TrimSpace(text)
}

// repairUTF8 treats text as Windows-1252, the usual culprit for non UTF-8
// office exports, and falls back to dropping invalid bytes.
func repairUTF8(text string) string {
	decoded, err := charmap.Windows1252.NewDecoder().String(text)
	if err == nil && utf8.ValidString(decoded) {
		return decoded
	}
	return strings.ToValidUTF8(text, "")
}
