//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-rag-go/errs"
)

// DefaultEmailPattern accepts IITM BS degree student addresses.
const DefaultEmailPattern = `^\d{2}f\d{7}@ds\.study\.iitm\.ac\.in$`

// DefaultAllowList holds addresses accepted regardless of the pattern.
var DefaultAllowList = []string{"nitin@ee.iitm.ac.in", "lalitmach22@gmail.com"}

// EmailValidator accepts addresses matching a pattern or present in an
// allow-list.
type EmailValidator struct {
	pattern *regexp.Regexp
	allow   map[string]struct{}
}

// NewEmailValidator compiles pattern. An empty pattern accepts only the
// allow-list.
func NewEmailValidator(pattern string, allow []string) (*EmailValidator, error) {
	v := &EmailValidator{allow: make(map[string]struct{}, len(allow))}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile email pattern: %w", err)
		}
		v.pattern = re
	}
	for _, a := range allow {
		v.allow[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return v, nil
}

// Validate returns an error matching errs.ErrValidation if email is not
// accepted.
func (v *EmailValidator) Validate(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errs.New(errs.ErrValidation, "validate email", "email is required")
	}
	if _, ok := v.allow[strings.ToLower(email)]; ok {
		return nil
	}
	if v.pattern != nil && v.pattern.MatchString(email) {
		return nil
	}
	return errs.New(errs.ErrValidation, "validate email", "invalid email format")
}
