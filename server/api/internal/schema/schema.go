//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package schema defines the JSON payloads of the chat HTTP API. These types
// are internal; they only exist to facilitate request/response marshalling.
package schema

import (
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-rag-go/session"
)

// Status values of StatusResponse.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// -----------------------------------------------------------------------------
// Incoming request payloads ----------------------------------------------------
// -----------------------------------------------------------------------------

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Email       string             `json:"email"`
	Question    string             `json:"question"`
	ChatID      string             `json:"chat_id,omitempty"`
	ChatHistory []session.ChatTurn `json:"chat_history,omitempty"`
	StartTime   string             `json:"start_time,omitempty"`
}

// EmailRequest is the body of POST /validate_email.
type EmailRequest struct {
	Email string `json:"email"`
}

// StopChatRequest is the body of POST /stop_chat.
type StopChatRequest struct {
	ChatID string `json:"chat_id"`
}

// TokenCountRequest is the body of POST /get_token_count_from_input. Older
// clients send the text as question.
type TokenCountRequest struct {
	Input    string `json:"input"`
	Question string `json:"question,omitempty"`
}

// Text returns the text to count.
func (r TokenCountRequest) Text() string {
	if r.Input != "" {
		return r.Input
	}
	return r.Question
}

// -----------------------------------------------------------------------------
// Outgoing response payloads ---------------------------------------------------
// -----------------------------------------------------------------------------

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Status       string             `json:"status"`
	Answer       string             `json:"answer"`
	TokensCount  int                `json:"tokens_count"`
	ChatHistory  []session.ChatTurn `json:"chat_history"`
	ChatID       string             `json:"chat_id"`
	Cached       bool               `json:"cached"`
	SessionEnded bool               `json:"session_ended"`
}

// StatusResponse carries a status and a human readable message.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatErrorResponse is the body of POST /chat when the model fails. ChatID
// identifies the session a new chat was opened with, so the client can
// resend the question in it.
type ChatErrorResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Question string `json:"question"`
	ChatID   string `json:"chat_id"`
}

// StartChatResponse is the body of GET /start_chat.
type StartChatResponse struct {
	ChatID string `json:"chat_id"`
}

// MessageResponse is the body of POST /stop_chat.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenCountResponse is the body of POST /get_token_count_from_input.
type TokenCountResponse struct {
	TokensCount int `json:"tokens_count"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	IndexState string `json:"index_state,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Fragments  int    `json:"fragments"`
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseStartTime parses an ISO-8601 start time. Times without a zone are
// read in loc. An empty string yields the zero time.
func ParseStartTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_time %q", s)
}
