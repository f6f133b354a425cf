//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package model

// Role is the author of a chat message.
type Role string

// Roles understood by chat completion endpoints.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string { return string(r) }

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is one entry of a prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage returns a system prompt message.
func NewSystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// NewUserMessage returns a user message.
func NewUserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// NewAssistantMessage returns an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// GenerationConfig holds sampling parameters. Nil pointers leave the
// provider default in place.
type GenerationConfig struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	// Stream asks for partial responses before the final one.
	Stream bool     `json:"stream"`
	Stop   []string `json:"stop,omitempty"`
}

// Request is a prompt plus sampling parameters.
type Request struct {
	Messages []Message `json:"messages"`
	GenerationConfig `json:",inline"`
}
