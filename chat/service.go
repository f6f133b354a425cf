//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package chat answers user questions from the document index, the semantic
// cache and a language model, keeping per-session history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/semcache"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/session"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

const (
	// DefaultStopWord ends the session when sent as the question.
	DefaultStopWord = "stop"
	// EndMessage is returned when a session ends and its history is saved.
	EndMessage = "Session data successfully saved. Please refresh to start a new session."
	// PendingSaveMessage is returned when a session ends but saving its
	// history failed; it is retried later.
	PendingSaveMessage = "Session ended. Your chat history will be saved shortly."
	// FailureMessage is the answer shown when the model could not be reached.
	FailureMessage = "An error occurred while processing your input. Please try again."
)

// Indexer yields the current document index.
type Indexer interface {
	Index(ctx context.Context) (*vectorstore.Index, error)
}

// TokenCounter counts model tokens of a text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// RetrievalConfig controls document retrieval.
type RetrievalConfig struct {
	// K is the number of documents passed to the model.
	K int `yaml:"k"`
	// FetchK is the number of nearest fragments re-ranked by MMR.
	FetchK int `yaml:"fetch_k"`
	// Lambda is the MMR relevance/diversity weight.
	Lambda float64 `yaml:"lambda"`
}

// DefaultRetrievalConfig returns the default retrieval parameters.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{K: 4, FetchK: 20, Lambda: 0.5}
}

// Request is one user question.
type Request struct {
	Email    string
	Question string
	// ChatID is empty for a new chat.
	ChatID string
	// History and StartTime restore a chat the server no longer holds.
	History   []session.ChatTurn
	StartTime time.Time
}

// Response is the outcome of a question.
type Response struct {
	Answer       string
	Question     string
	TokensCount  int
	History      []session.ChatTurn
	ChatID       string
	Cached       bool
	SessionEnded bool
}

// Service handles chat requests. It is safe for concurrent use.
type Service struct {
	sessions  *session.Manager
	indexer   Indexer
	embedder  embedder.Embedder
	completer *Completer
	cache     *semcache.Cache
	counter   TokenCounter
	validator *EmailValidator
	retrieval RetrievalConfig
	stopWord  string
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the semantic answer cache.
func WithCache(c *semcache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTokenCounter sets the counter of tokens sent to the model.
func WithTokenCounter(c TokenCounter) Option {
	return func(s *Service) { s.counter = c }
}

// WithEmailValidator replaces the default validator.
func WithEmailValidator(v *EmailValidator) Option {
	return func(s *Service) { s.validator = v }
}

// WithRetrieval sets the retrieval parameters.
func WithRetrieval(cfg RetrievalConfig) Option {
	return func(s *Service) { s.retrieval = cfg }
}

// WithStopWord sets the question that ends a session. Empty disables it.
func WithStopWord(w string) Option {
	return func(s *Service) { s.stopWord = w }
}

// NewService wires a Service.
func NewService(
	sessions *session.Manager,
	indexer Indexer,
	emb embedder.Embedder,
	completer *Completer,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		sessions:  sessions,
		indexer:   indexer,
		embedder:  emb,
		completer: completer,
		retrieval: DefaultRetrievalConfig(),
		stopWord:  DefaultStopWord,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		v, err := NewEmailValidator(DefaultEmailPattern, DefaultAllowList)
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	if s.retrieval.K <= 0 {
		s.retrieval.K = DefaultRetrievalConfig().K
	}
	return s, nil
}

// ValidateEmail checks email against the configured policy.
func (s *Service) ValidateEmail(email string) error {
	return s.validator.Validate(email)
}

// StartChat issues a chat id. With an email the session starts now;
// otherwise it starts with the first question.
func (s *Service) StartChat(email string) (string, error) {
	if email == "" {
		return uuid.NewString(), nil
	}
	if err := s.validator.Validate(email); err != nil {
		return "", err
	}
	sess, err := s.sessions.Start(email)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// StopChat ends chatID and flushes its history. A failed flush is not an
// error for the caller; the session is retried by the janitor.
func (s *Service) StopChat(ctx context.Context, chatID string) (string, error) {
	if chatID == "" {
		return "", errs.New(errs.ErrValidation, "stop chat", "chat_id is required")
	}
	if err := s.sessions.Stop(chatID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return "", errs.New(errs.ErrValidation, "stop chat", "unknown chat_id %q", chatID)
		}
		return "", err
	}
	if _, err := s.sessions.CheckExpiry(ctx, chatID); err != nil {
		return PendingSaveMessage, nil
	}
	return EndMessage, nil
}

// TokenCount returns the number of model tokens of input.
func (s *Service) TokenCount(input string) (int, error) {
	if s.counter == nil {
		return 0, nil
	}
	return s.counter.Count(input)
}

// Process answers req. On a model failure the returned Response carries
// FailureMessage and the original question, history is left untouched and
// the error matches errs.ErrModel.
func (s *Service) Process(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := trace.Tracer.Start(ctx, trace.SpanChat)
	defer span.End()

	rsp, err := s.process(ctx, req)
	if rsp != nil {
		span.SetAttributes(
			attribute.String(trace.KeyChatID, rsp.ChatID),
			attribute.Bool(trace.KeyCached, rsp.Cached),
			attribute.Bool(trace.KeySessionEnded, rsp.SessionEnded),
		)
	}
	trace.RecordError(span, err)
	return rsp, err
}

func (s *Service) process(ctx context.Context, req *Request) (*Response, error) {
	if err := s.validator.Validate(req.Email); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errs.New(errs.ErrValidation, "chat", "question is required")
	}
	var seed *session.Seed
	if len(req.History) > 0 || !req.StartTime.IsZero() {
		seed = &session.Seed{StartTime: req.StartTime, History: req.History}
	}
	sess, _, err := s.sessions.Ensure(req.ChatID, req.Email, seed)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "chat", err)
	}
	id := sess.ID

	if s.stopWord != "" && strings.EqualFold(question, s.stopWord) {
		return s.stop(ctx, id)
	}

	recent, err := s.sessions.Context(id)
	if err != nil {
		return nil, err
	}
	full := sess.Snapshot().History

	vec, err := embedder.Embed(ctx, s.embedder, question)
	if err != nil {
		log.Warnf("chat %s: embed question: %v", id, err)
	}

	rsp := &Response{Question: question, ChatID: id}
	if hit := s.lookup(ctx, vec, len(full)); hit != nil {
		log.Infof("chat %s: answered from cache (relevance %.3f)", id, hit.Relevance)
		rsp.Answer = hit.Answer
		rsp.Cached = true
	} else {
		docs := s.retrieve(ctx, vec)
		answer, err := s.completer.Complete(ctx, question, docs, recent)
		if err != nil {
			log.Errorf("chat %s: %v", id, err)
			rsp.Answer = FailureMessage
			rsp.History = full
			return rsp, err
		}
		rsp.Answer = answer
		rsp.TokensCount = s.countTokens(recent, question)
	}

	if _, err := s.sessions.Append(id, question, rsp.Answer); err != nil {
		// Flushed by the janitor in between; the chat continues under the
		// same id.
		if _, _, err := s.sessions.Ensure(id, req.Email, nil); err != nil {
			return nil, err
		}
		if _, err := s.sessions.Append(id, question, rsp.Answer); err != nil {
			return nil, err
		}
	}
	if !rsp.Cached && vec != nil && s.cache != nil {
		if _, err := s.cache.RecordVector(question, rsp.Answer, vec); err != nil {
			log.Warnf("chat %s: record answer in cache: %v", id, err)
		}
	}

	if h, err := s.sessions.History(id); err == nil {
		rsp.History = h
	}
	ended, err := s.sessions.CheckExpiry(ctx, id)
	if err != nil {
		log.Warnf("chat %s: session expired but flush failed: %v", id, err)
	}
	rsp.SessionEnded = ended
	return rsp, nil
}

func (s *Service) stop(ctx context.Context, id string) (*Response, error) {
	rsp := &Response{Question: s.stopWord, ChatID: id}
	if h, err := s.sessions.History(id); err == nil {
		rsp.History = h
	}
	msg, err := s.StopChat(ctx, id)
	if err != nil {
		return nil, err
	}
	rsp.Answer = msg
	rsp.SessionEnded = msg == EndMessage
	return rsp, nil
}

func (s *Service) lookup(ctx context.Context, vec []float64, historyLen int) *semcache.Hit {
	if s.cache == nil || vec == nil || !s.cache.Active(historyLen) {
		return nil
	}
	ctx, span := trace.Tracer.Start(ctx, trace.SpanCacheLookup)
	defer span.End()
	hit, ok, err := s.cache.LookupVector(ctx, vec)
	if err != nil {
		trace.RecordError(span, err)
		log.Warnf("semantic cache lookup: %v", err)
		return nil
	}
	span.SetAttributes(attribute.Bool(trace.KeyCacheHit, ok))
	if !ok {
		return nil
	}
	span.SetAttributes(attribute.Float64(trace.KeyRelevance, hit.Relevance))
	return hit
}

// retrieve returns the texts of the most relevant document fragments. The
// model is still asked without context when no index is usable.
func (s *Service) retrieve(ctx context.Context, vec []float64) []string {
	if vec == nil || s.indexer == nil {
		return nil
	}
	ctx, span := trace.Tracer.Start(ctx, trace.SpanRetrieve)
	defer span.End()
	ix, err := s.indexer.Index(ctx)
	if err != nil {
		trace.RecordError(span, err)
		log.Warnf("document index unavailable, answering without context: %v", err)
		return nil
	}
	hits, err := ix.SearchMMR(vec, vectorstore.MMRQuery{
		K:      s.retrieval.K,
		FetchK: s.retrieval.FetchK,
		Lambda: s.retrieval.Lambda,
		Filter: &vectorstore.Filter{Source: vectorstore.SourceDocument},
	})
	if err != nil {
		trace.RecordError(span, err)
		log.Warnf("document search: %v", err)
		return nil
	}
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Fragment.Text
	}
	span.SetAttributes(attribute.Int(trace.KeyDocuments, len(docs)))
	return docs
}

// countTokens counts the tokens of the history turns and the question sent
// to the model.
func (s *Service) countTokens(history []session.ChatTurn, question string) int {
	if s.counter == nil {
		return 0
	}
	total := 0
	for _, turn := range history {
		total += s.count(turn.Question) + s.count(turn.Answer)
	}
	return total + s.count(question)
}

func (s *Service) count(text string) int {
	n, err := s.counter.Count(text)
	if err != nil {
		log.Warnf("count tokens: %v", err)
		return 0
	}
	return n
}

// String describes the service configuration for logs.
func (s *Service) String() string {
	return fmt.Sprintf("chat.Service{k=%d fetch_k=%d lambda=%.2f cache=%t}",
		s.retrieval.K, s.retrieval.FetchK, s.retrieval.Lambda, s.cache != nil)
}
