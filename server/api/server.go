//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package api exposes the chat service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-rag-go/chat"
	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/lifecycle"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/server/api/internal/schema"
	"trpc.group/trpc-go/trpc-rag-go/session"
)

const (
	msgEmailValid   = "Email validated successfully!"
	msgEmailInvalid = "Invalid email format."
	msgInternal     = "An error occurred while processing the question."
	maxBodyBytes    = 1 << 20
)

// IndexStats reports the state of the document index.
type IndexStats interface {
	Stats() lifecycle.Stats
}

// Server routes the chat HTTP API to a chat.Service.
type Server struct {
	chat     *chat.Service
	index    IndexStats
	location *time.Location
	origins  []string
	router   *mux.Router
	handler  http.Handler
}

// Option configures the Server instance.
type Option func(*Server)

// WithIndexStats reports the index state on /healthz.
func WithIndexStats(st IndexStats) Option {
	return func(s *Server) { s.index = st }
}

// WithAllowedOrigins restricts CORS origins. Default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLocation sets the zone of start times sent without one.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.location = loc }
}

// New creates a new HTTP server for svc.
func New(svc *chat.Service, opts ...Option) *Server {
	s := &Server{
		chat:     svc,
		location: session.DefaultLocation(),
		origins:  []string{"*"},
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.registerRoutes()
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/validate_email", s.handleValidateEmail).Methods(http.MethodPost)
	s.router.HandleFunc("/start_chat", s.handleStartChat).Methods(http.MethodGet)
	s.router.HandleFunc("/stop_chat", s.handleStopChat).Methods(http.MethodPost)
	s.router.HandleFunc("/get_token_count_from_input", s.handleTokenCount).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// ---- Handlers -----------------------------------------------------------

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req schema.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	start, err := schema.ParseStartTime(req.StartTime, s.location)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Infof("question from %s in chat %q", req.Email, req.ChatID)

	rsp, err := s.chat.Process(r.Context(), &chat.Request{
		Email:     req.Email,
		Question:  req.Question,
		ChatID:    req.ChatID,
		History:   req.ChatHistory,
		StartTime: start,
	})
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrValidation):
		s.writeError(w, http.StatusBadRequest, message(err))
		return
	case errors.Is(err, errs.ErrModel) && rsp != nil:
		s.writeJSONStatus(w, http.StatusBadGateway, schema.ChatErrorResponse{
			Status:   schema.StatusError,
			Message:  rsp.Answer,
			Question: rsp.Question,
			ChatID:   rsp.ChatID,
		})
		return
	default:
		log.Errorf("chat: %v", err)
		s.writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	history := rsp.History
	if history == nil {
		history = []session.ChatTurn{}
	}
	s.writeJSON(w, schema.ChatResponse{
		Status:       schema.StatusSuccess,
		Answer:       rsp.Answer,
		TokensCount:  rsp.TokensCount,
		ChatHistory:  history,
		ChatID:       rsp.ChatID,
		Cached:       rsp.Cached,
		SessionEnded: rsp.SessionEnded,
	})
}

func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req schema.EmailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.chat.ValidateEmail(req.Email); err != nil {
		log.Warnf("invalid email %q", req.Email)
		s.writeError(w, http.StatusBadRequest, msgEmailInvalid)
		return
	}
	s.writeJSON(w, schema.StatusResponse{Status: schema.StatusSuccess, Message: msgEmailValid})
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.StartChat(r.URL.Query().Get("email"))
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, message(err))
			return
		}
		log.Errorf("start chat: %v", err)
		s.writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	s.writeJSON(w, schema.StartChatResponse{ChatID: id})
}

func (s *Server) handleStopChat(w http.ResponseWriter, r *http.Request) {
	var req schema.StopChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.chat.StopChat(r.Context(), req.ChatID)
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, message(err))
			return
		}
		log.Errorf("stop chat %s: %v", req.ChatID, err)
		s.writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	s.writeJSON(w, schema.MessageResponse{Message: msg})
}

func (s *Server) handleTokenCount(w http.ResponseWriter, r *http.Request) {
	var req schema.TokenCountRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.chat.TokenCount(req.Text())
	if err != nil {
		log.Errorf("count tokens: %v", err)
		s.writeError(w, http.StatusInternalServerError, "An error occurred while counting tokens.")
		return
	}
	s.writeJSON(w, schema.TokenCountResponse{TokensCount: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rsp := schema.HealthResponse{Status: "ok"}
	if s.index != nil {
		st := s.index.Stats()
		rsp.IndexState = st.State.String()
		rsp.Generation = st.Generation
		rsp.Fragments = st.Fragments
	}
	s.writeJSON(w, rsp)
}

// ---- Helpers ------------------------------------------------------------

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSONStatus(w, status, schema.StatusResponse{Status: schema.StatusError, Message: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	s.writeJSONStatus(w, http.StatusOK, v)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// message returns the user-facing part of a classified error.
func message(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
