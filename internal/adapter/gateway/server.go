package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
	"chatrelay/internal/infra/middleware"
	"chatrelay/internal/usecase"
)

// Server exposes the relay to the browser client: a REST surface for
// agent management, testing, and queue inspection, plus a WebSocket
// endpoint that streams chat deltas.
type Server struct {
	registry *usecase.Registry
	sender   *usecase.SendService
	tester   *usecase.Tester
	checker  *usecase.HealthChecker
	offline  *usecase.OfflineManager
	queue    domain.MessageQueue
	factory  *llm.Factory
	log      *slog.Logger

	addr          string
	origins       []string
	ratePerSecond float64
	rateBurst     int

	httpSrv   *http.Server
	boundAddr string
}

// Options carries the server's construction parameters.
type Options struct {
	Addr           string
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

// NewServer wires the gateway.
func NewServer(
	opts Options,
	registry *usecase.Registry,
	sender *usecase.SendService,
	tester *usecase.Tester,
	checker *usecase.HealthChecker,
	offline *usecase.OfflineManager,
	queue domain.MessageQueue,
	factory *llm.Factory,
	log *slog.Logger,
) *Server {
	return &Server{
		registry:      registry,
		sender:        sender,
		tester:        tester,
		checker:       checker,
		offline:       offline,
		queue:         queue,
		factory:       factory,
		log:           log,
		addr:          opts.Addr,
		origins:       opts.AllowedOrigins,
		ratePerSecond: opts.RatePerSecond,
		rateBurst:     opts.RateBurst,
	}
}

// Start begins serving. Blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/types", s.handleTypes)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handlePutAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("POST /api/agents/{id}/test", s.handleTestAgent)
	mux.HandleFunc("GET /api/agents/{id}/health", s.handleAgentHealth)
	mux.HandleFunc("POST /api/detect", s.handleDetect)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/drain", s.handleDrain)
	mux.HandleFunc("/ws/chat", s.handleChatWS)

	rateLimit := middleware.RateLimit(ctx, s.ratePerSecond, s.rateBurst)
	handler := middleware.SecurityHeaders(rateLimit(mux))

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid
// after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// --- REST handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeAgentNotFound, domain.CodeQueueNotFound:
		status = http.StatusNotFound
	case domain.CodeUnsupportedType, domain.CodeInvalidEndpoint:
		status = http.StatusBadRequest
	case domain.CodeAuthInvalid:
		status = http.StatusUnauthorized
	case domain.CodeRateLimit:
		status = http.StatusTooManyRequests
	case domain.CodeOffline:
		status = http.StatusAccepted // queued, not failed
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}

func (s *Server) handleTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.factory.Supported())
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handlePutAgent(w http.ResponseWriter, r *http.Request) {
	var agent domain.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent JSON"})
		return
	}
	if agent.ID == "" || agent.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and name are required"})
		return
	}
	if !agent.Type.Valid() {
		writeError(w, domain.NewDomainError("gateway.PutAgent", domain.ErrUnsupportedType, string(agent.Type)))
		return
	}
	if err := usecase.ValidateEndpoint(agent.EndpointURL); err != nil {
		writeError(w, err)
		return
	}
	s.registry.Put(agent)
	s.log.Info("agent saved", "agent_id", agent.ID, "type", agent.Type)
	writeJSON(w, http.StatusOK, map[string]string{"id": agent.ID})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleTestAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tester.Test(r.Context(), agent))
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.checker.Check(r.Context(), agent))
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndpointURL string `json:"endpoint_url"`
		AuthToken   string `json:"auth_token,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request JSON"})
		return
	}
	detected, err := s.tester.AutoDetect(r.Context(), req.EndpointURL, req.AuthToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.AgentType{"type": detected})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.queue.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depth":    len(msgs),
		"messages": msgs,
	})
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.offline.Drain(r.Context()))
}

// --- WebSocket chat ---

// chatRequest is the client's frame opening one streamed exchange.
type chatRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// handleChatWS accepts one WebSocket connection per chat turn: the client
// sends a single chatRequest, the server streams delta frames, and the
// connection closes after the terminal delta.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "unexpected close")

	ctx := r.Context()

	var req chatRequest
	if err := wsjson.Read(ctx, ws, &req); err != nil {
		return
	}
	if req.AgentID == "" || req.Content == "" {
		wsjson.Write(ctx, ws, domain.ErrorDelta("agent_id and content are required"))
		ws.Close(websocket.StatusPolicyViolation, "bad request")
		return
	}

	stream, err := s.sender.SendStream(ctx, req.AgentID, req.ConversationID, req.Content)
	if err != nil {
		delta := domain.ErrorDelta(err.Error())
		if errors.Is(err, domain.ErrOffline) {
			// Queued is a soft outcome; tell the client distinctly.
			delta = &domain.StreamDelta{Type: domain.DeltaError, Message: err.Error(), FinishReason: "queued"}
		}
		wsjson.Write(ctx, ws, delta)
		ws.Close(websocket.StatusNormalClosure, "")
		return
	}

	for delta := range stream {
		if err := wsjson.Write(ctx, ws, delta); err != nil {
			return
		}
	}
	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) originPatterns() []string {
	patterns := []string{
		"localhost",
		"localhost:*",
		"127.0.0.1",
		"127.0.0.1:*",
		"[::1]",
		"[::1]:*",
	}
	return append(patterns, s.origins...)
}
