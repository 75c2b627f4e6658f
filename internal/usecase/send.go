package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
)

// SendService is the message send path: it resolves the agent, builds the
// chat request from conversation history, streams the reply, and persists
// both sides of the exchange. When the network is down it queues the
// message instead and reports domain.ErrOffline.
type SendService struct {
	registry      domain.AgentRegistry
	client        *llm.Client
	executor      *Executor
	breakers      *BreakerSet
	queue         domain.MessageQueue
	conversations domain.ConversationStore
	observer      domain.NetworkObserver
	log           *slog.Logger

	queueMaxDepth int
}

// NewSendService wires the send path.
func NewSendService(
	registry domain.AgentRegistry,
	client *llm.Client,
	executor *Executor,
	breakers *BreakerSet,
	queue domain.MessageQueue,
	conversations domain.ConversationStore,
	observer domain.NetworkObserver,
	queueMaxDepth int,
	log *slog.Logger,
) *SendService {
	return &SendService{
		registry:      registry,
		client:        client,
		executor:      executor,
		breakers:      breakers,
		queue:         queue,
		conversations: conversations,
		observer:      observer,
		log:           log,
		queueMaxDepth: queueMaxDepth,
	}
}

// buildParams assembles ChatParams from the agent's generation settings
// plus the stored conversation history ending with content.
func (s *SendService) buildParams(ctx context.Context, agent *domain.Agent, conversationID, content string) (domain.ChatParams, error) {
	history, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return domain.ChatParams{}, domain.WrapOp("SendService.buildParams", err)
	}
	messages := append(history, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})
	return domain.ChatParams{
		Model:            agent.Model,
		Messages:         messages,
		Temperature:      agent.Temperature,
		MaxTokens:        agent.MaxTokens,
		TopP:             agent.TopP,
		FrequencyPenalty: agent.FrequencyPenalty,
		PresencePenalty:  agent.PresencePenalty,
	}, nil
}

// enqueue persists a message for later replay, enforcing the depth cap.
func (s *SendService) enqueue(ctx context.Context, agentID, conversationID, content string) error {
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		return domain.WrapOp("SendService.enqueue", err)
	}
	if depth >= s.queueMaxDepth {
		return domain.NewDomainError("SendService.enqueue", domain.ErrOffline, "offline queue full")
	}
	msg := domain.QueuedMessage{
		ID:             ulid.Make().String(),
		AgentID:        agentID,
		ConversationID: conversationID,
		Content:        content,
		QueuedAt:       time.Now(),
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return domain.WrapOp("SendService.enqueue", err)
	}
	s.log.Info("message queued while offline",
		"message_id", msg.ID,
		"agent_id", agentID,
		"queue_depth", depth+1)
	return domain.ErrOffline
}

// SendStream streams a reply for content in conversationID via agentID.
// Offline, the message is queued and the error wraps domain.ErrOffline.
// The user turn is persisted before the request; the assistant turn is
// persisted when the stream finishes cleanly.
func (s *SendService) SendStream(ctx context.Context, agentID, conversationID, content string) (<-chan domain.StreamDelta, error) {
	if s.observer != nil && !s.observer.Online() {
		return nil, s.enqueue(ctx, agentID, conversationID, content)
	}

	agent, err := s.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	params, err := s.buildParams(ctx, agent, conversationID, content)
	if err != nil {
		return nil, err
	}
	params.Stream = true

	if err := s.conversations.AppendMessage(ctx, conversationID, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, domain.WrapOp("SendService.SendStream", err)
	}

	// Retries and the breaker cover stream establishment only; once
	// deltas are flowing, a mid-stream fault surfaces as an error delta.
	// The stream context must outlive establishment, so DoStream hands
	// back a stop that is released only after the relay drains it.
	var stream <-chan domain.StreamDelta
	stop, err := s.executor.DoStream(ctx, agent, "SendService.SendStream", func(ctx context.Context) error {
		return s.breakers.Execute(agent.ID, func() error {
			var openErr error
			stream, openErr = s.client.ChatStream(ctx, agent, params)
			return openErr
		})
	})
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamDelta, 16)
	go func() {
		defer stop()
		s.relay(ctx, conversationID, stream, out)
	}()
	return out, nil
}

// relay forwards deltas while accumulating the assistant text, persisting
// the completed turn on a clean finish.
func (s *SendService) relay(ctx context.Context, conversationID string, in <-chan domain.StreamDelta, out chan<- domain.StreamDelta) {
	defer close(out)

	var text strings.Builder
	clean := false
	for d := range in {
		if d.Type == domain.DeltaText {
			text.WriteString(d.Content)
		}
		if d.Type == domain.DeltaDone {
			clean = true
		}
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}
	}

	if clean && text.Len() > 0 {
		// Persist off the request context so a client disconnect right at
		// the end does not lose the completed turn.
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.conversations.AppendMessage(persistCtx, conversationID, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text.String(),
			Timestamp: time.Now(),
		}); err != nil {
			s.log.Warn("persist assistant turn failed",
				"conversation_id", conversationID, "error", err)
		}
	}
}

// Send is the non-streaming path for clients that want the whole reply
// at once.
func (s *SendService) Send(ctx context.Context, agentID, conversationID, content string) (*domain.ParsedMessage, error) {
	if s.observer != nil && !s.observer.Online() {
		return nil, s.enqueue(ctx, agentID, conversationID, content)
	}
	return s.deliver(ctx, agentID, conversationID, content)
}

// Replay delivers a previously queued message, bypassing the offline
// check: the drain loop has already decided connectivity is back.
func (s *SendService) Replay(ctx context.Context, msg domain.QueuedMessage) error {
	_, err := s.deliver(ctx, msg.AgentID, msg.ConversationID, msg.Content)
	return err
}

func (s *SendService) deliver(ctx context.Context, agentID, conversationID, content string) (*domain.ParsedMessage, error) {
	agent, err := s.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	params, err := s.buildParams(ctx, agent, conversationID, content)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.AppendMessage(ctx, conversationID, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, domain.WrapOp("SendService.Send", err)
	}

	var reply *domain.ParsedMessage
	err = s.executor.Do(ctx, agent, "SendService.Send", func(ctx context.Context) error {
		return s.breakers.Execute(agent.ID, func() error {
			var callErr error
			reply, callErr = s.client.Chat(ctx, agent, params)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}

	if reply.Content != "" {
		if err := s.conversations.AppendMessage(ctx, conversationID, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   reply.Content,
			Timestamp: time.Now(),
		}); err != nil {
			s.log.Warn("persist assistant turn failed",
				"conversation_id", conversationID, "error", err)
		}
	}
	return reply, nil
}
