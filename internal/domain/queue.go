package domain

import (
	"context"
	"time"
)

// QueuedMessage is a user message persisted while the network was down,
// awaiting replay once connectivity returns.
type QueuedMessage struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	QueuedAt       time.Time `json:"queued_at"`
	RetryCount     int       `json:"retry_count"`
}

// MessageQueue is the persistent FIFO store behind the offline manager.
// Implementations must provide per-record atomicity; the send path appends
// while the connectivity handler drains.
type MessageQueue interface {
	Enqueue(ctx context.Context, msg QueuedMessage) error
	// List returns all queued messages in enqueue order.
	List(ctx context.Context) ([]QueuedMessage, error)
	Remove(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) error
	Depth(ctx context.Context) (int, error)
}

// ConversationStore persists completed exchanges, keyed by conversation id.
type ConversationStore interface {
	AppendMessage(ctx context.Context, conversationID string, msg Message) error
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

// NetworkObserver reports the host's connectivity and notifies on change.
type NetworkObserver interface {
	Online() bool
	// Changes delivers the new online state after each transition.
	Changes() <-chan bool
}
