package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatParams is the per-call request value object handed to a protocol
// adapter. It is constructed fresh for every request and never persisted.
type ChatParams struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	SystemPrompt     string    `json:"system_prompt,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
}

// PartType discriminates the typed parts of a ParsedMessage.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartToolCall  PartType = "tool_call"
)

// MessagePart is one typed segment of an assembled assistant message.
type MessagePart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ToolName string   `json:"tool_name,omitempty"`
	ToolArgs string   `json:"tool_args,omitempty"`
}

// ParsedMessage is the fully assembled result of a non-streaming exchange.
// Role is always assistant at this layer.
type ParsedMessage struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []MessagePart `json:"parts,omitempty"`
	Model   string        `json:"model,omitempty"`
}

// Conversation is the persisted record the send path appends to.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
