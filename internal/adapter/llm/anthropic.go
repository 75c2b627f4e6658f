package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatrelay/internal/domain"
)

const (
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 4096
)

// AnthropicAdapter implements the Adapter contract for the Anthropic
// Messages API and compatible servers, which stream typed SSE events
// ("event: <type>" followed by a "data:" payload).
type AnthropicAdapter struct{}

var _ Adapter = AnthropicAdapter{}

// Type implements Adapter.
func (AnthropicAdapter) Type() domain.AgentType { return domain.AgentAnthropic }

// ChatEndpoint implements Adapter.
func (AnthropicAdapter) ChatEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/v1/messages"
}

// ModelsEndpoint implements Adapter.
func (AnthropicAdapter) ModelsEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/v1/models"
}

// Headers implements Adapter. Anthropic authenticates with x-api-key plus
// a fixed version header and never uses Bearer.
func (AnthropicAdapter) Headers(authToken string, custom map[string]string) map[string]string {
	auth := map[string]string{"anthropic-version": anthropicVersion}
	if authToken != "" {
		auth["x-api-key"] = authToken
	}
	return mergeHeaders(custom, auth)
}

// --- Anthropic wire types ---

type anthropicRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		Thinking   string `json:"thinking"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content_block"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type     string          `json:"type"`
		Text     string          `json:"text"`
		Thinking string          `json:"thinking"`
		Name     string          `json:"name"`
		Input    json.RawMessage `json:"input"`
	} `json:"content"`
}

// FormatChatBody implements Adapter. Anthropic's wire format forbids a
// system-role message: the system prompt is lifted to the top-level
// "system" field and only user/assistant turns stay in the array.
// max_tokens is mandatory; frequency/presence penalty are unsupported and
// top_p is dropped when it equals 1 (a no-op value).
func (AnthropicAdapter) FormatChatBody(p domain.ChatParams) ([]byte, error) {
	msgs := make([]openaiMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	req := anthropicRequest{
		Model:       p.Model,
		Messages:    msgs,
		System:      p.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
		Stream:      p.Stream,
	}
	if p.TopP != 0 && p.TopP != 1 {
		req.TopP = p.TopP
	}
	return json.Marshal(req)
}

var sseEventPrefix = []byte("event:")

// ParseStreamChunk implements Adapter. A chunk is one SSE event block: an
// "event: <type>" line followed by a "data:" line. Blocks without a data
// payload and unknown event types yield nil.
func (AnthropicAdapter) ParseStreamChunk(chunk []byte) *domain.StreamDelta {
	var eventType string
	var data []byte

	for _, line := range bytes.Split(chunk, []byte("\n")) {
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasPrefix(line, sseEventPrefix):
			eventType = string(bytes.TrimSpace(bytes.TrimPrefix(line, sseEventPrefix)))
		case bytes.HasPrefix(line, ssePrefix):
			data = bytes.TrimSpace(bytes.TrimPrefix(line, ssePrefix))
		}
	}
	if len(data) == 0 {
		return nil
	}

	var evt anthropicStreamEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return domain.ErrorDelta(fmt.Sprintf("parse stream event: %v", err))
	}
	if eventType == "" {
		// Some proxies drop the event line; the payload type is equivalent.
		eventType = evt.Type
	}

	switch eventType {
	case "content_block_delta":
		switch evt.Delta.Type {
		case "text_delta":
			return domain.TextDelta(evt.Delta.Text)
		case "thinking_delta":
			return domain.ReasoningDelta(evt.Delta.Thinking)
		}
		if evt.Delta.StopReason != "" {
			return domain.DoneDelta(evt.Delta.StopReason)
		}
		return nil

	case "message_delta":
		if evt.Delta.StopReason != "" {
			return domain.DoneDelta(evt.Delta.StopReason)
		}
		return nil

	case "content_block_start":
		switch evt.ContentBlock.Type {
		case "thinking":
			return domain.ReasoningDelta(evt.ContentBlock.Thinking)
		case "text":
			return domain.TextDelta(evt.ContentBlock.Text)
		}
		return nil

	case "message_stop":
		return domain.DoneDelta("")

	case "error":
		return domain.ErrorDelta(evt.Error.Message)

	default:
		return nil
	}
}

// ParseCompleteResponse implements Adapter.
func (AnthropicAdapter) ParseCompleteResponse(body []byte) *domain.ParsedMessage {
	msg := &domain.ParsedMessage{Role: domain.RoleAssistant}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return msg
	}
	msg.Model = resp.Model
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
			msg.Parts = append(msg.Parts, domain.MessagePart{Type: domain.PartText, Text: block.Text})
		case "thinking":
			msg.Parts = append(msg.Parts, domain.MessagePart{Type: domain.PartReasoning, Text: block.Thinking})
		case "tool_use":
			msg.Parts = append(msg.Parts, domain.MessagePart{
				Type:     domain.PartToolCall,
				ToolName: block.Name,
				ToolArgs: string(block.Input),
			})
		}
	}
	return msg
}

// ParseModelsResponse implements Adapter. Anthropic's models listing uses
// the same {"data":[{"id":...}]} envelope as OpenAI.
func (AnthropicAdapter) ParseModelsResponse(body []byte) []string {
	return OpenAIAdapter{}.ParseModelsResponse(body)
}
