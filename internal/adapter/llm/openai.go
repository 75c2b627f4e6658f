package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatrelay/internal/domain"
)

// OpenAIAdapter implements the Adapter contract for any OpenAI-compatible
// API (the de-facto standard shape many self-hosted servers mimic).
type OpenAIAdapter struct{}

var _ Adapter = OpenAIAdapter{}

// Type implements Adapter.
func (OpenAIAdapter) Type() domain.AgentType { return domain.AgentOpenAI }

// ChatEndpoint implements Adapter.
func (OpenAIAdapter) ChatEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/chat/completions"
}

// ModelsEndpoint implements Adapter.
func (OpenAIAdapter) ModelsEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/models"
}

// Headers implements Adapter. OpenAI-compatible servers authenticate with
// a Bearer token.
func (OpenAIAdapter) Headers(authToken string, custom map[string]string) map[string]string {
	auth := map[string]string{}
	if authToken != "" {
		auth["Authorization"] = "Bearer " + authToken
	}
	return mergeHeaders(custom, auth)
}

// --- OpenAI wire types ---

type openaiRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	TopP             float64         `json:"top_p,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role             string           `json:"role"`
			Content          string           `json:"content"`
			ReasoningContent string           `json:"reasoning_content"`
			ToolCalls        []openaiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string           `json:"content"`
			ReasoningContent string           `json:"reasoning_content"`
			ToolCalls        []openaiToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type openaiModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// FormatChatBody implements Adapter. A system prompt is prepended as a
// system-role message.
func (OpenAIAdapter) FormatChatBody(p domain.ChatParams) ([]byte, error) {
	msgs := make([]openaiMessage, 0, len(p.Messages)+1)
	if p.SystemPrompt != "" {
		msgs = append(msgs, openaiMessage{Role: domain.RoleSystem, Content: p.SystemPrompt})
	}
	for _, m := range p.Messages {
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: m.Content})
	}

	req := openaiRequest{
		Model:            p.Model,
		Messages:         msgs,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Stream:           p.Stream,
	}
	return json.Marshal(req)
}

var (
	ssePrefix   = []byte("data: ")
	sseDoneData = []byte("[DONE]")
)

// ParseStreamChunk implements Adapter. Chunks are SSE lines prefixed
// "data: "; anything else (comments, keep-alives) yields nil.
func (OpenAIAdapter) ParseStreamChunk(chunk []byte) *domain.StreamDelta {
	line := bytes.TrimSpace(chunk)
	if !bytes.HasPrefix(line, ssePrefix) {
		return nil
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(line, ssePrefix))

	if bytes.Equal(data, sseDoneData) {
		return domain.DoneDelta("")
	}

	var c openaiStreamChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.ErrorDelta(fmt.Sprintf("parse stream chunk: %v", err))
	}
	if len(c.Choices) == 0 {
		return nil
	}

	choice := c.Choices[0]
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		return domain.DoneDelta(*choice.FinishReason)
	}
	if choice.Delta.ReasoningContent != "" {
		return domain.ReasoningDelta(choice.Delta.ReasoningContent)
	}
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		return domain.ToolCallDelta(tc.Function.Name, tc.Function.Arguments)
	}
	if choice.Delta.Content != "" {
		return domain.TextDelta(choice.Delta.Content)
	}
	return nil
}

// ParseCompleteResponse implements Adapter.
func (OpenAIAdapter) ParseCompleteResponse(body []byte) *domain.ParsedMessage {
	msg := &domain.ParsedMessage{Role: domain.RoleAssistant}

	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Choices) == 0 {
		return msg
	}

	msg.Model = resp.Model
	m := resp.Choices[0].Message
	if m.ReasoningContent != "" {
		msg.Parts = append(msg.Parts, domain.MessagePart{Type: domain.PartReasoning, Text: m.ReasoningContent})
	}
	if m.Content != "" {
		msg.Content = m.Content
		msg.Parts = append(msg.Parts, domain.MessagePart{Type: domain.PartText, Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		msg.Parts = append(msg.Parts, domain.MessagePart{
			Type:     domain.PartToolCall,
			ToolName: tc.Function.Name,
			ToolArgs: tc.Function.Arguments,
		})
	}
	return msg
}

// ParseModelsResponse implements Adapter.
func (OpenAIAdapter) ParseModelsResponse(body []byte) []string {
	var resp openaiModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	return ids
}
