package llm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"chatrelay/internal/domain"
)

// OllamaAdapter implements the Adapter contract for Ollama's native API,
// which streams newline-delimited JSON rather than SSE.
type OllamaAdapter struct{}

var _ Adapter = OllamaAdapter{}

// Type implements Adapter.
func (OllamaAdapter) Type() domain.AgentType { return domain.AgentOllama }

// ChatEndpoint implements Adapter.
func (OllamaAdapter) ChatEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/api/chat"
}

// ModelsEndpoint implements Adapter. /api/tags lists local models and is
// the cheapest reachability probe Ollama offers.
func (OllamaAdapter) ModelsEndpoint(baseURL string) string {
	return trimBase(baseURL) + "/api/tags"
}

// Headers implements Adapter. Ollama deployments behind a reverse proxy
// use basic auth; the token is treated as a "user:pass" credential pair
// and base64-encoded.
func (OllamaAdapter) Headers(authToken string, custom map[string]string) map[string]string {
	auth := map[string]string{}
	if authToken != "" {
		auth["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(authToken))
	}
	return mergeHeaders(custom, auth)
}

// --- Ollama wire types ---

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaOptions nests sampling parameters with Ollama's renamed keys.
type ollamaOptions struct {
	Temperature      float64 `json:"temperature,omitempty"`
	NumPredict       int     `json:"num_predict,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
}

type ollamaChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// FormatChatBody implements Adapter. A system prompt is prepended as a
// system-role message; sampling parameters move under "options" with
// num_predict standing in for max tokens.
func (OllamaAdapter) FormatChatBody(p domain.ChatParams) ([]byte, error) {
	msgs := make([]openaiMessage, 0, len(p.Messages)+1)
	if p.SystemPrompt != "" {
		msgs = append(msgs, openaiMessage{Role: domain.RoleSystem, Content: p.SystemPrompt})
	}
	for _, m := range p.Messages {
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: m.Content})
	}

	req := ollamaRequest{
		Model:    p.Model,
		Messages: msgs,
		Stream:   p.Stream,
	}
	opts := ollamaOptions{
		Temperature:      p.Temperature,
		NumPredict:       p.MaxTokens,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}
	if opts != (ollamaOptions{}) {
		req.Options = &opts
	}
	return json.Marshal(req)
}

// ParseStreamChunk implements Adapter. Each chunk is one NDJSON line.
// A parse failure yields an error delta, never a fault: this adapter does
// not raise to its caller for malformed input.
func (OllamaAdapter) ParseStreamChunk(chunk []byte) *domain.StreamDelta {
	line := bytes.TrimSpace(chunk)
	if len(line) == 0 {
		return nil
	}

	var c ollamaChunk
	if err := json.Unmarshal(line, &c); err != nil {
		return domain.ErrorDelta(fmt.Sprintf("parse ndjson chunk: %v", err))
	}
	if c.Done {
		return domain.DoneDelta("stop")
	}
	if c.Message.Role == domain.RoleAssistant && c.Message.Content != "" {
		return domain.TextDelta(c.Message.Content)
	}
	return nil
}

// ParseCompleteResponse implements Adapter.
func (OllamaAdapter) ParseCompleteResponse(body []byte) *domain.ParsedMessage {
	msg := &domain.ParsedMessage{Role: domain.RoleAssistant}

	var resp ollamaChunk
	if err := json.Unmarshal(body, &resp); err != nil {
		return msg
	}
	msg.Model = resp.Model
	if resp.Message.Content != "" {
		msg.Content = resp.Message.Content
		msg.Parts = append(msg.Parts, domain.MessagePart{Type: domain.PartText, Text: resp.Message.Content})
	}
	return msg
}

// ParseModelsResponse implements Adapter.
func (OllamaAdapter) ParseModelsResponse(body []byte) []string {
	var resp ollamaTagsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names
}
