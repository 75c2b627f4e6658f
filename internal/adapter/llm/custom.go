package llm

import (
	"chatrelay/internal/domain"
)

// CustomConfig shapes a CustomAdapter. Every field is optional; an unset
// field falls back to OpenAI-compatible behavior, so the zero value is a
// plain OpenAI clone with a configurable base URL.
type CustomConfig struct {
	// ChatPath and ModelsPath override the endpoint suffixes.
	ChatPath   string
	ModelsPath string

	// Headers, when set, replaces auth header construction entirely.
	// The baseline content-type headers and the agent's custom headers
	// are still merged underneath.
	Headers func(authToken string) map[string]string

	// FormatChatBody, when set, replaces request body construction.
	FormatChatBody func(p domain.ChatParams) ([]byte, error)

	// ParseStreamChunk, when set, replaces stream chunk parsing.
	ParseStreamChunk func(chunk []byte) *domain.StreamDelta

	// ParseCompleteResponse, when set, replaces non-streaming parsing.
	ParseCompleteResponse func(body []byte) *domain.ParsedMessage

	// ParseModelsResponse, when set, replaces models-listing parsing.
	ParseModelsResponse func(body []byte) []string
}

// CustomAdapter handles self-hosted endpoints that deviate from the three
// known families. It delegates each concern to a CustomConfig hook,
// defaulting to OpenAI-compatible behavior per hook, which matches most
// proxy and gateway software in the wild.
type CustomAdapter struct {
	cfg CustomConfig
}

var _ Adapter = CustomAdapter{}

// NewCustomAdapter builds an adapter from cfg.
func NewCustomAdapter(cfg CustomConfig) CustomAdapter {
	return CustomAdapter{cfg: cfg}
}

// Type implements Adapter.
func (CustomAdapter) Type() domain.AgentType { return domain.AgentCustom }

// ChatEndpoint implements Adapter.
func (a CustomAdapter) ChatEndpoint(baseURL string) string {
	if a.cfg.ChatPath != "" {
		return trimBase(baseURL) + a.cfg.ChatPath
	}
	return OpenAIAdapter{}.ChatEndpoint(baseURL)
}

// ModelsEndpoint implements Adapter.
func (a CustomAdapter) ModelsEndpoint(baseURL string) string {
	if a.cfg.ModelsPath != "" {
		return trimBase(baseURL) + a.cfg.ModelsPath
	}
	return OpenAIAdapter{}.ModelsEndpoint(baseURL)
}

// Headers implements Adapter. The default is Bearer auth.
func (a CustomAdapter) Headers(authToken string, custom map[string]string) map[string]string {
	if a.cfg.Headers != nil {
		return mergeHeaders(custom, a.cfg.Headers(authToken))
	}
	return OpenAIAdapter{}.Headers(authToken, custom)
}

// FormatChatBody implements Adapter.
func (a CustomAdapter) FormatChatBody(p domain.ChatParams) ([]byte, error) {
	if a.cfg.FormatChatBody != nil {
		return a.cfg.FormatChatBody(p)
	}
	return OpenAIAdapter{}.FormatChatBody(p)
}

// ParseStreamChunk implements Adapter.
func (a CustomAdapter) ParseStreamChunk(chunk []byte) *domain.StreamDelta {
	if a.cfg.ParseStreamChunk != nil {
		return a.cfg.ParseStreamChunk(chunk)
	}
	return OpenAIAdapter{}.ParseStreamChunk(chunk)
}

// ParseCompleteResponse implements Adapter.
func (a CustomAdapter) ParseCompleteResponse(body []byte) *domain.ParsedMessage {
	if a.cfg.ParseCompleteResponse != nil {
		return a.cfg.ParseCompleteResponse(body)
	}
	return OpenAIAdapter{}.ParseCompleteResponse(body)
}

// ParseModelsResponse implements Adapter.
func (a CustomAdapter) ParseModelsResponse(body []byte) []string {
	if a.cfg.ParseModelsResponse != nil {
		return a.cfg.ParseModelsResponse(body)
	}
	return OpenAIAdapter{}.ParseModelsResponse(body)
}
