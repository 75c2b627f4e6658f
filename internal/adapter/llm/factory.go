package llm

import (
	"chatrelay/internal/domain"
)

// TypeInfo is display metadata for one supported provider family, used by
// the gateway to populate agent-creation forms.
type TypeInfo struct {
	Type        domain.AgentType `json:"type"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
}

// Factory hands out protocol adapters by agent type. Adapters are
// stateless, so the factory returns shared values rather than allocating
// per call. The custom family is parameterized by the CustomConfig the
// factory was built with.
type Factory struct {
	custom CustomAdapter
}

// NewFactory builds a factory whose custom-type adapter uses cfg.
func NewFactory(cfg CustomConfig) *Factory {
	return &Factory{custom: NewCustomAdapter(cfg)}
}

// Adapter returns the adapter for t. The mapping is total over the closed
// type set; anything else fails with domain.ErrUnsupportedType.
func (f *Factory) Adapter(t domain.AgentType) (Adapter, error) {
	switch t {
	case domain.AgentOpenAI:
		return OpenAIAdapter{}, nil
	case domain.AgentOllama:
		return OllamaAdapter{}, nil
	case domain.AgentAnthropic:
		return AnthropicAdapter{}, nil
	case domain.AgentCustom:
		return f.custom, nil
	default:
		return nil, domain.NewDomainError("Factory.Adapter", domain.ErrUnsupportedType, string(t))
	}
}

// Supported lists the closed set of provider families with display
// metadata, in stable order.
func (f *Factory) Supported() []TypeInfo {
	return []TypeInfo{
		{Type: domain.AgentOpenAI, Label: "OpenAI-compatible", Description: "SSE streaming, /chat/completions"},
		{Type: domain.AgentOllama, Label: "Ollama", Description: "NDJSON streaming, /api/chat"},
		{Type: domain.AgentAnthropic, Label: "Anthropic-compatible", Description: "typed SSE events, /v1/messages"},
		{Type: domain.AgentCustom, Label: "Custom", Description: "configurable paths, OpenAI-compatible defaults"},
	}
}
