package llm

import (
	"errors"
	"testing"

	"chatrelay/internal/domain"
)

func TestFactoryAdapter(t *testing.T) {
	f := NewFactory(CustomConfig{})

	for _, typ := range domain.AgentTypes {
		a, err := f.Adapter(typ)
		if err != nil {
			t.Fatalf("Adapter(%s): %v", typ, err)
		}
		if a.Type() != typ {
			t.Errorf("Adapter(%s).Type() = %s", typ, a.Type())
		}
	}

	_, err := f.Adapter("grpc")
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("unknown type: err = %v, want ErrUnsupportedType", err)
	}
}

func TestFactorySupported(t *testing.T) {
	f := NewFactory(CustomConfig{})

	infos := f.Supported()
	if len(infos) != len(domain.AgentTypes) {
		t.Fatalf("got %d type infos, want %d", len(infos), len(domain.AgentTypes))
	}
	for i, info := range infos {
		if info.Type != domain.AgentTypes[i] {
			t.Errorf("infos[%d].Type = %s, want %s", i, info.Type, domain.AgentTypes[i])
		}
	}
}

func TestCustomAdapterDefaults(t *testing.T) {
	a := NewCustomAdapter(CustomConfig{})

	// Every unset hook behaves as OpenAI-compatible.
	if got := a.ChatEndpoint("http://x"); got != "http://x/chat/completions" {
		t.Errorf("ChatEndpoint = %q", got)
	}
	h := a.Headers("tok", nil)
	if h["Authorization"] != "Bearer tok" {
		t.Errorf("default auth = %q, want Bearer", h["Authorization"])
	}
	d := a.ParseStreamChunk([]byte(`data: {"choices":[{"delta":{"content":"x"}}]}`))
	if d == nil || d.Content != "x" {
		t.Errorf("default stream parse: %+v", d)
	}
}

func TestCustomAdapterOverrides(t *testing.T) {
	a := NewCustomAdapter(CustomConfig{
		ChatPath:   "/v2/generate",
		ModelsPath: "/v2/catalog",
		Headers: func(token string) map[string]string {
			return map[string]string{"X-Api-Token": token}
		},
		ParseStreamChunk: func(chunk []byte) *domain.StreamDelta {
			return domain.TextDelta(string(chunk))
		},
	})

	if got := a.ChatEndpoint("http://x/"); got != "http://x/v2/generate" {
		t.Errorf("ChatEndpoint = %q", got)
	}
	if got := a.ModelsEndpoint("http://x"); got != "http://x/v2/catalog" {
		t.Errorf("ModelsEndpoint = %q", got)
	}

	h := a.Headers("tok", nil)
	if h["X-Api-Token"] != "tok" {
		t.Errorf("custom headers hook ignored: %v", h)
	}
	if _, ok := h["Authorization"]; ok {
		t.Error("Bearer default applied despite headers hook")
	}

	d := a.ParseStreamChunk([]byte("raw"))
	if d == nil || d.Content != "raw" {
		t.Errorf("custom parse hook ignored: %+v", d)
	}
}
