package llm

import (
	"strings"

	"chatrelay/internal/domain"
)

// Adapter is the per-provider-family protocol contract: endpoint shapes,
// auth headers, request body formatting, and stream/response parsing.
// Implementations are stateless values constructed through the Factory and
// passed explicitly to their consumers.
type Adapter interface {
	// Type returns the provider-family tag this adapter implements.
	Type() domain.AgentType

	// ChatEndpoint and ModelsEndpoint are pure string transformations.
	// A trailing slash on baseURL is stripped before concatenation, so
	// repeated application is idempotent.
	ChatEndpoint(baseURL string) string
	ModelsEndpoint(baseURL string) string

	// Headers merges the JSON content-type/accept baseline with custom,
	// then injects provider-specific auth. Custom headers win over the
	// baseline; the adapter's own auth header wins over custom so that
	// conflicting credentials are never sent.
	Headers(authToken string, custom map[string]string) map[string]string

	// FormatChatBody maps the generic params onto the provider's JSON shape.
	FormatChatBody(p domain.ChatParams) ([]byte, error)

	// ParseStreamChunk parses one protocol chunk (an SSE data line, an SSE
	// event block, or an NDJSON line) into a normalized delta. It returns
	// nil for chunks that carry nothing (keep-alives, comments, unknown
	// events) and never fails: malformed input on the streaming path is
	// represented as an error-variant delta so one bad chunk does not
	// abort the connection.
	ParseStreamChunk(chunk []byte) *domain.StreamDelta

	// ParseCompleteResponse assembles the non-streaming result. Missing or
	// malformed fields degrade to empty content/parts rather than failing.
	ParseCompleteResponse(body []byte) *domain.ParsedMessage

	// ParseModelsResponse extracts the ordered model identifiers from a
	// models-listing response. Malformed input yields an empty list.
	ParseModelsResponse(body []byte) []string
}

// trimBase strips the trailing slash from a base URL so endpoint
// construction is idempotent.
func trimBase(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

// baselineHeaders is the fixed content negotiation every request carries.
func baselineHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
}

// mergeHeaders layers custom headers over the baseline, then auth over
// custom. Caller intent wins for any key the adapter would not set itself;
// the adapter's auth headers take precedence on conflict.
func mergeHeaders(custom, auth map[string]string) map[string]string {
	h := baselineHeaders()
	for k, v := range custom {
		h[k] = v
	}
	for k, v := range auth {
		h[k] = v
	}
	return h
}
