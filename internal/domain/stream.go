package domain

// DeltaType discriminates the variants of a StreamDelta. Exactly one
// variant is active per value.
type DeltaType string

const (
	DeltaText      DeltaType = "text"
	DeltaReasoning DeltaType = "reasoning"
	DeltaToolCall  DeltaType = "tool_call"
	DeltaDone      DeltaType = "done"
	DeltaError     DeltaType = "error"
)

// StreamDelta is the normalized unit emitted while parsing one incoming
// chunk of a streaming response, regardless of the provider's wire format.
// Deltas belong to exactly one conversation turn and arrive in token order.
type StreamDelta struct {
	Type DeltaType `json:"type"`

	// Content carries the increment for text and reasoning deltas.
	Content string `json:"content,omitempty"`

	// ToolName and ToolArgs carry a tool_call fragment.
	ToolName string `json:"tool_name,omitempty"`
	ToolArgs string `json:"tool_args,omitempty"`

	// FinishReason is set on done deltas when the provider reported one.
	FinishReason string `json:"finish_reason,omitempty"`

	// Message describes the failure on error deltas.
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the delta ends the stream.
func (d StreamDelta) Terminal() bool {
	return d.Type == DeltaDone || d.Type == DeltaError
}

// TextDelta builds a text-variant delta.
func TextDelta(content string) *StreamDelta {
	return &StreamDelta{Type: DeltaText, Content: content}
}

// ReasoningDelta builds a reasoning-variant delta.
func ReasoningDelta(content string) *StreamDelta {
	return &StreamDelta{Type: DeltaReasoning, Content: content}
}

// ToolCallDelta builds a tool_call-variant delta.
func ToolCallDelta(name, args string) *StreamDelta {
	return &StreamDelta{Type: DeltaToolCall, ToolName: name, ToolArgs: args}
}

// DoneDelta builds a done-variant delta. reason may be empty.
func DoneDelta(reason string) *StreamDelta {
	return &StreamDelta{Type: DeltaDone, FinishReason: reason}
}

// ErrorDelta builds an error-variant delta.
func ErrorDelta(message string) *StreamDelta {
	return &StreamDelta{Type: DeltaError, Message: message}
}
