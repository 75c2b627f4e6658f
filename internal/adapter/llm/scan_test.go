package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"chatrelay/internal/domain"
)

func collect(t *testing.T, ch <-chan domain.StreamDelta) []domain.StreamDelta {
	t.Helper()
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestScanStreamOpenAI(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	deltas := collect(t, ScanStream(context.Background(), io.NopCloser(strings.NewReader(body)), OpenAIAdapter{}))
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "Hel" || deltas[1].Content != "lo" {
		t.Errorf("text deltas = %+v", deltas[:2])
	}
	if !deltas[2].Terminal() || deltas[2].Type != domain.DeltaDone {
		t.Errorf("final delta = %+v, want done", deltas[2])
	}
}

func TestScanStreamAnthropicBlocks(t *testing.T) {
	body := strings.Join([]string{
		"event: message_start",
		`data: {"type":"message_start"}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`,
		"",
		"event: message_delta",
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		"",
		"event: message_stop",
		`data: {"type":"message_stop"}`,
		"",
	}, "\n")

	deltas := collect(t, ScanStream(context.Background(), io.NopCloser(strings.NewReader(body)), AnthropicAdapter{}))
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "Hi" {
		t.Errorf("first delta = %+v", deltas[0])
	}
	// The message_delta terminal ends the stream; message_stop after it
	// must not produce a second terminal.
	if deltas[1].FinishReason != "end_turn" {
		t.Errorf("terminal = %+v, want end_turn", deltas[1])
	}
}

func TestScanStreamNDJSON(t *testing.T) {
	body := strings.Join([]string{
		`{"message":{"role":"assistant","content":"a"},"done":false}`,
		`{"message":{"role":"assistant","content":"b"},"done":false}`,
		`{"done":true}`,
	}, "\n")

	deltas := collect(t, ScanStream(context.Background(), io.NopCloser(strings.NewReader(body)), OllamaAdapter{}))
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3: %+v", len(deltas), deltas)
	}
	if deltas[2].Type != domain.DeltaDone {
		t.Errorf("terminal = %+v", deltas[2])
	}
}

func TestScanStreamSynthesizesDoneOnCleanEOF(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"truncated"}}]}` + "\n"

	deltas := collect(t, ScanStream(context.Background(), io.NopCloser(strings.NewReader(body)), OpenAIAdapter{}))
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2: %+v", len(deltas), deltas)
	}
	if deltas[1].Type != domain.DeltaDone {
		t.Errorf("EOF without terminal: final = %+v, want synthesized done", deltas[1])
	}
}

type failingReader struct{ read bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.read {
		return 0, io.ErrUnexpectedEOF
	}
	r.read = true
	line := []byte(`data: {"choices":[{"delta":{"content":"x"}}]}` + "\n")
	return copy(p, line), nil
}
func (r *failingReader) Close() error { return nil }

func TestScanStreamReadError(t *testing.T) {
	deltas := collect(t, ScanStream(context.Background(), &failingReader{}, OpenAIAdapter{}))
	if len(deltas) == 0 {
		t.Fatal("no deltas")
	}
	last := deltas[len(deltas)-1]
	if last.Type != domain.DeltaError {
		t.Errorf("final delta = %+v, want error", last)
	}
}

func TestScanStreamCancelStillTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: [DONE]`,
	}, "\n")

	deltas := collect(t, ScanStream(ctx, io.NopCloser(strings.NewReader(body)), OpenAIAdapter{}))
	if len(deltas) != 1 {
		t.Fatalf("got %d deltas, want just the terminal: %+v", len(deltas), deltas)
	}
	if deltas[0].Type != domain.DeltaError || !deltas[0].Terminal() {
		t.Errorf("canceled stream must still end with an error terminal, got %+v", deltas[0])
	}
	if !strings.Contains(deltas[0].Content, "canceled") {
		t.Errorf("terminal content = %q, want cancellation reason", deltas[0].Content)
	}
}

func TestScanStreamExactlyOneTerminal(t *testing.T) {
	body := strings.Join([]string{
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"after"}}]}`,
	}, "\n")

	deltas := collect(t, ScanStream(context.Background(), io.NopCloser(strings.NewReader(body)), OpenAIAdapter{}))
	terminals := 0
	for _, d := range deltas {
		if d.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("got %d terminals, want exactly 1: %+v", terminals, deltas)
	}
	if len(deltas) != 1 {
		t.Errorf("deltas after terminal must not be emitted: %+v", deltas)
	}
}
