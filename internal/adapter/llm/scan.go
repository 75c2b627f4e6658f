package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"chatrelay/internal/domain"
)

const (
	// streamChanBuffer absorbs bursts without blocking the network read.
	streamChanBuffer = 16

	// maxLineSize bounds a single stream line; some providers pack whole
	// sentences into one chunk.
	maxLineSize = 1024 * 1024
)

// ScanStream reads the streaming response body and emits normalized deltas
// on the returned channel. Line-delimited protocols (SSE data lines,
// NDJSON) hand each line to the adapter; the Anthropic family groups
// lines into event blocks separated by blank lines first.
//
// The channel is closed after exactly one terminal delta: the adapter's
// done/error delta if the stream produced one, an error delta if the read
// failed or the context was canceled, or a synthesized done delta when
// the body ends cleanly without a terminal. The body is always closed.
func ScanStream(ctx context.Context, body io.ReadCloser, adapter Adapter) <-chan domain.StreamDelta {
	out := make(chan domain.StreamDelta, streamChanBuffer)

	go func() {
		defer close(out)
		defer body.Close()

		blockMode := adapter.Type() == domain.AgentAnthropic

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		// send delivers d even under a canceled context: the channel buffer
		// usually has room, and the non-blocking fallback keeps the terminal
		// delta from being dropped when the consumer is gone.
		send := func(d domain.StreamDelta) {
			select {
			case out <- d:
			case <-ctx.Done():
				select {
				case out <- d:
				default:
				}
			}
		}

		var block bytes.Buffer
		emit := func(chunk []byte) bool {
			d := adapter.ParseStreamChunk(chunk)
			if d == nil {
				return false
			}
			select {
			case out <- *d:
			case <-ctx.Done():
				send(*domain.ErrorDelta(fmt.Sprintf("stream canceled: %v", ctx.Err())))
				return true
			}
			return d.Terminal()
		}

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				send(*domain.ErrorDelta(fmt.Sprintf("stream canceled: %v", ctx.Err())))
				return
			default:
			}

			line := scanner.Bytes()
			if !blockMode {
				if emit(line) {
					return
				}
				continue
			}

			// Event-block grouping: accumulate until the blank separator.
			if len(bytes.TrimSpace(line)) == 0 {
				if block.Len() > 0 {
					chunk := block.Bytes()
					block.Reset()
					if emit(chunk) {
						return
					}
				}
				continue
			}
			block.Write(line)
			block.WriteByte('\n')
		}

		if err := scanner.Err(); err != nil {
			send(*domain.ErrorDelta(fmt.Sprintf("read stream: %v", err)))
			return
		}

		// Trailing block without a final blank line.
		if blockMode && block.Len() > 0 {
			if emit(block.Bytes()) {
				return
			}
		}

		// Clean EOF without a protocol-level terminal still ends the turn.
		send(*domain.DoneDelta(""))
	}()

	return out
}
