package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatrelay/internal/domain"
)

// maxResponseSize caps how much of a non-streaming body is read, as a
// guard against a misconfigured endpoint returning unbounded output.
const maxResponseSize = 10 * 1024 * 1024

// NewPooledTransport returns an http.Transport tuned for many small
// requests against a handful of hosts.
func NewPooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient returns a client for non-streaming calls. Streaming calls
// must use a client without a timeout (the overall Timeout covers body
// reads, which would sever a long generation mid-stream) and rely on
// context deadlines instead.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewPooledTransport(),
	}
}

// doJSONRequest performs one HTTP exchange and returns the body, mapping
// non-2xx statuses onto domain sentinels.
func doJSONRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

// doStreamRequest performs the exchange and hands back the open body for
// the caller to scan. Error statuses are drained, mapped, and closed here.
func doStreamRequest(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) (io.ReadCloser, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// mapHTTPError folds an HTTP error status into the domain's sentinel
// vocabulary, preserving the status and a body excerpt for diagnostics.
func mapHTTPError(status int, body []byte) error {
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	base := fmt.Errorf("API error %d: %s", status, detail)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, base)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimit, base)
	case status >= 500:
		return fmt.Errorf("%w: %w", domain.ErrServerError, base)
	default:
		return base
	}
}
