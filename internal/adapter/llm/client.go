package llm

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chatrelay/internal/domain"
)

// defaultRequestTimeout applies when an agent does not set its own.
const defaultRequestTimeout = 30 * time.Second

// Client executes chat, streaming, and model-listing exchanges against a
// configured agent, selecting the protocol adapter by agent type. One
// Client serves all agents; per-agent state lives in the Agent value.
type Client struct {
	factory *Factory
	json    *http.Client
	stream  *http.Client
	log     *slog.Logger
}

// NewClient builds a Client. The streaming client carries no overall
// timeout: http.Client.Timeout covers the whole body read, which would
// sever long generations. Deadlines on the streaming path come from the
// request context.
func NewClient(factory *Factory, log *slog.Logger) *Client {
	return &Client{
		factory: factory,
		json:    NewHTTPClient(defaultRequestTimeout),
		stream:  &http.Client{Transport: NewPooledTransport()},
		log:     log,
	}
}

// requestContext applies the agent's timeout (or the default) unless the
// caller's context already carries an earlier deadline.
func requestContext(ctx context.Context, agent *domain.Agent) (context.Context, context.CancelFunc) {
	timeout := agent.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Chat performs one non-streaming exchange.
func (c *Client) Chat(ctx context.Context, agent *domain.Agent, params domain.ChatParams) (*domain.ParsedMessage, error) {
	adapter, err := c.factory.Adapter(agent.Type)
	if err != nil {
		return nil, err
	}
	params.Stream = false

	body, err := adapter.FormatChatBody(params)
	if err != nil {
		return nil, domain.WrapOp("Client.Chat", err)
	}

	ctx, cancel := requestContext(ctx, agent)
	defer cancel()

	start := time.Now()
	data, err := doJSONRequest(ctx, c.json, http.MethodPost,
		adapter.ChatEndpoint(agent.EndpointURL),
		adapter.Headers(agent.AuthToken, agent.Headers), body)
	if err != nil {
		return nil, domain.WrapOp("Client.Chat", err)
	}
	c.log.Debug("chat exchange complete",
		"agent_id", agent.ID,
		"type", agent.Type,
		"elapsed_ms", time.Since(start).Milliseconds())

	return adapter.ParseCompleteResponse(data), nil
}

// ChatStream opens a streaming exchange and returns the normalized delta
// channel. The returned channel follows the ScanStream contract: exactly
// one terminal delta, then close.
func (c *Client) ChatStream(ctx context.Context, agent *domain.Agent, params domain.ChatParams) (<-chan domain.StreamDelta, error) {
	adapter, err := c.factory.Adapter(agent.Type)
	if err != nil {
		return nil, err
	}
	params.Stream = true

	body, err := adapter.FormatChatBody(params)
	if err != nil {
		return nil, domain.WrapOp("Client.ChatStream", err)
	}

	respBody, err := doStreamRequest(ctx, c.stream, http.MethodPost,
		adapter.ChatEndpoint(agent.EndpointURL),
		adapter.Headers(agent.AuthToken, agent.Headers), body)
	if err != nil {
		return nil, domain.WrapOp("Client.ChatStream", err)
	}
	c.log.Debug("stream opened", "agent_id", agent.ID, "type", agent.Type)

	return ScanStream(ctx, respBody, adapter), nil
}

// ListModels fetches the agent's model catalog.
func (c *Client) ListModels(ctx context.Context, agent *domain.Agent) ([]string, error) {
	adapter, err := c.factory.Adapter(agent.Type)
	if err != nil {
		return nil, err
	}

	ctx, cancel := requestContext(ctx, agent)
	defer cancel()

	data, err := doJSONRequest(ctx, c.json, http.MethodGet,
		adapter.ModelsEndpoint(agent.EndpointURL),
		adapter.Headers(agent.AuthToken, agent.Headers), nil)
	if err != nil {
		return nil, domain.WrapOp("Client.ListModels", err)
	}
	return adapter.ParseModelsResponse(data), nil
}
