package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
	"chatrelay/internal/infra/tracer"
)

// TestResult is the outcome of one connection test.
type TestResult struct {
	Success   bool                   `json:"success"`
	LatencyMs int64                  `json:"latency_ms"`
	Models    []string               `json:"models,omitempty"`
	Hints     domain.CapabilityHints `json:"hints"`

	// Advisory is set when the endpoint responded but something is off
	// (auth failure, empty model list). Error is set on hard failure.
	Advisory string `json:"advisory,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Tester validates agent configuration against the live endpoint: it
// fetches the model catalog, measures latency, and infers capability
// hints from the model names.
type Tester struct {
	client *llm.Client
	log    *slog.Logger
}

// NewTester builds a Tester on the shared request client.
func NewTester(client *llm.Client, log *slog.Logger) *Tester {
	return &Tester{client: client, log: log}
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewDomainError("Tester.ValidateEndpoint", domain.ErrInvalidEndpoint, raw)
	}
	return nil
}

// Test runs one connection test against the agent's models endpoint.
func (t *Tester) Test(ctx context.Context, agent *domain.Agent) TestResult {
	ctx, span := tracer.StartSpan(ctx, "tester.test")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("agent.id", agent.ID),
		tracer.StringAttr("agent.type", string(agent.Type)))

	if err := ValidateEndpoint(agent.EndpointURL); err != nil {
		tracer.RecordError(span, err)
		return TestResult{Error: err.Error()}
	}

	start := time.Now()
	models, err := t.client.ListModels(ctx, agent)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		// A rejected credential still proves the endpoint speaks the
		// protocol; surface it as a partial success.
		if errors.Is(err, domain.ErrAuthInvalid) {
			return TestResult{
				Success:   true,
				LatencyMs: latency,
				Advisory:  "endpoint reachable but credentials were rejected",
			}
		}
		tracer.RecordError(span, err)
		return TestResult{LatencyMs: latency, Error: err.Error()}
	}

	result := TestResult{
		Success:   true,
		LatencyMs: latency,
		Models:    models,
		Hints:     InferCapabilities(agent.Type, models),
	}
	if len(models) == 0 {
		result.Advisory = "endpoint reachable but returned no models"
	}
	tracer.SetOK(span)
	return result
}

// visionMarkers etc. are lowercase substrings matched against model names.
// Heuristic by nature: unfamiliar model names will be misclassified, and
// the hints are advisory only.
var (
	visionMarkers    = []string{"vision", "-vl", "llava", "gpt-4o", "gpt-4.1", "claude-3", "claude-opus", "claude-sonnet", "gemini", "pixtral", "qwen-vl", "minicpm-v"}
	toolMarkers      = []string{"gpt-4", "gpt-3.5-turbo", "claude", "command-r", "mistral-large", "qwen", "hermes", "functionary", "llama-3", "llama3"}
	reasoningMarkers = []string{"o1", "o3", "o4", "r1", "deepseek-r", "reasoner", "thinking", "qwq"}
)

func matchesAny(name string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// InferCapabilities derives capability hints from the agent type and the
// model catalog.
func InferCapabilities(agentType domain.AgentType, models []string) domain.CapabilityHints {
	var hints domain.CapabilityHints
	for _, model := range models {
		name := strings.ToLower(model)
		if matchesAny(name, visionMarkers) {
			hints.Vision = true
		}
		if matchesAny(name, toolMarkers) {
			hints.Tools = true
		}
		if matchesAny(name, reasoningMarkers) {
			hints.Reasoning = true
		}
	}

	// File upload and code execution are platform features rather than
	// model features; only the hosted OpenAI-style platforms expose them.
	if agentType == domain.AgentOpenAI && (hints.Vision || hints.Tools) {
		hints.FileUpload = true
		hints.CodeExecution = hints.Tools
	}
	return hints
}

// autoDetectOrder lists the families probed during detection. Anthropic is
// deliberately absent: its models endpoint rejects unauthenticated probes,
// so detection cannot distinguish it from a dead endpoint. Custom comes
// last as the catch-all.
var autoDetectOrder = []domain.AgentType{domain.AgentOpenAI, domain.AgentOllama, domain.AgentCustom}

// AutoDetect probes endpointURL with each detectable protocol family in
// order and returns the first whose models endpoint answers. An empty
// catalog still counts: a server with no models loaded is a valid match.
// When nothing answers it settles on Custom, which degrades gracefully
// at send time instead of blocking registration.
func (t *Tester) AutoDetect(ctx context.Context, endpointURL, authToken string) (domain.AgentType, error) {
	if err := ValidateEndpoint(endpointURL); err != nil {
		return "", err
	}

	for _, candidate := range autoDetectOrder {
		probe := &domain.Agent{
			ID:             "autodetect",
			EndpointURL:    endpointURL,
			Type:           candidate,
			AuthToken:      authToken,
			RequestTimeout: 5 * time.Second,
		}
		if _, err := t.client.ListModels(ctx, probe); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		t.log.Info("auto-detected agent type", "endpoint", endpointURL, "type", candidate)
		return candidate, nil
	}

	t.log.Info("auto-detect fell back to custom", "endpoint", endpointURL)
	return domain.AgentCustom, nil
}
