package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
)

func newTester() *Tester {
	return NewTester(llm.NewClient(llm.NewFactory(llm.CustomConfig{}), testLogger()), testLogger())
}

func TestValidateEndpoint(t *testing.T) {
	assert.NoError(t, ValidateEndpoint("http://localhost:11434"))
	assert.NoError(t, ValidateEndpoint("https://api.example.com/v1"))

	for _, bad := range []string{"", "not a url", "ftp://x", "/relative/path", "localhost:8080"} {
		err := ValidateEndpoint(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidEndpoint, "input %q", bad)
	}
}

func TestTesterTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"o1-mini"}]}`))
	}))
	defer srv.Close()

	result := newTester().Test(context.Background(), &domain.Agent{
		ID:          "t1",
		EndpointURL: srv.URL,
		Type:        domain.AgentOpenAI,
	})

	assert.True(t, result.Success)
	assert.Equal(t, []string{"gpt-4o", "o1-mini"}, result.Models)
	assert.True(t, result.Hints.Vision, "gpt-4o implies vision")
	assert.True(t, result.Hints.Reasoning, "o1-mini implies reasoning")
	assert.Empty(t, result.Error)
}

func TestTesterTestAuthFailureIsPartialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := newTester().Test(context.Background(), &domain.Agent{
		ID:          "t1",
		EndpointURL: srv.URL,
		Type:        domain.AgentOpenAI,
	})

	assert.True(t, result.Success)
	assert.Contains(t, result.Advisory, "credentials")
}

func TestTesterTestInvalidEndpoint(t *testing.T) {
	result := newTester().Test(context.Background(), &domain.Agent{
		ID:          "t1",
		EndpointURL: "nonsense",
		Type:        domain.AgentOpenAI,
	})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestInferCapabilities(t *testing.T) {
	hints := InferCapabilities(domain.AgentOllama, []string{"llava:13b", "deepseek-r1:7b", "llama3:8b"})
	assert.True(t, hints.Vision)
	assert.True(t, hints.Reasoning)
	assert.True(t, hints.Tools)
	assert.False(t, hints.FileUpload, "platform features stay off for ollama")

	hints = InferCapabilities(domain.AgentOpenAI, []string{"gpt-4o"})
	assert.True(t, hints.FileUpload)

	hints = InferCapabilities(domain.AgentOllama, []string{"tinystories"})
	assert.Equal(t, domain.CapabilityHints{}, hints, "unknown models infer nothing")
}

func TestAutoDetectOllama(t *testing.T) {
	// Answers Ollama's /api/tags but not OpenAI's /models.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[{"name":"llama3:8b"}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	detected, err := newTester().AutoDetect(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOllama, detected)
}

func TestAutoDetectOpenAIWinsFirst(t *testing.T) {
	// Answers both /models and /api/tags; openai is probed first.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	detected, err := newTester().AutoDetect(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOpenAI, detected)
}

func TestAutoDetectEmptyCatalogStillMatches(t *testing.T) {
	// A freshly installed server with no models pulled yet.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	detected, err := newTester().AutoDetect(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOpenAI, detected)
}

func TestAutoDetectNothingAnswersFallsBackToCustom(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	detected, err := newTester().AutoDetect(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentCustom, detected)
}
