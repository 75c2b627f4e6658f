package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
)

func TestClassifyLatency(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    domain.HealthStatus
	}{
		{0, domain.HealthOnline},
		{499 * time.Millisecond, domain.HealthOnline},
		{500 * time.Millisecond, domain.HealthSlow},
		{1500 * time.Millisecond, domain.HealthSlow},
		{2000 * time.Millisecond, domain.HealthSlow},
		{2001 * time.Millisecond, domain.HealthOffline},
		{5 * time.Second, domain.HealthOffline},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyLatency(tt.latency), "latency %s", tt.latency)
	}
}

func healthAgent(url string) *domain.Agent {
	return &domain.Agent{ID: "h1", EndpointURL: url, Type: domain.AgentOpenAI}
}

func TestHealthCheckOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	result := h.Check(context.Background(), healthAgent(srv.URL))

	assert.Equal(t, domain.HealthOnline, result.Status)
	assert.Empty(t, result.Error)
	assert.False(t, result.CheckedAt.IsZero())
}

func TestHealthCheckFallsBackToGet(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	result := h.Check(context.Background(), healthAgent(srv.URL))

	require.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
	assert.Equal(t, domain.HealthOnline, result.Status)
}

func TestHealthCheckAuthFailureIsAdvisory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	result := h.Check(context.Background(), healthAgent(srv.URL))

	// Reachable with bad credentials is not offline.
	assert.Equal(t, domain.HealthOnline, result.Status)
	assert.Contains(t, result.Error, "auth failed")
}

func TestHealthCheckServerErrorIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	result := h.Check(context.Background(), healthAgent(srv.URL))

	assert.Equal(t, domain.HealthOffline, result.Status)
}

func TestHealthCheckUnreachableIsOffline(t *testing.T) {
	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	result := h.Check(context.Background(), healthAgent("http://127.0.0.1:1"))

	assert.Equal(t, domain.HealthOffline, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestHealthCheckAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	agents := []*domain.Agent{
		{ID: "up", EndpointURL: srv.URL, Type: domain.AgentOpenAI},
		{ID: "down", EndpointURL: "http://127.0.0.1:1", Type: domain.AgentOpenAI},
	}

	results := h.CheckAll(context.Background(), agents, 2)
	require.Len(t, results, 2)
	assert.Equal(t, domain.HealthOnline, results["up"].Status)
	assert.Equal(t, domain.HealthOffline, results["down"].Status)
}

func TestMonitorSweepWritesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agent := &domain.Agent{ID: "m1", EndpointURL: srv.URL, Type: domain.AgentOpenAI}
	reg := newFakeRegistry(agent)
	h := NewHealthChecker(llm.NewFactory(llm.CustomConfig{}), testLogger())
	m := NewMonitor(h, reg, time.Minute, 2, testLogger())

	m.Sweep(context.Background())

	require.NotEmpty(t, reg.statuses)
	assert.True(t, reg.statuses[0].active)
}
