package domain

import "time"

// AgentType tags the wire protocol family an endpoint speaks. The set is
// closed: the factory rejects anything outside these four.
type AgentType string

const (
	AgentOpenAI    AgentType = "openai"
	AgentOllama    AgentType = "ollama"
	AgentAnthropic AgentType = "anthropic"
	AgentCustom    AgentType = "custom"
)

// AgentTypes is the closed set of supported provider families.
var AgentTypes = []AgentType{AgentOpenAI, AgentOllama, AgentAnthropic, AgentCustom}

// Valid reports whether t is one of the four supported types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentOpenAI, AgentOllama, AgentAnthropic, AgentCustom:
		return true
	}
	return false
}

// Agent is a configured LLM endpoint. The adapter layer reads it; status
// fields are written back by health checks and the request executor.
type Agent struct {
	ID          string    `json:"id"           yaml:"id"`
	Name        string    `json:"name"         yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	EndpointURL string    `json:"endpoint_url" yaml:"endpoint_url"`
	Type        AgentType `json:"type"         yaml:"type"`
	AuthToken   string    `json:"-"            yaml:"auth_token,omitempty"`
	Model       string    `json:"model,omitempty" yaml:"model,omitempty"`

	// Extra headers sent with every request. Never overridden by the
	// adapter except for its own auth header.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Generation parameters.
	Temperature      float64 `json:"temperature,omitempty"       yaml:"temperature,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"        yaml:"max_tokens,omitempty"`
	TopP             float64 `json:"top_p,omitempty"             yaml:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"  yaml:"presence_penalty,omitempty"`

	// Resilience parameters. Zero values select the executor defaults.
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	MaxRetries     int           `json:"max_retries,omitempty"     yaml:"max_retries,omitempty"`

	// Live status, maintained by health checks and the executor.
	IsActive  bool  `json:"is_active"`
	LatencyMs int64 `json:"latency_ms"`
}

// AgentRegistry is the host application's agent catalog.
type AgentRegistry interface {
	Get(id string) (*Agent, error)
	List() []*Agent
	UpdateStatus(id string, active bool, latencyMs int64) error
}

// CapabilityHints are heuristic capability flags inferred from model name
// patterns during a connection test. They are best-effort hints, not an
// authoritative capability negotiation: unfamiliar model names will be
// misclassified.
type CapabilityHints struct {
	Vision        bool `json:"vision"`
	Tools         bool `json:"tools"`
	Reasoning     bool `json:"reasoning"`
	FileUpload    bool `json:"file_upload"`
	CodeExecution bool `json:"code_execution"`
}
