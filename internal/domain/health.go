package domain

import "time"

// HealthStatus classifies an agent's reachability at check time.
type HealthStatus string

const (
	HealthOnline  HealthStatus = "online"
	HealthSlow    HealthStatus = "slow"
	HealthOffline HealthStatus = "offline"
)

// HealthCheckResult is the outcome of one reachability probe. It is a pure
// function of latency and reachability at check time and carries no
// history; each check supersedes the previous one.
type HealthCheckResult struct {
	Status    HealthStatus `json:"status"`
	LatencyMs int64        `json:"latency_ms"`
	CheckedAt time.Time    `json:"checked_at"`

	// Error holds an advisory message (e.g. an auth failure on an otherwise
	// reachable endpoint) or the failure that forced offline.
	Error string `json:"error,omitempty"`
}
