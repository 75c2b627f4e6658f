package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerSet keeps one circuit breaker per agent. An agent that fails
// repeatedly stops receiving traffic until its cool-down elapses, so
// retries against a dead endpoint do not pile up.
type BreakerSet struct {
	log *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSet builds an empty set.
func NewBreakerSet(log *slog.Logger) *BreakerSet {
	return &BreakerSet{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (s *BreakerSet) breaker(agentID string) *gobreaker.CircuitBreaker[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[agentID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "agent:" + agentID,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    defaultCBInterval,
		Timeout:     defaultCBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultCBMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	s.breakers[agentID] = cb
	return cb
}

// Execute runs fn under the agent's breaker.
func (s *BreakerSet) Execute(agentID string, fn func() error) error {
	_, err := s.breaker(agentID).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("agent %q circuit open: %w", agentID, err)
	}
	return err
}

// State returns the breaker state for monitoring; unknown agents read as
// closed.
func (s *BreakerSet) State(agentID string) gobreaker.State {
	return s.breaker(agentID).State()
}
