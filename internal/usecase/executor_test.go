package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusRecord struct {
	active    bool
	latencyMs int64
}

type fakeRegistry struct {
	agents   map[string]*domain.Agent
	statuses []statusRecord
}

func newFakeRegistry(agents ...*domain.Agent) *fakeRegistry {
	r := &fakeRegistry{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

func (r *fakeRegistry) Get(id string) (*domain.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRegistry) List() []*domain.Agent {
	var out []*domain.Agent
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

func (r *fakeRegistry) UpdateStatus(id string, active bool, latencyMs int64) error {
	if _, ok := r.agents[id]; !ok {
		return domain.ErrAgentNotFound
	}
	r.statuses = append(r.statuses, statusRecord{active: active, latencyMs: latencyMs})
	return nil
}

// newTestExecutor swaps the sleep func for one that records the backoff
// schedule instead of waiting it out.
func newTestExecutor(reg domain.AgentRegistry) (*Executor, *[]time.Duration) {
	e := NewExecutor(reg, testLogger())
	var waits []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return e, &waits
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	reg := newFakeRegistry(agent)
	e, waits := newTestExecutor(reg)

	attempts := 0
	err := e.Do(context.Background(), agent, "test.op", func(context.Context) error {
		attempts++
		return fmt.Errorf("%w: API error 500: boom", domain.ErrServerError)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServerError)
	// 1 initial attempt + 3 retries.
	assert.Equal(t, 4, attempts)
	require.Len(t, *waits, 3)

	// Doubling backoff: each wait strictly exceeds the previous even with
	// jitter, and each stays within base..base+25%.
	for i, w := range *waits {
		base := baseBackoff << i
		assert.GreaterOrEqual(t, w, base, "wait %d below base", i)
		assert.Less(t, w, base+base/4+time.Millisecond, "wait %d above jitter ceiling", i)
		if i > 0 {
			assert.Greater(t, w, (*waits)[i-1], "waits must increase")
		}
	}

	// The final failure is written back as inactive.
	require.NotEmpty(t, reg.statuses)
	assert.False(t, reg.statuses[len(reg.statuses)-1].active)
}

func TestExecutorDoesNotRetryClientErrors(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	e, waits := newTestExecutor(newFakeRegistry(agent))

	attempts := 0
	err := e.Do(context.Background(), agent, "test.op", func(context.Context) error {
		attempts++
		return fmt.Errorf("%w: API error 401: no", domain.ErrAuthInvalid)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "4xx must not be retried")
	assert.Empty(t, *waits)
}

func TestExecutorDoesNotRetryCallerCancellation(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	e, waits := newTestExecutor(newFakeRegistry(agent))

	attempts := 0
	err := e.Do(context.Background(), agent, "test.op", func(context.Context) error {
		attempts++
		return context.Canceled
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *waits)
}

func TestExecutorRetriesTimeouts(t *testing.T) {
	agent := &domain.Agent{ID: "a1", MaxRetries: 2}
	e, _ := newTestExecutor(newFakeRegistry(agent))

	attempts := 0
	err := e.Do(context.Background(), agent, "test.op", func(context.Context) error {
		attempts++
		return context.DeadlineExceeded
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "per-agent MaxRetries must apply")
}

func TestExecutorSuccessWritesStatus(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	reg := newFakeRegistry(agent)
	e, _ := newTestExecutor(reg)

	attempts := 0
	err := e.Do(context.Background(), agent, "test.op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: API error 503: busy", domain.ErrServerError)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.NotEmpty(t, reg.statuses)
	assert.True(t, reg.statuses[len(reg.statuses)-1].active)
}

func TestDoStreamContextOutlivesAttempt(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	e, _ := newTestExecutor(newFakeRegistry(agent))

	var streamCtx context.Context
	stop, err := e.DoStream(context.Background(), agent, "test.op", func(ctx context.Context) error {
		streamCtx = ctx
		return nil
	})
	require.NoError(t, err)

	// The per-attempt timeout must be disarmed on success: a stream hung
	// off this context keeps flowing after the attempt returns.
	require.NotNil(t, streamCtx)
	assert.NoError(t, streamCtx.Err())
	_, hasDeadline := streamCtx.Deadline()
	assert.False(t, hasDeadline, "stream context must not carry the attempt deadline")

	stop()
	assert.ErrorIs(t, streamCtx.Err(), context.Canceled)
}

func TestDoStreamRetriesEstablishmentTimeout(t *testing.T) {
	agent := &domain.Agent{ID: "a1", RequestTimeout: 10 * time.Millisecond, MaxRetries: 1}
	e, waits := newTestExecutor(newFakeRegistry(agent))

	attempts := 0
	stop, err := e.DoStream(context.Background(), agent, "test.op", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			// Hang until the establishment timer cancels the attempt.
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	defer stop()
	assert.Equal(t, 2, attempts, "establishment timeout must be retried")
	assert.Len(t, *waits, 1)
}

func TestDoStreamFailureReleasesContext(t *testing.T) {
	agent := &domain.Agent{ID: "a1"}
	e, _ := newTestExecutor(newFakeRegistry(agent))

	var streamCtx context.Context
	_, err := e.DoStream(context.Background(), agent, "test.op", func(ctx context.Context) error {
		streamCtx = ctx
		return fmt.Errorf("%w: API error 401: no", domain.ErrAuthInvalid)
	})

	require.Error(t, err)
	assert.ErrorIs(t, streamCtx.Err(), context.Canceled, "failed attempts must not leak their context")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error sentinel", domain.ErrServerError, true},
		{"timeout sentinel", domain.ErrTimeout, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"caller cancel", context.Canceled, false},
		{"auth sentinel", domain.ErrAuthInvalid, false},
		{"rate limit sentinel", domain.ErrRateLimit, false},
		{"status in text 502", errors.New("API error 502: bad gateway"), true},
		{"status in text 404", errors.New("API error 404: not found"), false},
		{"unclassified", errors.New("mystery"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
