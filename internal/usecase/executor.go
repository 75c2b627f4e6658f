package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/tracer"
)

// Executor defaults. Agents override per-agent via RequestTimeout and
// MaxRetries; zero values select these.
const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	baseBackoff       = 1 * time.Second
)

// Executor wraps a request function with the resilience policy: a
// per-attempt deadline, bounded retries with doubling backoff, and status
// write-back to the agent registry. Only retryable faults (per
// IsRetryable) consume retry budget; everything else fails immediately.
type Executor struct {
	registry domain.AgentRegistry
	log      *slog.Logger

	// sleep is swapped out in tests to assert the backoff schedule
	// without waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an Executor. registry may be nil when no status
// write-back is wanted.
func NewExecutor(registry domain.AgentRegistry, log *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		log:      log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDelay is the wait before retry attempt n (0-based): the base
// doubles per attempt with up to 25% jitter to avoid retry alignment
// across concurrent requests.
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << attempt
	jitter := time.Duration(rand.Int64N(int64(d) / 4))
	return d + jitter
}

// Do runs fn under the agent's resilience policy. Each attempt gets a
// fresh deadline; the caller's ctx bounds the whole operation, and its
// cancellation is never retried.
func (e *Executor) Do(ctx context.Context, agent *domain.Agent, op string, fn func(ctx context.Context) error) error {
	_, err := e.run(ctx, agent, op, func(ctx context.Context, timeout time.Duration) (func(), error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return nil, fn(attemptCtx)
	})
	return err
}

// DoStream runs fn under the same retry policy as Do, for callers that
// open a stream inside fn. The context fn receives must outlive the
// attempt — the response body keeps flowing after fn returns — so the
// timeout bounds establishment only and is disarmed the moment fn
// succeeds. The returned stop releases the stream context; the caller
// must invoke it once the stream is fully consumed.
func (e *Executor) DoStream(ctx context.Context, agent *domain.Agent, op string, fn func(ctx context.Context) error) (stop func(), err error) {
	return e.run(ctx, agent, op, func(ctx context.Context, timeout time.Duration) (func(), error) {
		attemptCtx, cancel := context.WithCancel(ctx)
		var timedOut atomic.Bool
		timer := time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			cancel()
		})

		err := fn(attemptCtx)
		timer.Stop()
		if err != nil {
			cancel()
			if timedOut.Load() {
				// Surface the disarmable timer as a timeout so the retry
				// policy treats it like a per-attempt deadline.
				err = fmt.Errorf("%w: stream establishment exceeded %s", domain.ErrTimeout, timeout)
			}
			return nil, err
		}
		return cancel, nil
	})
}

// run drives the retry loop. attempt returns a release func on success;
// it is nil when the attempt owns no lingering resources.
func (e *Executor) run(ctx context.Context, agent *domain.Agent, op string, attempt func(ctx context.Context, timeout time.Duration) (func(), error)) (func(), error) {
	ctx, span := tracer.StartSpan(ctx, "executor.do")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent.id", agent.ID), tracer.StringAttr("op", op))

	timeout := agent.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := agent.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var err error
	for n := 0; ; n++ {
		start := time.Now()
		var release func()
		release, err = attempt(ctx, timeout)
		elapsed := time.Since(start)

		if err == nil {
			e.writeStatus(agent.ID, true, elapsed.Milliseconds())
			tracer.SetOK(span)
			if release == nil {
				release = func() {}
			}
			return release, nil
		}

		if n >= maxRetries || !IsRetryable(err) {
			break
		}

		delay := backoffDelay(n)
		e.log.Warn("request failed, retrying",
			"op", op,
			"agent_id", agent.ID,
			"attempt", n+1,
			"max_retries", maxRetries,
			"backoff", delay,
			"error", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	e.writeStatus(agent.ID, false, 0)
	e.log.Error("request exhausted retries", "op", op, "agent_id", agent.ID, "error", err)
	tracer.RecordError(span, err)
	return nil, domain.WrapOp(op, err)
}

func (e *Executor) writeStatus(agentID string, active bool, latencyMs int64) {
	if e.registry == nil {
		return
	}
	if err := e.registry.UpdateStatus(agentID, active, latencyMs); err != nil {
		e.log.Debug("status write-back failed", "agent_id", agentID, "error", err)
	}
}
