package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"chatrelay/internal/adapter/llm"
	"chatrelay/internal/domain"
)

// Latency classification thresholds. Boundary values classify downward:
// exactly 500ms is already slow, exactly 2000ms is still slow.
const (
	onlineLatencyBound = 500 * time.Millisecond
	slowLatencyBound   = 2000 * time.Millisecond

	// probeTimeout is the hard ceiling on a single probe; past it the
	// check reads offline regardless of what eventually comes back.
	probeTimeout = 10 * time.Second
)

// ClassifyLatency maps a probe's latency onto a status: online below
// 500ms, slow through 2000ms, offline beyond that.
func ClassifyLatency(latency time.Duration) domain.HealthStatus {
	switch {
	case latency < onlineLatencyBound:
		return domain.HealthOnline
	case latency <= slowLatencyBound:
		return domain.HealthSlow
	}
	return domain.HealthOffline
}

// HealthChecker probes agent endpoints and classifies reachability.
type HealthChecker struct {
	factory *llm.Factory
	client  *http.Client
	log     *slog.Logger
}

// NewHealthChecker builds a checker. The probe client carries the fixed
// probe ceiling; a response slower than 2s already classifies offline,
// but the body is still read so the status code can distinguish a broken
// service from a dead one.
func NewHealthChecker(factory *llm.Factory, log *slog.Logger) *HealthChecker {
	return &HealthChecker{
		factory: factory,
		client:  &http.Client{Timeout: probeTimeout},
		log:     log,
	}
}

// Check probes one agent's models endpoint and classifies the result.
// It prefers HEAD for cheapness and falls back to GET for servers that
// reject HEAD. An auth failure still proves the endpoint is reachable, so
// it classifies by latency with an advisory error; 5xx means the service
// is up but broken and reads as offline.
func (h *HealthChecker) Check(ctx context.Context, agent *domain.Agent) domain.HealthCheckResult {
	adapter, err := h.factory.Adapter(agent.Type)
	if err != nil {
		return domain.HealthCheckResult{
			Status:    domain.HealthOffline,
			CheckedAt: time.Now(),
			Error:     err.Error(),
		}
	}

	url := adapter.ModelsEndpoint(agent.EndpointURL)
	headers := adapter.Headers(agent.AuthToken, agent.Headers)

	start := time.Now()
	status, err := h.probe(ctx, http.MethodHead, url, headers)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = h.probe(ctx, http.MethodGet, url, headers)
	}
	latency := time.Since(start)

	result := domain.HealthCheckResult{
		LatencyMs: latency.Milliseconds(),
		CheckedAt: time.Now(),
	}

	switch {
	case err != nil:
		result.Status = domain.HealthOffline
		result.Error = err.Error()
	case status >= 500:
		result.Status = domain.HealthOffline
		result.Error = fmt.Sprintf("endpoint returned %d", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		result.Status = ClassifyLatency(latency)
		result.Error = fmt.Sprintf("endpoint reachable but auth failed (%d)", status)
	default:
		result.Status = ClassifyLatency(latency)
	}
	return result
}

func (h *HealthChecker) probe(ctx context.Context, method, url string, headers map[string]string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckAll probes every agent with bounded concurrency and returns the
// results keyed by agent ID. Individual probe failures are results, not
// errors, so one dead agent never hides the rest.
func (h *HealthChecker) CheckAll(ctx context.Context, agents []*domain.Agent, concurrency int) map[string]domain.HealthCheckResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	results := make(map[string]domain.HealthCheckResult, len(agents))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, agent := range agents {
		g.Go(func() error {
			r := h.Check(ctx, agent)
			mu.Lock()
			results[agent.ID] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// Monitor sweeps the registry on a fixed schedule, writing each agent's
// status back so the send path and the UI see current reachability.
type Monitor struct {
	checker     *HealthChecker
	registry    domain.AgentRegistry
	log         *slog.Logger
	interval    time.Duration
	concurrency int

	cron *cron.Cron
}

// NewMonitor builds a Monitor; call Start to begin sweeping.
func NewMonitor(checker *HealthChecker, registry domain.AgentRegistry, interval time.Duration, concurrency int, log *slog.Logger) *Monitor {
	return &Monitor{
		checker:     checker,
		registry:    registry,
		log:         log,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Start schedules periodic sweeps and runs one immediately so status is
// populated before the first interval elapses.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, func() { m.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule health sweep: %w", err)
	}
	m.cron.Start()
	go m.Sweep(ctx)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Sweep checks every registered agent once and writes status back.
func (m *Monitor) Sweep(ctx context.Context) {
	agents := m.registry.List()
	if len(agents) == 0 {
		return
	}

	results := m.checker.CheckAll(ctx, agents, m.concurrency)
	for id, r := range results {
		active := r.Status != domain.HealthOffline
		if err := m.registry.UpdateStatus(id, active, r.LatencyMs); err != nil {
			m.log.Debug("health status write-back failed", "agent_id", id, "error", err)
			continue
		}
		m.log.Debug("health sweep result",
			"agent_id", id,
			"status", r.Status,
			"latency_ms", r.LatencyMs)
	}
}
