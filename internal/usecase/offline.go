package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/domain"
)

// DrainReport summarizes one replay pass over the offline queue.
type DrainReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// OfflineManager drains the offline queue when connectivity returns.
// Messages replay strictly in enqueue order; a message that keeps failing
// is dropped once it exhausts its retry budget so it cannot block the
// queue behind it forever.
type OfflineManager struct {
	queue      domain.MessageQueue
	sender     *SendService
	observer   domain.NetworkObserver
	log        *slog.Logger
	maxRetries int

	mu       sync.Mutex // serializes concurrent drains
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewOfflineManager wires the drain loop.
func NewOfflineManager(queue domain.MessageQueue, sender *SendService, observer domain.NetworkObserver, maxRetries int, log *slog.Logger) *OfflineManager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OfflineManager{
		queue:      queue,
		sender:     sender,
		observer:   observer,
		log:        log,
		maxRetries: maxRetries,
		stopped:    make(chan struct{}),
	}
}

// Start watches connectivity transitions and drains on each offline→online
// edge. It returns immediately; Stop ends the watcher.
func (m *OfflineManager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopped:
				return
			case online, ok := <-m.observer.Changes():
				if !ok {
					return
				}
				if !online {
					continue
				}
				report := m.Drain(ctx)
				if report.Delivered+report.Failed+report.Dropped > 0 {
					m.log.Info("offline queue drained",
						"delivered", report.Delivered,
						"failed", report.Failed,
						"dropped", report.Dropped,
						"remaining", report.Remaining)
				}
			}
		}
	}()
}

// Stop ends the connectivity watcher.
func (m *OfflineManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// Drain replays every queued message in order. Replay stops early if the
// network drops again mid-drain; messages left behind keep their place.
func (m *OfflineManager) Drain(ctx context.Context) DrainReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report DrainReport

	msgs, err := m.queue.List(ctx)
	if err != nil {
		m.log.Error("list offline queue failed", "error", err)
		return report
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		if m.observer != nil && !m.observer.Online() {
			m.log.Info("network dropped mid-drain, pausing replay")
			break
		}

		if err := m.sender.Replay(ctx, msg); err != nil {
			if msg.RetryCount+1 >= m.maxRetries {
				m.log.Warn("dropping queued message after repeated failures",
					"message_id", msg.ID,
					"retries", msg.RetryCount+1,
					"error", err)
				if rmErr := m.queue.Remove(ctx, msg.ID); rmErr != nil {
					m.log.Error("remove exhausted message failed", "message_id", msg.ID, "error", rmErr)
				}
				report.Dropped++
				continue
			}
			if incErr := m.queue.IncrementRetry(ctx, msg.ID); incErr != nil {
				m.log.Error("increment retry failed", "message_id", msg.ID, "error", incErr)
			}
			m.log.Warn("queued message replay failed",
				"message_id", msg.ID,
				"retry_count", msg.RetryCount+1,
				"error", err)
			report.Failed++
			continue
		}

		if err := m.queue.Remove(ctx, msg.ID); err != nil {
			m.log.Error("remove delivered message failed", "message_id", msg.ID, "error", err)
		}
		report.Delivered++
	}

	if depth, err := m.queue.Depth(ctx); err == nil {
		report.Remaining = depth
	}
	return report
}

// ProbeObserver implements domain.NetworkObserver by periodically probing
// a well-known URL. State transitions are delivered on Changes.
type ProbeObserver struct {
	checkURL string
	period   time.Duration
	client   *http.Client
	log      *slog.Logger

	mu      sync.RWMutex
	online  bool
	changes chan bool
	stop    chan struct{}
	once    sync.Once
}

var _ domain.NetworkObserver = (*ProbeObserver)(nil)

// NewProbeObserver builds an observer that assumes online until the first
// probe says otherwise.
func NewProbeObserver(checkURL string, period time.Duration, log *slog.Logger) *ProbeObserver {
	return &ProbeObserver{
		checkURL: checkURL,
		period:   period,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log,
		online:   true,
		changes:  make(chan bool, 4),
		stop:     make(chan struct{}),
	}
}

// Start begins periodic probing.
func (o *ProbeObserver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(o.period)
		defer ticker.Stop()

		o.probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stop:
				return
			case <-ticker.C:
				o.probe(ctx)
			}
		}
	}()
}

// Stop ends probing.
func (o *ProbeObserver) Stop() {
	o.once.Do(func() { close(o.stop) })
}

func (o *ProbeObserver) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.checkURL, nil)
	if err != nil {
		return
	}
	resp, err := o.client.Do(req)
	online := err == nil
	if resp != nil {
		resp.Body.Close()
	}
	o.setOnline(online)
}

func (o *ProbeObserver) setOnline(online bool) {
	o.mu.Lock()
	changed := o.online != online
	o.online = online
	o.mu.Unlock()

	if !changed {
		return
	}
	o.log.Info("connectivity changed", "online", online)
	select {
	case o.changes <- online:
	default:
		// A slow consumer only needs the latest state; drop the oldest.
		select {
		case <-o.changes:
		default:
		}
		o.changes <- online
	}
}

// Online implements domain.NetworkObserver.
func (o *ProbeObserver) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Changes implements domain.NetworkObserver.
func (o *ProbeObserver) Changes() <-chan bool {
	return o.changes
}
