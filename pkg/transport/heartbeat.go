package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHeartbeatInterval is the default interval between heartbeats.
const DefaultHeartbeatInterval = 15 * time.Second

// HeartbeatMonitor sends a heartbeat at a fixed interval while running.
// A failed send is logged and the monitor keeps going; the read loop is
// what notices a dead transport.
type HeartbeatMonitor struct {
	interval time.Duration
	send     func() error
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	sent    int
	failed  int
}

// NewHeartbeatMonitor creates a monitor calling send every interval.
func NewHeartbeatMonitor(interval time.Duration, send func() error, logger *zap.Logger) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatMonitor{
		interval: interval,
		send:     send,
		logger:   logger,
	}
}

// Start begins sending. Calling Start on a running monitor is a no-op.
func (h *HeartbeatMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	stopCh := h.stopCh
	h.mu.Unlock()

	go h.loop(ctx, stopCh)
}

// Stop stops sending. Safe to call repeatedly.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

// IsRunning returns true while the monitor is active.
func (h *HeartbeatMonitor) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Stats returns the number of sent and failed heartbeats.
func (h *HeartbeatMonitor) Stats() (sent, failed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent, h.failed
}

func (h *HeartbeatMonitor) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *HeartbeatMonitor) beat() {
	err := h.send()

	h.mu.Lock()
	if err != nil {
		h.failed++
	} else {
		h.sent++
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("heartbeat send failed", zap.Error(err))
	}
}
