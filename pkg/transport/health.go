package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subscription health defaults.
const (
	DefaultHealthInterval = 30 * time.Second
	DefaultStaleAfter     = 30 * time.Second
)

// StaleTracker reports topics silent for longer than window.
type StaleTracker interface {
	StaleTopics(now time.Time, window time.Duration) []string
}

// SubscriptionHealth periodically resubscribes silent topics.
type SubscriptionHealth struct {
	interval    time.Duration
	staleAfter  time.Duration
	tracker     StaleTracker
	resubscribe func(topic string) error
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewSubscriptionHealth creates a health checker. Zero durations take the
// defaults; a nil now uses time.Now.
func NewSubscriptionHealth(interval, staleAfter time.Duration, tracker StaleTracker,
	resubscribe func(topic string) error, now func() time.Time, logger *zap.Logger) *SubscriptionHealth {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHealth{
		interval:    interval,
		staleAfter:  staleAfter,
		tracker:     tracker,
		resubscribe: resubscribe,
		now:         now,
		logger:      logger,
	}
}

// Check resubscribes every topic silent longer than the stale window and
// returns those topics.
func (s *SubscriptionHealth) Check(now time.Time) []string {
	stale := s.tracker.StaleTopics(now, s.staleAfter)
	if len(stale) == 0 {
		return nil
	}

	s.logger.Warn("topics silent, resubscribing",
		zap.Int("count", len(stale)),
		zap.Duration("window", s.staleAfter))

	done := make([]string, 0, len(stale))
	for _, topic := range stale {
		if err := s.resubscribe(topic); err != nil {
			s.logger.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		done = append(done, topic)
	}
	return done
}

// Start begins periodic checks. Calling Start on a running checker is a
// no-op.
func (s *SubscriptionHealth) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.loop(ctx, stopCh)
}

// Stop stops periodic checks. Safe to call repeatedly.
func (s *SubscriptionHealth) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// IsRunning returns true while periodic checks are active.
func (s *SubscriptionHealth) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SubscriptionHealth) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Check(s.now())
		}
	}
}
