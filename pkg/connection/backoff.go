package connection

import (
	"sync"
	"time"
)

// Backoff defaults.
const (
	// DefaultBaseInterval is the delay unit; attempt n waits n times this.
	DefaultBaseInterval = 5 * time.Second

	// DefaultMaxAttempts is the number of automatic attempts before the
	// manager gives up.
	DefaultMaxAttempts = 5
)

// Backoff calculates linear backoff delays bounded by a maximum number
// of attempts.
type Backoff struct {
	mu sync.Mutex

	base        time.Duration
	maxAttempts int

	// Attempt counter
	attempts int
}

// NewBackoff creates a new backoff calculator with default settings.
func NewBackoff() *Backoff {
	return &Backoff{
		base:        DefaultBaseInterval,
		maxAttempts: DefaultMaxAttempts,
	}
}

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	BaseInterval time.Duration
	MaxAttempts  int
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Backoff{
		base:        cfg.BaseInterval,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Next advances the attempt counter and returns the delay for that attempt.
// It returns false once the maximum number of attempts has been used; the
// counter is not advanced in that case.
func (b *Backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempts >= b.maxAttempts {
		return 0, false
	}
	b.attempts++
	return b.base * time.Duration(b.attempts), true
}

// Peek returns the delay the next call to Next would produce without
// advancing. It returns false when the attempts are exhausted.
func (b *Backoff) Peek() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempts >= b.maxAttempts {
		return 0, false
	}
	return b.base * time.Duration(b.attempts+1), true
}

// Reset resets the attempt counter.
// Call this after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of backoff attempts since last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Exhausted reports whether every automatic attempt has been used.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts >= b.maxAttempts
}

// BackoffSequence returns the full sequence of delays for cfg.
func BackoffSequence(cfg BackoffConfig) []time.Duration {
	b := NewBackoffWithConfig(cfg)
	var seq []time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			return seq
		}
		seq = append(seq, d)
	}
}
