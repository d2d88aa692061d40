package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Default backoff parameters.
const (
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 10 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// BackoffConfig describes a delay schedule. Zero fields take the
// defaults; a negative Jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (c BackoffConfig) normalized() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Delay returns the base delay before the given redial (0-based),
// without jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := c.Initial
	for i := 0; i < attempt && d < c.Max; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
	}
	return min(d, c.Max)
}

// Backoff hands out redial delays from a BackoffConfig schedule. It is
// safe for concurrent use.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff with the default schedule.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Jitter: JitterFactor})
}

// NewBackoffWithConfig creates a Backoff for cfg.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	return &Backoff{
		cfg: cfg.normalized(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay, jitter included, and counts an attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.cfg.Delay(b.attempts)
	b.attempts++
	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * b.rng.Float64())
	}
	return d
}

// Wait sleeps for Next() or until ctx ends, whichever comes first.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset restarts the schedule. Call it after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay Next would use, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Delay(b.attempts)
}
