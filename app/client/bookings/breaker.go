package bookings

import (
	"log/slog"
	"sync"
	"time"

	"flightdesk/app/util/mylog"
)

// Breaker counts consecutive failed attempts against one target and rejects
// calls for a cool-down window once the threshold is reached.
type Breaker struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
}

func NewBreaker(threshold int, window time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}

	return &Breaker{
		threshold: threshold,
		window:    window,
		now:       now,
	}
}

// Allow reports whether an attempt may reach the transport.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return !b.now().Before(b.openUntil)
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.openUntil = time.Time{}
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.consecutiveFailures < b.threshold {
		return
	}

	b.openUntil = b.now().Add(b.window)

	slog.Warn("Circuit opened",
		"failures", b.consecutiveFailures,
		"until", b.openUntil,
		mylog.TelegramKey, true,
	)
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.consecutiveFailures
}
